package core

import (
	"strconv"
	"testing"
)

func benchmarkRoomFanOut(b *testing.B, recipients int) {
	hub := NewHub(newFakePresenceStore(nil), nil, Options{})

	sender := hub.Connect("sender")
	if err := hub.Join(sender, "bench"); err != nil {
		b.Fatal(err)
	}

	clients := make([]*Client, 0, recipients)
	for i := range recipients {
		c := hub.Connect("user-" + strconv.Itoa(i))
		if err := hub.Join(c, "bench"); err != nil {
			b.Fatal(err)
		}
		clients = append(clients, c)
	}
	b.Cleanup(func() {
		hub.Disconnect(sender)
		for _, c := range clients {
			hub.Disconnect(c)
		}
		hub.Wait()
	})

	// Drain events for all but the first recipient to avoid buffer drops.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for {
				select {
				case <-cl.Events():
				case <-cl.Done():
					return
				}
			}
		}(c)
	}
	drain(target.Events())

	ev := &Event{Kind: EventTypingStart, ChatID: "bench", UserID: sender.UserID}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		hub.Relay(sender, "bench", ev)
		for got := <-target.Events(); got.Kind != EventTypingStart; got = <-target.Events() {
		}
	}
}

func BenchmarkRoomFanOut_10(b *testing.B)  { benchmarkRoomFanOut(b, 10) }
func BenchmarkRoomFanOut_100(b *testing.B) { benchmarkRoomFanOut(b, 100) }
func BenchmarkRoomFanOut_500(b *testing.B) { benchmarkRoomFanOut(b, 500) }

func BenchmarkUserFanOut_100(b *testing.B) {
	hub := NewHub(newFakePresenceStore(nil), nil, Options{})
	dispatcher := hub.Dispatcher()

	userIDs := make([]string, 0, 100)
	clients := make([]*Client, 0, 100)
	for i := range 100 {
		id := "user-" + strconv.Itoa(i)
		userIDs = append(userIDs, id)
		clients = append(clients, hub.Connect(id))
	}
	b.Cleanup(func() {
		for _, c := range clients {
			hub.Disconnect(c)
		}
		hub.Wait()
	})

	ev := &Event{Kind: EventMessageReceive, ChatID: "bench"}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		dispatcher.ToUsers(userIDs, ev)
		for _, c := range clients {
			drain(c.Events())
		}
	}
}
