package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/securechat-server/internal/proto"
)

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", os.Getenv("SECURECHAT_TOKEN"), "access token issued by /api/auth/login")
	chat := flag.String("chat", "", "chat id to join and type into (optional)")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	if *token == "" {
		return fmt.Errorf("token is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, *addr, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + *token}},
	})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bye")

	send := func(event string, data any) error {
		payload, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", event, err)
		}
		if err := wsjson.Write(ctx, conn, proto.Inbound{Event: event, Data: payload}); err != nil {
			return fmt.Errorf("send %s: %w", event, err)
		}
		return nil
	}

	if *chat != "" {
		if err := send(proto.InJoinChat, proto.ChatRef{ChatID: *chat}); err != nil {
			return err
		}
		if err := send(proto.InTypingStart, proto.ChatRef{ChatID: *chat}); err != nil {
			return err
		}
	}
	if err := send(proto.InPing, nil); err != nil {
		return err
	}

	for {
		var ev wireEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			return fmt.Errorf("read: %w", err)
		}
		fmt.Printf("event=%s data=%s\n", ev.Event, string(ev.Data))

		switch ev.Event {
		case proto.OutError:
			var perr proto.Error
			if err := json.Unmarshal(ev.Data, &perr); err == nil {
				return fmt.Errorf("server error %s: %s", perr.Code, perr.Msg)
			}
		case proto.OutPong:
			if *chat != "" {
				_ = send(proto.InTypingStop, proto.ChatRef{ChatID: *chat})
			}
			return nil
		}
	}
}
