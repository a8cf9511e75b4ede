//go:generate go run go.uber.org/mock/mockgen -source=notifier.go -destination=../mocks/mock_notifier.go -package=mocks

// Package notify sends best-effort push notifications to offline devices.
package notify

import "context"

// Notifier delivers a push notification to the devices of userIDs.
// Implementations never fail the caller: errors are logged and dropped.
type Notifier interface {
	Notify(ctx context.Context, userIDs []string, title, body string, data map[string]string)
}

// Nop discards every notification.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, []string, string, string, map[string]string) {}
