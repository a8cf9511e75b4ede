package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultFCMEndpoint is the legacy FCM HTTP send endpoint.
	DefaultFCMEndpoint = "https://fcm.googleapis.com/fcm/send"

	fcmTimeout = 5 * time.Second
)

// TokenSource resolves users to their registered device tokens.
type TokenSource interface {
	NotificationTokens(ctx context.Context, userIDs []string) ([]string, error)
}

// FCM sends notifications through the legacy FCM HTTP API.
type FCM struct {
	serverKey string
	endpoint  string
	tokens    TokenSource
	client    *http.Client
	logger    *zerolog.Logger
}

// NewFCM creates an FCM notifier. An empty endpoint selects DefaultFCMEndpoint.
func NewFCM(serverKey, endpoint string, tokens TokenSource, logger *zerolog.Logger) *FCM {
	if endpoint == "" {
		endpoint = DefaultFCMEndpoint
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FCM{
		serverKey: serverKey,
		endpoint:  endpoint,
		tokens:    tokens,
		client:    &http.Client{Timeout: fcmTimeout},
		logger:    logger,
	}
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type fcmPayload struct {
	RegistrationIDs []string          `json:"registration_ids"`
	Notification    fcmNotification   `json:"notification"`
	Data            map[string]string `json:"data,omitempty"`
	Priority        string            `json:"priority"`
}

// Notify resolves device tokens for userIDs and posts one multicast request.
// It is skipped when no server key is configured or no user has a token.
func (f *FCM) Notify(ctx context.Context, userIDs []string, title, body string, data map[string]string) {
	if f.serverKey == "" || len(userIDs) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, fcmTimeout)
	defer cancel()

	tokens, err := f.tokens.NotificationTokens(ctx, userIDs)
	if err != nil {
		f.logger.Warn().Err(err).Msg("resolve notification tokens failed")
		return
	}
	if len(tokens) == 0 {
		return
	}

	if err := f.send(ctx, fcmPayload{
		RegistrationIDs: tokens,
		Notification:    fcmNotification{Title: title, Body: body},
		Data:            data,
		Priority:        "high",
	}); err != nil {
		f.logger.Warn().Err(err).Int("tokens", len(tokens)).Msg("push notification failed")
	}
}

func (f *FCM) send(ctx context.Context, payload fcmPayload) error {
	buf, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+f.serverKey)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("fcm returned %s", resp.Status)
	}
	return nil
}
