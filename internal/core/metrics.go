package core

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/vovakirdan/securechat-server/internal/core"

type metrics struct {
	delivered   metric.Int64Counter
	dropped     metric.Int64Counter
	connections metric.Int64UpDownCounter
	presence    metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter(meterName)
	delivered, _ := meter.Int64Counter("securechat_events_delivered_total",
		metric.WithDescription("Events enqueued to live connections"))
	dropped, _ := meter.Int64Counter("securechat_events_dropped_total",
		metric.WithDescription("Events dropped on closed or slow connections"))
	connections, _ := meter.Int64UpDownCounter("securechat_connections",
		metric.WithDescription("Live websocket connections"))
	presence, _ := meter.Int64Counter("securechat_presence_transitions_total",
		metric.WithDescription("Online and offline transitions"))
	return &metrics{
		delivered:   delivered,
		dropped:     dropped,
		connections: connections,
		presence:    presence,
	}
}

func (m *metrics) recordFanout(mode string, sent, dropped int) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("mode", mode))
	if sent > 0 {
		m.delivered.Add(ctx, int64(sent), attrs)
	}
	if dropped > 0 {
		m.dropped.Add(ctx, int64(dropped), attrs)
	}
}

func (m *metrics) recordPresence(status string) {
	m.presence.Add(context.Background(), 1, metric.WithAttributes(attribute.String("status", status)))
}
