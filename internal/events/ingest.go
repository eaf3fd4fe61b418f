package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"firefly/internal/metrics"
	"firefly/internal/models"
	"firefly/internal/retry"
)

// ingest keeps a connection to the event stream open and feeds decoded events to the
// dispatcher. Read errors trigger a reconnect.
func (b *Bus) ingest(ctx context.Context) {
	strategy := retry.NewStrategy(b.retry,
		retry.RetryAll(),
		retry.WithOperationName("connect to event stream"),
		retry.WithOnRetry(func(int, time.Duration, error) { metrics.EventStreamReconnects.Inc() }),
	)

	for ctx.Err() == nil {
		var conn *websocket.Conn
		err := strategy.Execute(ctx, func() error {
			c, resp, err := b.dialer.DialContext(ctx, b.url, nil)
			if resp != nil && resp.Body != nil {
				resp.Body.Close()
			}
			if err != nil {
				return err
			}
			conn = c
			return nil
		})
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Event stream unavailable, giving up", "url", b.url, "error", err)
				metrics.ErrorsTotal.WithLabelValues("events").Inc()
			}
			return
		}

		slog.Info("Connected to event stream", "url", b.url)
		b.read(ctx, conn)
	}
}

// read consumes frames until the connection fails or ctx is done
func (b *Bus) read(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("Event stream read failed, reconnecting", "error", err)
			}
			return
		}

		if msgType != websocket.TextMessage {
			slog.Debug("Ignored event stream frame", "type", msgType, "size", len(data))
			metrics.NodeEventsSkipped.Inc()
			continue
		}

		var event models.NodeEvent
		if err := json.Unmarshal(data, &event); err != nil {
			slog.Debug("Ignored undecodable event", "error", err)
			metrics.NodeEventsSkipped.Inc()
			continue
		}
		metrics.NodeEventsReceived.WithLabelValues(string(event.Kind)).Inc()

		select {
		case b.events <- event:
		case <-ctx.Done():
			return
		}
	}
}
