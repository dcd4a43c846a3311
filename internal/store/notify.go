package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ChangeChannel is the NOTIFY channel the migrations' triggers publish on.
const ChangeChannel = "overlay_changes"

// Listen subscribes to remote change notifications on a dedicated connection.
// The returned channel closes when ctx is done. Connection drops are retried
// with a fixed backoff, so a subscriber never has to resubscribe.
func Listen(ctx context.Context, databaseURL string, logger *zap.Logger) (<-chan Notification, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, err := listenConn(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	out := make(chan Notification, 16)
	go func() {
		defer close(out)
		for {
			if conn == nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
				conn, err = listenConn(ctx, databaseURL)
				if err != nil {
					logger.Warn("relisten failed", zap.Error(err))
					continue
				}
			}

			raw, err := conn.WaitForNotification(ctx)
			if err != nil {
				_ = conn.Close(context.Background())
				conn = nil
				if ctx.Err() != nil {
					return
				}
				logger.Warn("notification wait failed", zap.Error(err))
				continue
			}

			var n Notification
			if err := json.Unmarshal([]byte(raw.Payload), &n); err != nil {
				n = Notification{Table: raw.Payload}
			}
			select {
			case out <- n:
			case <-ctx.Done():
				_ = conn.Close(context.Background())
				return
			}
		}
	}()
	return out, nil
}

func listenConn(ctx context.Context, databaseURL string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect listener: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("listen %s: %w", ChangeChannel, err)
	}
	return conn, nil
}
