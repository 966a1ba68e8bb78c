package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-ops-api/internal/models"
)

// PGFeed relays Postgres NOTIFY payloads written by the repositories into a
// Broker.
type PGFeed struct {
	listener *pq.Listener
	channel  string
	broker   *Broker
	logger   *zap.Logger
}

// NewPGFeed opens a dedicated LISTEN connection on dsn.
func NewPGFeed(dsn, channel string, broker *Broker, logger *zap.Logger) (*PGFeed, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("channel", channel))
	listener := pq.NewListener(dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
			logger.Warn("change feed connection lost", zap.Error(err))
		case pq.ListenerEventReconnected:
			logger.Info("change feed reconnected")
		}
	})
	if err := listener.Listen(channel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}
	return &PGFeed{listener: listener, channel: channel, broker: broker, logger: logger}, nil
}

// Run forwards notifications until ctx is done.
func (f *PGFeed) Run(ctx context.Context) error {
	defer f.listener.Close() //nolint:errcheck
	ping := time.NewTicker(90 * time.Second)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-f.listener.Notify:
			if n == nil {
				// Reconnected; events may have been lost while down.
				f.broker.Publish(Resync)
				continue
			}
			event, err := decodeEvent(n.Extra)
			if err != nil {
				f.logger.Warn("dropping malformed change event", zap.Error(err))
				continue
			}
			f.broker.Publish(event)
		case <-ping.C:
			go func() {
				if err := f.listener.Ping(); err != nil {
					f.logger.Warn("change feed ping failed", zap.Error(err))
				}
			}()
		}
	}
}

func decodeEvent(payload string) (models.ChangeEvent, error) {
	var event models.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return event, fmt.Errorf("decode change event: %w", err)
	}
	if event.Collection == "" || event.ID == "" {
		return event, fmt.Errorf("change event missing collection or id")
	}
	return event, nil
}
