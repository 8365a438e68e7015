package database

import (
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/admission-sync/pkg/config"
)

// Listener subscribes to a Postgres NOTIFY channel and reconnects on its own.
type Listener struct {
	pq      *pq.Listener
	channel string
}

// NewListener opens a dedicated LISTEN connection for channel.
func NewListener(cfg config.DatabaseConfig, channel string, logger *zap.Logger) (*Listener, error) {
	if !channelPattern.MatchString(channel) {
		return nil, fmt.Errorf("invalid notification channel %q", channel)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	onEvent := func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			logger.Info("change feed connected", zap.String("channel", channel))
		case pq.ListenerEventReconnected:
			logger.Info("change feed reconnected", zap.String("channel", channel))
		case pq.ListenerEventDisconnected:
			logger.Warn("change feed disconnected", zap.String("channel", channel), zap.Error(err))
		case pq.ListenerEventConnectionAttemptFailed:
			logger.Warn("change feed connection attempt failed", zap.String("channel", channel), zap.Error(err))
		}
	}

	l := pq.NewListener(DSN(cfg), time.Second, time.Minute, onEvent)
	if err := l.Listen(channel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("listen %s: %w", channel, err)
	}
	return &Listener{pq: l, channel: channel}, nil
}

// Notifications delivers payloads. A nil value means the connection was re-established
// and events may have been missed.
func (l *Listener) Notifications() <-chan *pq.Notification {
	return l.pq.Notify
}

// Ping checks the listener connection.
func (l *Listener) Ping() error {
	return l.pq.Ping()
}

// Close stops listening and releases the connection.
func (l *Listener) Close() error {
	return l.pq.Close()
}
