package mqtt

import (
	"errors"
	"time"

	"go.uber.org/zap"
)

type Option func(t *Transport) error

// WithClientID returns an Option which set the broker client id.
func WithClientID(id string) Option {
	return func(t *Transport) error {
		t.clientID = id
		return nil
	}
}

// WithLogger returns an Option which set the logger for Transport.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transport) error {
		if logger == nil {
			return errors.New("nil logger")
		}
		t.logger = logger
		return nil
	}
}

// WithKeepAlive returns an Option which set the MQTT keep alive interval.
func WithKeepAlive(d time.Duration) Option {
	return func(t *Transport) error {
		if d <= 0 {
			return errors.New("keep alive must be positive")
		}
		t.keepAlive = d
		return nil
	}
}

// WithConnectRetry returns an Option which set how long Connect keeps
// retrying a failed initial connection. Zero means a single attempt.
func WithConnectRetry(d time.Duration) Option {
	return func(t *Transport) error {
		if d < 0 {
			return errors.New("negative connect retry duration")
		}
		t.connectRetry = d
		return nil
	}
}

// WithQueueSize returns an Option which set how many received events are
// buffered between two ticks.
func WithQueueSize(n int) Option {
	return func(t *Transport) error {
		if n <= 0 {
			return errors.New("queue size must be positive")
		}
		t.queueSize = n
		return nil
	}
}
