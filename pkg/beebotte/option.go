package beebotte

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/bizflycloud/beebotte-mqtt/pkg/broker"
)

type Option func(c *Client) error

// TransportFactory creates the transport used by one Connect call.
type TransportFactory func(logger *zap.Logger) (broker.Transport, error)

// WithHost returns an Option which set the Beebotte MQTT host.
func WithHost(host string) Option {
	return func(c *Client) error {
		if host == "" {
			return errors.New("empty host")
		}
		c.host = host
		return nil
	}
}

// WithPort returns an Option which set the Beebotte MQTT port, overriding
// the plain or TLS default.
func WithPort(port int) Option {
	return func(c *Client) error {
		if port <= 0 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		c.port = port
		return nil
	}
}

// WithCACert returns an Option which enables TLS using the CA certificate
// file at path.
func WithCACert(path string) Option {
	return func(c *Client) error {
		c.caCert = path
		return nil
	}
}

// WithLogger returns an Option which set the logger for Client.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) error {
		if logger == nil {
			return errors.New("nil logger")
		}
		c.logger = logger
		return nil
	}
}

// WithTransportFactory returns an Option which replaces the paho transport.
func WithTransportFactory(f TransportFactory) Option {
	return func(c *Client) error {
		if f == nil {
			return errors.New("nil transport factory")
		}
		c.newTransport = f
		return nil
	}
}

// WithLoopTimeout returns an Option which set how long one network loop
// tick waits for incoming events.
func WithLoopTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return errors.New("loop timeout must be positive")
		}
		c.loopTimeout = d
		return nil
	}
}
