// Package beebotte is a client for the Beebotte MQTT service.
//
// A Client wraps one MQTT transport, keeps track of subscribed topics and of
// publishes still in flight, and runs a network loop goroutine that delivers
// callbacks:
//
//	c, err := beebotte.New(beebotte.WithCACert("mqtt.beebotte.com.pem"))
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	if err := c.Connect(token, nil, onMessage); err != nil {
//		return err
//	}
//	if err := c.Start(); err != nil {
//		return err
//	}
//	err = c.Subscribe(beebotte.Topic("test/res/#"))
package beebotte

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/bizflycloud/beebotte-mqtt/pkg/broker"
	"github.com/bizflycloud/beebotte-mqtt/pkg/broker/mqtt"
)

const (
	// DefaultHost is the Beebotte MQTT broker.
	DefaultHost = "mqtt.beebotte.com"
	// DefaultPort is the plain MQTT port.
	DefaultPort = 1883
	// DefaultTLSPort is the port used when a CA certificate is set.
	DefaultTLSPort = 8883

	// tokenUsername is the username Beebotte expects with a channel token
	// as password.
	tokenUsername = "token"

	defaultLoopTimeout = time.Second
)

// Client is a Beebotte MQTT client.
//
// Subscribe, Unsubscribe, Publish, Connect and Disconnect are serialized, so
// the transport only ever sees one of them at a time next to the network
// loop's ticks. Callbacks run on the network loop goroutine.
type Client struct {
	host         string
	port         int
	caCert       string
	loopTimeout  time.Duration
	newTransport TransportFactory
	logger       *zap.Logger

	mu        sync.Mutex
	transport broker.Transport
	closing   bool
	topics    registry
	pubs      *tracker

	loopMu  sync.Mutex
	running int32
	done    chan struct{}
}

// New creates a new Client. Without WithPort, the port is 8883 when a CA
// certificate is set and 1883 otherwise.
func New(opts ...Option) (*Client, error) {
	c := &Client{
		host:        DefaultHost,
		loopTimeout: defaultLoopTimeout,
		logger:      zap.L(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.port == 0 {
		c.port = DefaultPort
		if c.caCert != "" {
			c.port = DefaultTLSPort
		}
	}
	if c.newTransport == nil {
		c.newTransport = func(logger *zap.Logger) (broker.Transport, error) {
			return mqtt.NewTransport(mqtt.WithLogger(logger))
		}
	}
	c.pubs = newTracker(c.logger)
	return c, nil
}

// Host returns the broker host.
func (c *Client) Host() string { return c.host }

// Port returns the broker port.
func (c *Client) Port() int { return c.port }

// CACert returns the CA certificate path, empty without TLS.
func (c *Client) CACert() string { return c.caCert }

// Topics returns the subscribed topics in subscription order.
func (c *Client) Topics() []string {
	return c.topics.list()
}

// IsSubscribed reports whether topic is subscribed.
func (c *Client) IsSubscribed(topic string) bool {
	return c.topics.contains(topic)
}

// Pending returns the number of publishes not known to be complete.
func (c *Client) Pending() int {
	return c.pubs.len()
}

// IsConnected reports whether the client holds a transport.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport != nil
}

// Connect connects to Beebotte with a channel token. Nil callbacks are
// replaced by ones that only log. The broker acknowledgement is reported
// through onConnect once the network loop runs.
func (c *Client) Connect(token string, onConnect broker.ConnectHandler, onMessage broker.Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != nil || c.closing {
		c.logger.Debug("already connected", zap.String("host", c.host), zap.Bool("closing", c.closing))
		return ErrAlreadyConnected
	}

	t, err := c.newTransport(c.logger)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if onConnect == nil {
		onConnect = c.onConnect
	}
	if onMessage == nil {
		onMessage = c.onMessage
	}
	t.OnConnect(onConnect)
	t.OnMessage(onMessage)
	t.SetCredentials(tokenUsername, token)
	if c.caCert != "" {
		c.logger.Debug("use ca_cert", zap.String("ca_cert", c.caCert))
		if err := t.SetCACert(c.caCert); err != nil {
			return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
	}

	c.logger.Debug("connecting", zap.String("host", c.host), zap.Int("port", c.port))
	if err := t.Connect(c.host, c.port); err != nil {
		c.logger.Error("connect failed", zap.String("host", c.host), zap.Int("port", c.port), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	c.transport = t
	c.logger.Debug("connected", zap.String("host", c.host))
	return nil
}

func (c *Client) onConnect(e broker.ConnectEvent) {
	c.logger.Debug("connected to "+c.host, zap.String("broker", e.Broker))
}

func (c *Client) onMessage(e broker.Event) error {
	c.logger.Debug(e.Topic, zap.ByteString("payload", e.Payload))
	return nil
}

// Disconnect unsubscribes from every topic, waits until all tracked
// publishes completed, stops the network loop and closes the connection.
// The wait has no timeout. Disconnect on a disconnected Client is a no-op.
//
// The transport is detached before waiting, so callbacks running meanwhile
// see ErrNotConnected while the network loop keeps ticking.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	t := c.transport
	if t == nil {
		c.mu.Unlock()
		return nil
	}
	c.logger.Debug("unsubscribe all topics")
	c.unsubscribeAll(t)
	c.transport = nil
	c.closing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.closing = false
		c.mu.Unlock()
	}()

	if !c.Running() {
		c.Wait()
		if err := c.startLoop(t); err != nil {
			c.logger.Warn("cannot start network loop", zap.Error(err))
		}
	}

	c.logger.Debug("wait for all messages to be published", zap.Int("pending", c.pubs.len()))
	c.pubs.drain()

	c.Stop(true)
	c.Wait()

	if err := t.Disconnect(); err != nil {
		c.logger.Warn("transport disconnect failed", zap.Error(err))
	}
	c.logger.Debug("disconnected", zap.String("host", c.host))
	return nil
}

// Close implements io.Closer by calling Disconnect.
func (c *Client) Close() error {
	return c.Disconnect()
}

// Subscribe subscribes to set.
//
// A SingleTopic that is already subscribed is a no-op. A TopicList or
// TopicQoSList fails with ErrAlreadySubscribed, subscribing nothing, when
// any of its topics is already subscribed.
func (c *Client) Subscribe(set TopicSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		c.logger.Error("cannot subscribe: not connected")
		return ErrNotConnected
	}
	if set == nil {
		c.logger.Error("invalid variable for topic name")
		return ErrInvalidTopic
	}

	switch s := set.(type) {
	case SingleTopic:
		return c.subscribeSingle(s)
	case *SingleTopic:
		return c.subscribeSingle(*s)
	}
	return c.subscribeMultiple(set)
}

func (c *Client) subscribeSingle(s SingleTopic) error {
	if c.topics.contains(s.Name) {
		c.logger.Warn("already subscribed", zap.String("topic", s.Name))
		return nil
	}
	fs, err := s.filters()
	if err != nil {
		c.logger.Error("invalid variable for topic name", zap.String("topic", s.Name), zap.Error(err))
		return err
	}

	c.logger.Debug("subscribe", zap.String("topic", s.Name))
	mid, err := c.transport.Subscribe(fs...)
	if err != nil {
		c.logger.Error("subscribe error", zap.String("topic", s.Name), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
	}
	c.topics.add(s.Name)
	c.logger.Debug("subscribed", zap.String("topic", s.Name), zap.Uint64("mid", mid))
	return nil
}

func (c *Client) subscribeMultiple(set TopicSet) error {
	fs, err := set.filters()
	if err != nil {
		c.logger.Error("invalid variable for topic name", zap.Error(err))
		return err
	}
	topics := names(fs)

	if subed := c.topics.intersect(topics); len(subed) != 0 {
		c.logger.Error("topics are already subscribed", zap.Strings("topics", subed))
		return fmt.Errorf("%w: %s", ErrAlreadySubscribed, strings.Join(subed, ", "))
	}

	c.logger.Debug("subscribe topics", zap.Strings("topics", topics))
	mid, err := c.transport.Subscribe(fs...)
	if err != nil {
		c.logger.Error("subscribe error", zap.Strings("topics", topics), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrSubscribeFailed, err)
	}
	c.topics.add(topics...)
	c.logger.Debug("subscribed topics", zap.Strings("topics", topics), zap.Uint64("mid", mid))
	return nil
}

// Unsubscribe unsubscribes from set, or from every subscribed topic when
// set is nil. Topics that are not subscribed are skipped.
func (c *Client) Unsubscribe(set TopicSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		c.logger.Error("cannot unsubscribe: not connected")
		return ErrNotConnected
	}
	if set == nil {
		c.unsubscribeAll(c.transport)
		return nil
	}

	var errs error
	for _, topic := range set.topicNames() {
		if !c.topics.contains(topic) {
			c.logger.Debug("not subscribed", zap.String("topic", topic))
			continue
		}
		c.logger.Debug("unsubscribe", zap.String("topic", topic))
		if err := c.transport.Unsubscribe(topic); err != nil {
			c.logger.Error("unsubscribe error", zap.String("topic", topic), zap.Error(err))
			errs = multierr.Append(errs, fmt.Errorf("%s: %v", topic, err))
			continue
		}
		c.topics.remove(topic)
		c.logger.Debug("unsubscribed", zap.String("topic", topic))
	}
	if errs != nil {
		return fmt.Errorf("%w: %v", ErrUnsubscribeFailed, errs)
	}
	return nil
}

// UnsubscribeAll is Unsubscribe(nil).
func (c *Client) UnsubscribeAll() error {
	return c.Unsubscribe(nil)
}

// unsubscribeAll sends one UNSUBSCRIBE for every subscribed topic and
// forgets them whatever the transport answers.
func (c *Client) unsubscribeAll(t broker.Transport) {
	topics := c.topics.list()
	c.logger.Debug("unsubscribe from all", zap.Strings("topics", topics))
	if err := t.Unsubscribe(topics...); err != nil {
		c.logger.Warn("unsubscribe error", zap.Strings("topics", topics), zap.Error(err))
	}
	c.topics.clear()
	c.logger.Debug("unsubscribed all")
}

// Publish publishes payload to topic and returns the id under which the
// publish is tracked until it completes. Delivery failures are not reported
// here; Disconnect logs them while waiting.
func (c *Client) Publish(topic string, payload []byte, qos byte, retain bool) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		c.logger.Error("cannot publish: not connected")
		return 0, ErrNotConnected
	}
	if qos > maxQoS {
		return 0, ErrInvalidQoS
	}

	c.logger.Debug("publish", zap.String("topic", topic), zap.String("size", humanize.Bytes(uint64(len(payload)))))
	h := c.transport.Publish(topic, payload, qos, retain)
	c.pubs.add(h)
	c.logger.Debug("published", zap.String("topic", topic), zap.Uint64("mid", h.ID()))
	return h.ID(), nil
}

// PublishString publishes a string payload.
func (c *Client) PublishString(topic, msg string, qos byte, retain bool) (uint64, error) {
	return c.Publish(topic, []byte(msg), qos, retain)
}
