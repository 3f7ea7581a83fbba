package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v3"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bizflycloud/beebotte-mqtt/pkg/broker"
)

const (
	clientDisconnectWaitTimeout = 250
	defaultQueueSize            = 64
	maxEventsPerTick            = 128
	subackFailure               = 0x80
)

var _ broker.Transport = (*Transport)(nil)

var (
	ErrNoConnection         = errors.New("no connection to broker server")
	ErrTimeout              = errors.New("timeout waiting for broker")
	ErrInvalidCACert        = errors.New("no certificate found in CA file")
	ErrSubscriptionRejected = errors.New("subscription rejected by broker")
)

var tokenWaitTimeout = 3 * time.Second

// Transport implements broker.Transport on top of paho.
//
// paho runs its own network goroutines; Transport queues whatever they
// deliver and hands it to the registered callbacks from Tick.
type Transport struct {
	clientID     string
	username     string
	password     string
	tlsConfig    *tls.Config
	keepAlive    time.Duration
	connectRetry time.Duration
	queueSize    int
	logger       *zap.Logger

	client   mqtt.Client
	broker   string
	events   chan event
	quit     chan struct{}
	seq      uint64
	connects int32

	handlerMu sync.RWMutex
	onConnect broker.ConnectHandler
	onMessage broker.Handler
}

type event struct {
	connect *broker.ConnectEvent
	message *broker.Event
}

// NewTransport creates a new paho backed transport.
func NewTransport(opts ...Option) (*Transport, error) {
	t := &Transport{
		keepAlive: 30 * time.Second,
		queueSize: defaultQueueSize,
		logger:    zap.L(),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	if t.clientID == "" {
		t.clientID = "beebotte-" + uuid.New().String()[:8]
	}
	t.events = make(chan event, t.queueSize)
	return t, nil
}

func (t *Transport) SetCredentials(username, password string) {
	t.username = username
	t.password = password
}

func (t *Transport) SetCACert(path string) error {
	pem, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return fmt.Errorf("%s: %w", path, ErrInvalidCACert)
	}
	t.tlsConfig = &tls.Config{
		RootCAs:    pool,
		MinVersion: tls.VersionTLS12,
	}
	return nil
}

func (t *Transport) OnConnect(h broker.ConnectHandler) {
	t.handlerMu.Lock()
	t.onConnect = h
	t.handlerMu.Unlock()
}

func (t *Transport) OnMessage(h broker.Handler) {
	t.handlerMu.Lock()
	t.onMessage = h
	t.handlerMu.Unlock()
}

// BrokerURL returns the URL used for host and port.
func (t *Transport) BrokerURL(host string, port int) string {
	scheme := "tcp"
	if t.tlsConfig != nil {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func (t *Transport) opts() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.broker)
	opts.SetClientID(t.clientID)
	if t.username != "" {
		opts.SetUsername(t.username)
		opts.SetPassword(t.password)
	}
	if t.tlsConfig != nil {
		opts.SetTLSConfig(t.tlsConfig)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetOrderMatters(true)
	opts.SetKeepAlive(t.keepAlive)
	opts.SetDefaultPublishHandler(t.enqueueMessage)

	var connectHandler mqtt.OnConnectHandler = func(client mqtt.Client) {
		n := atomic.AddInt32(&t.connects, 1)
		t.enqueue(event{connect: &broker.ConnectEvent{Broker: t.broker, Reconnected: n > 1}})
	}

	var connectLostHandler mqtt.ConnectionLostHandler = func(client mqtt.Client, err error) {
		t.logger.Error("Connection lost with broker", zap.String("broker", t.broker), zap.Error(err))
	}

	var reconnectHandler mqtt.ReconnectHandler = func(client mqtt.Client, opts *mqtt.ClientOptions) {
		t.logger.Warn("Trying reconnect with broker", zap.String("broker", t.broker))
	}

	opts.OnConnect = connectHandler
	opts.OnConnectionLost = connectLostHandler
	opts.OnReconnecting = reconnectHandler
	return opts
}

// Connect connects to host:port. Attempts are retried with exponential
// backoff for up to the configured connect retry duration, except when the
// broker refused the credentials.
func (t *Transport) Connect(host string, port int) error {
	if t.client != nil {
		return errors.New("transport already connected")
	}
	t.broker = t.BrokerURL(host, port)
	t.quit = make(chan struct{})
	atomic.StoreInt32(&t.connects, 0)
	client := mqtt.NewClient(t.opts())

	var bo backoff.BackOff = &backoff.StopBackOff{}
	if t.connectRetry > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.MaxElapsedTime = t.connectRetry
		bo = exp
	}
	err := backoff.Retry(func() error {
		token := client.Connect()
		token.Wait()
		err := token.Error()
		if err == nil {
			return nil
		}
		if refused(err) {
			return backoff.Permanent(err)
		}
		t.logger.Debug("Connect attempt failed", zap.String("broker", t.broker), zap.Error(err))
		return err
	}, bo)
	if err != nil {
		close(t.quit)
		return err
	}
	t.client = client
	return nil
}

func refused(err error) bool {
	return errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) ||
		errors.Is(err, packets.ErrorRefusedNotAuthorised)
}

func (t *Transport) Disconnect() error {
	if t.client == nil {
		return ErrNoConnection
	}
	close(t.quit)
	t.client.Disconnect(clientDisconnectWaitTimeout)
	t.client = nil
	return nil
}

// IsConnected reports whether paho currently holds an open connection.
func (t *Transport) IsConnected() bool {
	return t.client != nil && t.client.IsConnectionOpen()
}

func (t *Transport) Subscribe(filters ...broker.Filter) (uint64, error) {
	id := atomic.AddUint64(&t.seq, 1)
	if t.client == nil {
		return id, ErrNoConnection
	}
	if len(filters) == 0 {
		return id, errors.New("no topics provided")
	}
	m := make(map[string]byte, len(filters))
	for _, f := range filters {
		m[f.Topic] = f.QoS
	}
	token := t.client.SubscribeMultiple(m, t.enqueueMessage)
	if !token.WaitTimeout(tokenWaitTimeout) {
		return id, ErrTimeout
	}
	if err := token.Error(); err != nil {
		return id, err
	}
	if st, ok := token.(*mqtt.SubscribeToken); ok {
		for topic, granted := range st.Result() {
			if granted == subackFailure {
				return id, fmt.Errorf("%s: %w", topic, ErrSubscriptionRejected)
			}
		}
	}
	return id, nil
}

func (t *Transport) Unsubscribe(topics ...string) error {
	if t.client == nil {
		return ErrNoConnection
	}
	if len(topics) == 0 {
		return nil
	}
	token := t.client.Unsubscribe(topics...)
	if !token.WaitTimeout(tokenWaitTimeout) {
		return ErrTimeout
	}
	return token.Error()
}

func (t *Transport) Publish(topic string, payload []byte, qos byte, retain bool) broker.PublishHandle {
	id := atomic.AddUint64(&t.seq, 1)
	if t.client == nil {
		return failedHandle(id, ErrNoConnection)
	}
	return &publishHandle{id: id, token: t.client.Publish(topic, qos, retain, payload)}
}

// Tick dispatches queued connect and message events to the registered
// callbacks. It waits at most timeout for the first event and handles at
// most maxEventsPerTick events per call.
func (t *Transport) Tick(timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-t.events:
		t.dispatch(ev)
	case <-timer.C:
		return nil
	}
	for i := 1; i < maxEventsPerTick; i++ {
		select {
		case ev := <-t.events:
			t.dispatch(ev)
		default:
			return nil
		}
	}
	return nil
}

func (t *Transport) dispatch(ev event) {
	t.handlerMu.RLock()
	onConnect, onMessage := t.onConnect, t.onMessage
	t.handlerMu.RUnlock()

	switch {
	case ev.connect != nil:
		t.logger.Info("Connected to broker", zap.String("broker", ev.connect.Broker), zap.Bool("reconnected", ev.connect.Reconnected))
		if onConnect != nil {
			onConnect(*ev.connect)
		}
	case ev.message != nil:
		if onMessage == nil {
			return
		}
		if err := onMessage(*ev.message); err != nil {
			t.logger.Error(err.Error(), zap.String("topic", ev.message.Topic))
		}
	}
}

func (t *Transport) enqueueMessage(_ mqtt.Client, msg mqtt.Message) {
	t.enqueue(event{message: &broker.Event{
		Topic:     msg.Topic(),
		Payload:   msg.Payload(),
		Duplicate: msg.Duplicate(),
		Qos:       msg.Qos(),
		Retained:  msg.Retained(),
		Ack:       msg.Ack,
	}})
}

// enqueue blocks while the queue is full, unless the transport is being
// disconnected.
func (t *Transport) enqueue(ev event) {
	select {
	case t.events <- ev:
	case <-t.quit:
	}
}

func (t *Transport) String() string {
	return fmt.Sprintf("Transport [%s]", t.clientID)
}
