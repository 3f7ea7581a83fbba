package broker

import "time"

// Transport is the MQTT connection driven by the Beebotte client.
//
// Network I/O may happen on goroutines owned by the implementation, but
// connect and message callbacks are only ever invoked from inside Tick, on
// the goroutine that calls it.
type Transport interface {
	// SetCredentials sets the username and password sent with CONNECT.
	SetCredentials(username, password string)
	// SetCACert enables TLS, trusting the PEM encoded CA certificate at path.
	SetCACert(path string) error
	// OnConnect registers the callback fired when the broker accepts the connection.
	OnConnect(h ConnectHandler)
	// OnMessage registers the callback fired for every received message.
	OnMessage(h Handler)

	Connect(host string, port int) error
	Disconnect() error

	// Subscribe requests all filters in a single SUBSCRIBE and returns its id.
	Subscribe(filters ...Filter) (uint64, error)
	// Unsubscribe requests all topics in a single UNSUBSCRIBE.
	Unsubscribe(topics ...string) error
	// Publish queues a message and returns a handle tracking its delivery.
	Publish(topic string, payload []byte, qos byte, retain bool) PublishHandle

	// Tick processes pending network events, waiting at most timeout for
	// the first one.
	Tick(timeout time.Duration) error
}

// PublishHandle tracks one in-flight publish.
type PublishHandle interface {
	// ID is unique among the handles of one transport.
	ID() uint64
	// IsPublished reports whether the publish flow has completed. It never blocks.
	IsPublished() bool
	// WaitForPublish blocks until the publish flow has completed.
	WaitForPublish() error
}

// Filter is a topic with the QoS requested for it.
type Filter struct {
	Topic string `json:"topic"`
	QoS   byte   `json:"qos"`
}

// Handler handles a message receive from a topic.
type Handler func(Event) error

// ConnectHandler handles a connection acknowledged by the broker.
type ConnectHandler func(ConnectEvent)

// Event is the event passed to Handler
type Event struct {
	Topic     string
	Payload   []byte
	Duplicate bool
	Qos       byte
	Retained  bool
	Ack       func()
}

// ConnectEvent is the event passed to ConnectHandler.
type ConnectEvent struct {
	Broker      string
	Reconnected bool
}
