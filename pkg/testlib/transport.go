// Package testlib provides an in-memory broker.Transport for tests.
package testlib

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/bizflycloud/beebotte-mqtt/pkg/broker"
)

var ErrBroker = errors.New("broker says no")

// Transport records every call it gets. Messages written to Events are
// handed to the message callback by Tick, one per call.
type Transport struct {
	mu sync.Mutex

	Username, Password string
	CACert             string
	Host               string
	Port               int

	CACertErr      error
	ConnectErr     error
	SubscribeErr   error
	UnsubscribeErr map[string]error

	Events chan broker.Event

	subscribeCalls   [][]broker.Filter
	unsubscribeCalls [][]string
	published        []*Handle
	disconnected     bool

	seq       uint64
	ticks     int32
	onConnect broker.ConnectHandler
	onMessage broker.Handler
}

var _ broker.Transport = (*Transport)(nil)

func NewTransport() *Transport {
	return &Transport{Events: make(chan broker.Event, 16)}
}

// Factory always hands out f.
func (f *Transport) Factory(*zap.Logger) (broker.Transport, error) {
	return f, nil
}

func (f *Transport) SetCredentials(username, password string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Username, f.Password = username, password
}

func (f *Transport) SetCACert(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CACertErr != nil {
		return f.CACertErr
	}
	f.CACert = path
	return nil
}

func (f *Transport) OnConnect(h broker.ConnectHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = h
}

func (f *Transport) OnMessage(h broker.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMessage = h
}

// Handlers returns the registered callbacks.
func (f *Transport) Handlers() (broker.ConnectHandler, broker.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onConnect, f.onMessage
}

func (f *Transport) Connect(host string, port int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.Host, f.Port = host, port
	f.disconnected = false
	return nil
}

func (f *Transport) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
	return nil
}

func (f *Transport) Subscribe(filters ...broker.Filter) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.subscribeCalls = append(f.subscribeCalls, filters)
	return f.seq, f.SubscribeErr
}

// Unsubscribe fails with UnsubscribeErr[topic] when called for one topic.
func (f *Transport) Unsubscribe(topics ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribeCalls = append(f.unsubscribeCalls, topics)
	if len(topics) == 1 {
		return f.UnsubscribeErr[topics[0]]
	}
	return nil
}

// Publish returns a Handle that stays incomplete until Complete is called.
func (f *Transport) Publish(topic string, payload []byte, qos byte, retain bool) broker.PublishHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	h := NewHandle(f.seq)
	h.Topic = topic
	h.Payload = payload
	f.published = append(f.published, h)
	return h
}

func (f *Transport) Tick(timeout time.Duration) error {
	atomic.AddInt32(&f.ticks, 1)
	select {
	case e := <-f.Events:
		_, h := f.Handlers()
		if h != nil {
			_ = h(e)
		}
	case <-time.After(timeout):
	}
	return nil
}

func (f *Transport) Ticks() int32 {
	return atomic.LoadInt32(&f.ticks)
}

func (f *Transport) Subscribes() [][]broker.Filter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]broker.Filter(nil), f.subscribeCalls...)
}

func (f *Transport) Unsubscribes() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.unsubscribeCalls...)
}

func (f *Transport) Handles() []*Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Handle(nil), f.published...)
}

// CompleteAll completes every publish made so far.
func (f *Transport) CompleteAll() {
	for _, h := range f.Handles() {
		h.Complete()
	}
}

func (f *Transport) Disconnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}

// Handle is a broker.PublishHandle completed by hand.
type Handle struct {
	Topic   string
	Payload []byte

	id   uint64
	once sync.Once
	done chan struct{}
}

func NewHandle(id uint64) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

func (h *Handle) ID() uint64 { return h.id }

func (h *Handle) IsPublished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

func (h *Handle) WaitForPublish() error {
	<-h.done
	return nil
}

func (h *Handle) Complete() {
	h.once.Do(func() { close(h.done) })
}
