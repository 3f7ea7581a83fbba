package beebotte

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/bizflycloud/beebotte-mqtt/pkg/broker"
)

// Start starts the network loop goroutine. The loop ticks the transport,
// which fires the connect and message callbacks, and forgets publishes that
// have completed.
//
// Start fails with ErrNotConnected before Connect, and with
// ErrAlreadyRunning while a previous loop has not exited yet.
func (c *Client) Start() error {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil {
		return ErrNotConnected
	}
	return c.startLoop(t)
}

func (c *Client) startLoop(t broker.Transport) error {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.done != nil {
		select {
		case <-c.done:
		default:
			return ErrAlreadyRunning
		}
	}
	done := make(chan struct{})
	c.done = done
	atomic.StoreInt32(&c.running, 1)
	go c.loop(t, done)
	return nil
}

func (c *Client) loop(t broker.Transport, done chan struct{}) {
	defer close(done)
	c.logger.Debug("network loop started")
	for atomic.LoadInt32(&c.running) == 1 {
		if err := t.Tick(c.loopTimeout); err != nil {
			c.logger.Warn("network loop tick failed", zap.Error(err))
		}
		c.pubs.sweep()
	}
	c.logger.Debug("network loop stopped")
}

// Stop asks the network loop to exit. With blockWait it returns once the
// loop goroutine has exited, otherwise immediately; use Wait to join later.
// Stop must not be called with blockWait from a callback.
func (c *Client) Stop(blockWait bool) {
	if !atomic.CompareAndSwapInt32(&c.running, 1, 0) {
		return
	}
	c.logger.Debug("stop")
	if blockWait {
		c.Wait()
	}
}

// Wait blocks until the network loop goroutine, if any, has exited.
func (c *Client) Wait() {
	c.loopMu.Lock()
	done := c.done
	c.loopMu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether the network loop is running.
func (c *Client) Running() bool {
	return atomic.LoadInt32(&c.running) == 1
}
