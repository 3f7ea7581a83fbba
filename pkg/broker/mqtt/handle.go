package mqtt

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/bizflycloud/beebotte-mqtt/pkg/broker"
)

var _ broker.PublishHandle = (*publishHandle)(nil)

// publishHandle adapts a paho publish token to broker.PublishHandle.
type publishHandle struct {
	id    uint64
	token mqtt.Token
	done  chan struct{}
	err   error
}

// failedHandle returns a handle that is already complete with err.
func failedHandle(id uint64, err error) *publishHandle {
	done := make(chan struct{})
	close(done)
	return &publishHandle{id: id, done: done, err: err}
}

func (p *publishHandle) ID() uint64 {
	return p.id
}

func (p *publishHandle) IsPublished() bool {
	select {
	case <-p.doneCh():
		return true
	default:
		return false
	}
}

func (p *publishHandle) WaitForPublish() error {
	<-p.doneCh()
	if p.token != nil {
		return p.token.Error()
	}
	return p.err
}

func (p *publishHandle) doneCh() <-chan struct{} {
	if p.token != nil {
		return p.token.Done()
	}
	return p.done
}
