package beebotte

import (
	"sync"

	"github.com/bizflycloud/beebotte-mqtt/pkg/broker"
)

const maxQoS = 2

// TopicSet is the topic argument of Subscribe and Unsubscribe. It is one of
// SingleTopic, TopicList or TopicQoSList.
type TopicSet interface {
	filters() ([]broker.Filter, error)
	topicNames() []string
}

// SingleTopic is one topic name.
type SingleTopic struct {
	Name string
	QoS  byte
}

// TopicList is several topic names sharing one QoS.
type TopicList struct {
	Names []string
	QoS   byte
}

// TopicQoSList is several topics, each with its own QoS.
type TopicQoSList []broker.Filter

// Topic is a shorthand for SingleTopic{Name: name}.
func Topic(name string) SingleTopic {
	return SingleTopic{Name: name}
}

// Topics is a shorthand for TopicList{Names: names}.
func Topics(names ...string) TopicList {
	return TopicList{Names: names}
}

func (s SingleTopic) topicNames() []string {
	return []string{s.Name}
}

func (l TopicList) topicNames() []string {
	return l.Names
}

func (l TopicQoSList) topicNames() []string {
	return names(l)
}

func (s SingleTopic) filters() ([]broker.Filter, error) {
	return checkFilters([]broker.Filter{{Topic: s.Name, QoS: s.QoS}})
}

func (l TopicList) filters() ([]broker.Filter, error) {
	fs := make([]broker.Filter, 0, len(l.Names))
	for _, name := range l.Names {
		fs = append(fs, broker.Filter{Topic: name, QoS: l.QoS})
	}
	return checkFilters(fs)
}

func (l TopicQoSList) filters() ([]broker.Filter, error) {
	return checkFilters(l)
}

// checkFilters validates fs and drops repeated topics, keeping the first.
func checkFilters(fs []broker.Filter) ([]broker.Filter, error) {
	if len(fs) == 0 {
		return nil, ErrInvalidTopic
	}
	seen := make(map[string]struct{}, len(fs))
	out := make([]broker.Filter, 0, len(fs))
	for _, f := range fs {
		if f.Topic == "" {
			return nil, ErrInvalidTopic
		}
		if f.QoS > maxQoS {
			return nil, ErrInvalidQoS
		}
		if _, ok := seen[f.Topic]; ok {
			continue
		}
		seen[f.Topic] = struct{}{}
		out = append(out, f)
	}
	return out, nil
}

func names(fs []broker.Filter) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Topic
	}
	return out
}

// registry is the ordered set of subscribed topic names. Writes come from
// Client operations only; the lock lets readers observe it concurrently.
type registry struct {
	mu     sync.RWMutex
	topics []string
}

func (r *registry) indexOf(topic string) int {
	for i, t := range r.topics {
		if t == topic {
			return i
		}
	}
	return -1
}

func (r *registry) contains(topic string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexOf(topic) >= 0
}

// intersect returns the names that are already registered.
func (r *registry) intersect(names []string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for _, n := range names {
		if r.indexOf(n) >= 0 {
			out = append(out, n)
		}
	}
	return out
}

func (r *registry) add(names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range names {
		if r.indexOf(n) < 0 {
			r.topics = append(r.topics, n)
		}
	}
}

func (r *registry) remove(topic string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.indexOf(topic); i >= 0 {
		r.topics = append(r.topics[:i], r.topics[i+1:]...)
	}
}

func (r *registry) clear() {
	r.mu.Lock()
	r.topics = nil
	r.mu.Unlock()
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}

func (r *registry) list() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.topics))
	copy(out, r.topics)
	return out
}
