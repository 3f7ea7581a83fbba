package beebotte

import "errors"

var (
	// ErrNotConnected is returned when an operation needs a transport but
	// Connect has not been called, or Disconnect already released it.
	ErrNotConnected = errors.New("beebotte: not connected")

	// ErrAlreadyConnected is returned by Connect when a transport exists.
	ErrAlreadyConnected = errors.New("beebotte: already connected")

	// ErrConnectionFailed wraps the transport error of a failed Connect.
	ErrConnectionFailed = errors.New("beebotte: connection failed")

	// ErrAlreadySubscribed is returned by a multi-topic Subscribe when any
	// topic of the batch is already subscribed.
	ErrAlreadySubscribed = errors.New("beebotte: topics already subscribed")

	// ErrSubscribeFailed wraps the transport error of a rejected Subscribe.
	ErrSubscribeFailed = errors.New("beebotte: subscribe failed")

	// ErrUnsubscribeFailed wraps the transport errors of a rejected Unsubscribe.
	ErrUnsubscribeFailed = errors.New("beebotte: unsubscribe failed")

	// ErrInvalidTopic is returned for an empty topic name or an empty topic list.
	ErrInvalidTopic = errors.New("beebotte: invalid topic")

	// ErrInvalidQoS is returned when a QoS level is not 0, 1 or 2.
	ErrInvalidQoS = errors.New("beebotte: invalid QoS level (must be 0, 1, or 2)")

	// ErrAlreadyRunning is returned by Start while a network loop is alive.
	ErrAlreadyRunning = errors.New("beebotte: network loop already running")
)
