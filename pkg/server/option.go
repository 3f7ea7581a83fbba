package server

import (
	"errors"

	"go.uber.org/zap"

	"github.com/bizflycloud/beebotte-mqtt/pkg/beebotte"
)

type Option func(s *Server) error

// WithAddr returns an Option which set the server listening address.
func WithAddr(addr string) Option {
	return func(s *Server) error {
		s.Addr = addr
		return nil
	}
}

// WithClient returns an Option which set the Beebotte client served by Server.
func WithClient(c *beebotte.Client) Option {
	return func(s *Server) error {
		if c == nil {
			return errors.New("nil client")
		}
		s.client = c
		return nil
	}
}

// WithToken returns an Option which set the channel token used to connect.
func WithToken(token string) Option {
	return func(s *Server) error {
		s.token = token
		return nil
	}
}

// WithSubscribeTopics returns an Option which set the topics subscribed once connected.
func WithSubscribeTopics(topics ...string) Option {
	return func(s *Server) error {
		s.subscribeTopics = topics
		return nil
	}
}

// WithLogger returns an Option which set the logger for Server.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}
