package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/valve"
	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	"github.com/bizflycloud/beebotte-mqtt/pkg/beebotte"
	"github.com/bizflycloud/beebotte-mqtt/pkg/broker"
)

const shutdownTimeout = 20 * time.Second

// Server exposes one Beebotte client over a local HTTP API.
type Server struct {
	Addr            string
	router          *chi.Mux
	client          *beebotte.Client
	token           string
	subscribeTopics []string
	useUnixSock     bool

	// connected is closed once the client is connected and subscribed.
	connected chan struct{}

	// signal chan use for testing.
	testSignalCh chan os.Signal

	logger *zap.Logger
}

// New creates new server instance.
func New(opts ...Option) (*Server, error) {
	s := &Server{connected: make(chan struct{})}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.router = chi.NewRouter()

	if s.logger == nil {
		l, err := zap.NewDevelopment()
		if err != nil {
			return nil, err
		}
		s.logger = l
	}
	if s.client == nil {
		c, err := beebotte.New(beebotte.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		s.client = c
	}

	s.setupRoutes()
	s.useUnixSock = strings.HasPrefix(s.Addr, "unix://")
	s.Addr = strings.TrimPrefix(s.Addr, "unix://")

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Route("/topics", func(r chi.Router) {
		r.Get("/", s.ListTopics)
		r.Post("/", s.Subscribe)
		r.Delete("/", s.Unsubscribe)
	})
	s.router.Post("/publish", s.Publish)
	s.router.Get("/status", s.Status)
}

// SubscribeRequest is the body of POST /topics.
type SubscribeRequest struct {
	Topics []broker.Filter `json:"topics"`
}

// PublishRequest is the body of POST /publish.
type PublishRequest struct {
	Topic   string `json:"topic"`
	Message string `json:"message"`
	QoS     byte   `json:"qos"`
	Retain  bool   `json:"retain"`
}

// PublishResponse is the body answered to POST /publish.
type PublishResponse struct {
	ID uint64 `json:"id"`
}

// Status is the body answered to GET /status.
type Status struct {
	Connected bool `json:"connected"`
	Topics    int  `json:"topics"`
	Pending   int  `json:"pending"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) ListTopics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.client.Topics())
}

func (s *Server) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var set beebotte.TopicSet = beebotte.TopicQoSList(req.Topics)
	if len(req.Topics) == 1 {
		set = beebotte.SingleTopic{Name: req.Topics[0].Topic, QoS: req.Topics[0].QoS}
	}
	if err := s.client.Subscribe(set); err != nil {
		s.writeError(w, statusCode(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.client.Topics())
}

func (s *Server) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var set beebotte.TopicSet
	if topics := r.URL.Query()["topic"]; len(topics) > 0 {
		set = beebotte.Topics(topics...)
	}
	if err := s.client.Unsubscribe(set); err != nil {
		s.writeError(w, statusCode(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.client.Topics())
}

func (s *Server) Publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Topic == "" {
		s.writeError(w, http.StatusBadRequest, beebotte.ErrInvalidTopic)
		return
	}
	id, err := s.client.PublishString(req.Topic, req.Message, req.QoS, req.Retain)
	if err != nil {
		s.writeError(w, statusCode(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, PublishResponse{ID: id})
}

func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, Status{
		Connected: s.client.IsConnected(),
		Topics:    len(s.client.Topics()),
		Pending:   s.client.Pending(),
	})
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, beebotte.ErrInvalidTopic), errors.Is(err, beebotte.ErrInvalidQoS):
		return http.StatusBadRequest
	case errors.Is(err, beebotte.ErrAlreadySubscribed):
		return http.StatusConflict
	case errors.Is(err, beebotte.ErrNotConnected):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.logger.Debug("request failed", zap.Int("code", code), zap.Error(err))
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

// connect connects the client, retrying until it succeeds or ctx is done,
// then starts the network loop and subscribes to the configured topics.
func (s *Server) connect(ctx context.Context) {
	b := &backoff.Backoff{Jitter: true, Max: time.Minute}
	for {
		err := s.client.Connect(s.token, nil, nil)
		if err == nil || errors.Is(err, beebotte.ErrAlreadyConnected) {
			break
		}
		d := b.Duration()
		s.logger.Warn("Connect to Beebotte failed, retrying", zap.Error(err), zap.Duration("after", d))
		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
	}

	if err := s.client.Start(); err != nil && !errors.Is(err, beebotte.ErrAlreadyRunning) {
		s.logger.Error("Start network loop return error", zap.Error(err))
	}
	if len(s.subscribeTopics) > 0 {
		if err := s.client.Subscribe(beebotte.Topics(s.subscribeTopics...)); err != nil {
			s.logger.Error("Subscribe to subscribeTopics return error", zap.Error(err), zap.Strings("subscribeTopics", s.subscribeTopics))
		}
	}
	close(s.connected)
}

func (s *Server) Run() error {
	// Graceful valve shut-off package to manage code preemption and shutdown signaling.
	valv := valve.New()
	baseCtx, cancel := context.WithCancel(valv.Context())
	defer cancel()

	connectDone := make(chan struct{})
	go func() {
		defer close(connectDone)
		s.connect(baseCtx)
	}()

	srv := http.Server{Handler: chi.ServerBaseContext(baseCtx, s.router)}

	c := make(chan os.Signal, 1)
	if s.testSignalCh != nil {
		c = s.testSignalCh
	}
	signal.Notify(c, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(c)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-c
		// signal is a ^C, handle it
		s.logger.Info("shutting down...")
		cancel()

		// first valv
		if err := valv.Shutdown(shutdownTimeout); err != nil {
			s.logger.Error("failed to shutdown valv")
		}

		ctx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelShutdown()

		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown http server", zap.Error(err))
		}

		<-connectDone
		if err := s.client.Close(); err != nil {
			s.logger.Error("failed to close beebotte client", zap.Error(err))
		}
	}()

	var err error
	if s.useUnixSock {
		_ = os.Remove(s.Addr)
		var unixListener net.Listener
		unixListener, err = net.Listen("unix", s.Addr)
		if err == nil {
			err = srv.Serve(unixListener)
		}
	} else {
		srv.Addr = s.Addr
		err = srv.ListenAndServe()
	}
	if !errors.Is(err, http.ErrServerClosed) {
		cancel()
		<-connectDone
		_ = s.client.Close()
		return err
	}
	<-shutdownDone
	return err
}

// Connected is closed once the client is connected and the configured
// topics are subscribed.
func (s *Server) Connected() <-chan struct{} {
	return s.connected
}
