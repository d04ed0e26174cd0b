package dap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/google/go-dap"
	"go.uber.org/zap"

	"github.com/ctagard/twx-dap/internal/config"
)

// maxConsecutiveErrors stops a read loop that keeps failing on the same stream
const maxConsecutiveErrors = 5

// Server feeds frontend requests into one Session per connection
type Server struct {
	cfg     *config.Config
	logger  *zap.Logger
	connect Connector
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithServerLogger sets the server logger
func WithServerLogger(logger *zap.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithServerConnector replaces the connector handed to every session
func WithServerConnector(connect Connector) ServerOption {
	return func(s *Server) {
		s.connect = connect
	}
}

// NewServer creates a server
func NewServer(cfg *config.Config, opts ...ServerOption) *Server {
	s := &Server{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeStdio serves a single frontend on the given streams until it hangs up
func (s *Server) ServeStdio(ctx context.Context, stdin io.ReadCloser, stdout io.WriteCloser) error {
	return s.ServeTransport(ctx, NewStdioTransport(stdin, stdout))
}

// ListenAndServe accepts frontends on a TCP address, one session per connection
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	s.logger.Info("listening for debug frontends", zap.String("addr", ln.Addr().String()))

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			remote := conn.RemoteAddr().String()
			s.logger.Info("frontend connected", zap.String("remote", remote))
			if err := s.ServeTransport(ctx, NewTransport(conn)); err != nil {
				s.logger.Warn("frontend connection ended with error", zap.String("remote", remote), zap.Error(err))
			}
		}()
	}
}

// ServeTransport runs the read loop of one frontend connection. Every request is
// handled on its own goroutine; responses are written in completion order.
func (s *Server) ServeTransport(ctx context.Context, t *Transport) error {
	opts := []SessionOption{WithLogger(s.logger)}
	if s.connect != nil {
		opts = append(opts, WithConnector(s.connect))
	}
	session := NewSession(s.cfg, t, opts...)

	// Cancelling ctx also closes the stream, which unblocks Receive.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	context.AfterFunc(ctx, func() { _ = t.Close() })

	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		session.Close()
	}()

	consecutiveErrors := 0
	for {
		msg, err := t.Receive()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
				s.logger.Debug("frontend stream closed", zap.String("session", session.ID))
				return nil
			}

			var fieldErr *dap.DecodeProtocolMessageFieldError
			if errors.As(err, &fieldErr) && fieldErr.SubType == "request" {
				consecutiveErrors = 0
				session.emit(session.RejectUnknown(fieldErr.Seq, fieldErr.FieldValue))
				continue
			}

			consecutiveErrors++
			s.logger.Warn("unreadable frontend message",
				zap.Int("attempt", consecutiveErrors), zap.Int("max", maxConsecutiveErrors), zap.Error(err))
			if consecutiveErrors >= maxConsecutiveErrors {
				return fmt.Errorf("too many consecutive read errors: %w", err)
			}
			continue
		}
		consecutiveErrors = 0

		req, ok := msg.(dap.RequestMessage)
		if !ok {
			s.logger.Debug("ignoring non-request message from frontend", zap.String("type", fmt.Sprintf("%T", msg)))
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			session.Serve(ctx, req)
		}()
	}
}
