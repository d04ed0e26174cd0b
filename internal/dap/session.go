package dap

import (
	"context"
	"sync"
	"time"

	"github.com/google/go-dap"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ctagard/twx-dap/internal/channel"
	"github.com/ctagard/twx-dap/internal/config"
	twxerrors "github.com/ctagard/twx-dap/internal/errors"
	"github.com/ctagard/twx-dap/internal/remote"
	"github.com/ctagard/twx-dap/pkg/types"
)

// disconnectGrace bounds the best-effort disconnect issued when a session is closed
const disconnectGrace = 5 * time.Second

// PushChannel is the part of channel.Channel a session consumes
type PushChannel interface {
	Notifications() <-chan channel.Notification
	Err() error
	Close() error
}

// Connector opens the authenticated push channel to a target and returns a
// remote client bound to the same target
type Connector func(ctx context.Context, target types.Target) (remote.Invoker, PushChannel, error)

// Session is one debugging connection between a frontend and a ThingWorx target
type Session struct {
	ID string

	cfg       *config.Config
	logger    *zap.Logger
	sender    Sender
	connect   Connector
	pathStyle config.PathStyle

	frames  *FrameThreadIndex
	cancels *CancellationRegistry

	mu         sync.RWMutex
	status     types.SessionStatus
	target     types.Target
	attachedAt time.Time
	remote     remote.Invoker
	channel    PushChannel
	attempted  bool
	detaching  bool          // a disconnect arrived while authenticating
	settled    chan struct{} // closed when the current attach attempt concludes
}

// SessionOption configures a Session
type SessionOption func(*Session)

// WithLogger sets the session logger
func WithLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithConnector replaces the connector used by attach
func WithConnector(connect Connector) SessionOption {
	return func(s *Session) {
		s.connect = connect
	}
}

// NewSession creates a disconnected session that reports to sender
func NewSession(cfg *config.Config, sender Sender, opts ...SessionOption) *Session {
	s := &Session{
		ID:        uuid.New().String(),
		cfg:       cfg,
		logger:    zap.NewNop(),
		sender:    sender,
		pathStyle: resolvePathStyle(cfg.PathStyle),
		frames:    NewFrameThreadIndex(),
		cancels:   NewCancellationRegistry(),
		status:    types.SessionStatusDisconnected,
		settled:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("session", s.ID))
	if s.connect == nil {
		s.connect = DefaultConnector(cfg, s.logger)
	}
	return s
}

// DefaultConnector dials the real push channel and builds an HTTP remote client
func DefaultConnector(cfg *config.Config, logger *zap.Logger) Connector {
	return func(ctx context.Context, target types.Target) (remote.Invoker, PushChannel, error) {
		chOpts := []channel.Option{
			channel.WithHandshakeTimeout(cfg.HandshakeDeadline()),
			channel.WithLogger(logger),
		}
		rcOpts := []remote.Option{remote.WithLogger(logger)}
		if cfg.InsecureSkipVerify {
			chOpts = append(chOpts, channel.WithInsecureSkipVerify())
			rcOpts = append(rcOpts, remote.WithInsecureSkipVerify())
		}

		ch, err := channel.Dial(ctx, target, chOpts...)
		if err != nil {
			return nil, nil, err
		}
		return remote.NewClient(target, rcOpts...), ch, nil
	}
}

// Status returns the connection state
func (s *Session) Status() types.SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Info returns a snapshot of the session
func (s *Session) Info() types.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := types.SessionInfo{
		SessionID:   s.ID,
		Status:      s.status,
		KnownFrames: s.frames.Len(),
	}
	if s.status != types.SessionStatusDisconnected {
		info.Target = s.target.String()
		info.AttachedAt = s.attachedAt
	}
	return info
}

// Frames exposes the frame to thread index
func (s *Session) Frames() *FrameThreadIndex {
	return s.frames
}

// attach runs the handshake and the connectDebugger call.
// Requests queued behind the attempt are released when it concludes.
func (s *Session) attach(ctx context.Context, target types.Target) error {
	s.mu.Lock()
	if s.status != types.SessionStatusDisconnected {
		current := s.target.String()
		s.mu.Unlock()
		return twxerrors.AlreadyAttached(current)
	}
	if s.attempted {
		s.settled = make(chan struct{})
	}
	s.attempted = true
	s.status = types.SessionStatusAuthenticating
	s.target = target
	settled := s.settled
	s.mu.Unlock()

	logger := s.logger.With(zap.Stringer("target", target))
	logger.Info("attaching to debug server")

	invoker, ch, err := s.connect(ctx, target)
	if err == nil {
		if _, err = invoker.Invoke(ctx, remote.ServiceConnectDebugger, remote.Args{}); err != nil {
			_ = ch.Close()
		}
	}

	s.mu.Lock()
	abandoned := err == nil && s.detaching
	s.detaching = false
	switch {
	case err != nil:
		s.status = types.SessionStatusDisconnected
		close(settled)
	case abandoned:
		s.status = types.SessionStatusTerminating
	default:
		s.status = types.SessionStatusAttached
		s.remote = invoker
		s.channel = ch
		s.attachedAt = time.Now()
		s.frames.Reset()
		close(settled)
	}
	s.mu.Unlock()

	if err != nil {
		logger.Warn("attach failed", zap.Error(err))
		return err
	}

	if abandoned {
		// The frontend already asked to disconnect; the waiting disconnect is
		// released once the target has been told.
		logger.Info("disconnect requested while attaching; detaching")
		if err := s.release(ctx, invoker, ch); err != nil {
			logger.Warn("target did not acknowledge disconnect", zap.Error(err))
		}
		s.mu.Lock()
		s.teardownLocked()
		close(settled)
		s.mu.Unlock()
		return twxerrors.Wrap(twxerrors.CodeCancelled, "attach abandoned by disconnect", "", nil)
	}

	logger.Info("attached to debug server")
	go s.pump(ch)
	return nil
}

// disconnect notifies the target and closes the push channel.
// The channel is closed even when the notification fails. A disconnect during
// an attach waits for the attempt, which then detaches instead of attaching.
func (s *Session) disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.status == types.SessionStatusAuthenticating {
		s.detaching = true
		settled := s.settled
		s.mu.Unlock()

		select {
		case <-settled:
			return nil
		case <-ctx.Done():
			return twxerrors.Timeout("waiting for attach before disconnect", ctx.Err())
		}
	}
	if s.status != types.SessionStatusAttached {
		s.mu.Unlock()
		return nil
	}
	s.status = types.SessionStatusTerminating
	invoker, ch := s.remote, s.channel
	s.mu.Unlock()

	err := s.release(ctx, invoker, ch)

	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("target did not acknowledge disconnect", zap.Error(err))
		return err
	}
	s.logger.Info("detached from debug server")
	return nil
}

// release tells the target to stop debugging and closes the push channel
func (s *Session) release(ctx context.Context, invoker remote.Invoker, ch PushChannel) error {
	_, err := invoker.Invoke(ctx, remote.ServiceDisconnectDebugger, remote.Args{})
	if closeErr := ch.Close(); closeErr != nil {
		s.logger.Debug("closing debugger socket", zap.Error(closeErr))
	}
	return err
}

// teardownLocked drops the connection state; s.mu must be held
func (s *Session) teardownLocked() {
	s.status = types.SessionStatusDisconnected
	s.remote = nil
	s.channel = nil
	s.attachedAt = time.Time{}
	s.frames.Reset()
}

// Close detaches from the target if still attached
func (s *Session) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), disconnectGrace)
	defer cancel()
	if err := s.disconnect(ctx); err != nil {
		s.logger.Warn("failed to detach while closing session", zap.Error(err))
	}
}

// remoteFor returns the remote client for a target-bound request.
// Queueable requests issued before the first attach, and any request issued while
// an attach is in flight, wait for the attempt to conclude.
func (s *Session) remoteFor(ctx context.Context, command string, queueable bool) (remote.Invoker, error) {
	for {
		s.mu.RLock()
		status, invoker, settled, attempted := s.status, s.remote, s.settled, s.attempted
		s.mu.RUnlock()

		switch {
		case status == types.SessionStatusAttached:
			return invoker, nil
		case status == types.SessionStatusAuthenticating, queueable && !attempted:
			select {
			case <-settled:
			case <-ctx.Done():
				return nil, twxerrors.Timeout("waiting for attach before "+command, ctx.Err())
			}
		default:
			return nil, twxerrors.NotAttached(command)
		}
	}
}

// pump re-emits push notifications until the channel ends
func (s *Session) pump(ch PushChannel) {
	for n := range ch.Notifications() {
		if ev := notificationEvent(n); ev != nil {
			s.emit(ev)
		}
	}

	err := ch.Err()
	if err == nil {
		return
	}

	if !s.cfg.TerminateOnChannelLoss() {
		s.logger.Warn("debugger socket lost; no further events will arrive", zap.Error(err))
		return
	}

	s.mu.Lock()
	if s.channel != ch {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.mu.Unlock()

	s.logger.Error("debugger socket lost; terminating session", zap.Error(err))
	s.emit(&dap.TerminatedEvent{Event: newEvent("terminated")})
}

func (s *Session) emit(msg dap.Message) {
	if err := s.sender.Send(msg); err != nil {
		s.logger.Warn("failed to send message to frontend", zap.Error(err))
	}
}
