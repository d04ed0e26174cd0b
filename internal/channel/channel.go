// Package channel owns the push socket to a ThingWorx debug target.
//
// A Channel goes through two phases. Dial performs the handshake synchronously:
// it opens the WebSocket, sends the app key and waits for the target's first
// frame, which must report authenticated=true. Only then does the steady-state
// read loop start, decoding every further frame into a Notification. The read
// loop never writes to the socket.
package channel

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	twxerrors "github.com/ctagard/twx-dap/internal/errors"
	"github.com/ctagard/twx-dap/pkg/types"
)

// DebuggerPath is the WebSocket endpoint of the debug server
const DebuggerPath = "/Thingworx/ThingworxDebugger"

const (
	defaultHandshakeTimeout = 10 * time.Second
	closeWriteTimeout       = time.Second
	notificationBuffer      = 64
)

// Channel is an authenticated push connection to a target
type Channel struct {
	conn   *websocket.Conn
	logger *zap.Logger

	notifications chan Notification
	done          chan struct{}
	closeOnce     sync.Once

	err   error
	errMu sync.RWMutex
}

type options struct {
	dialer           *websocket.Dialer
	handshakeTimeout time.Duration
	logger           *zap.Logger
}

// Option configures Dial
type Option func(*options)

// WithHandshakeTimeout bounds how long Dial waits for the authentication reply
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = d
	}
}

// WithInsecureSkipVerify disables TLS verification for self-signed development servers
func WithInsecureSkipVerify() Option {
	return func(o *options) {
		d := *o.dialer
		//nolint:gosec // G402: opt-in for self-signed ThingWorx development servers
		d.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		o.dialer = &d
	}
}

// WithLogger sets the logger for dropped or malformed frames
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// URL returns the push channel URL of a target
func URL(target types.Target) string {
	u := url.URL{
		Scheme: target.WebSocketScheme(),
		Host:   target.Address(),
		Path:   DebuggerPath,
	}
	return u.String()
}

// Dial opens the push channel and authenticates with the target's app key.
// On any handshake failure the socket is closed before returning.
func Dial(ctx context.Context, target types.Target, opts ...Option) (*Channel, error) {
	o := options{
		dialer:           websocket.DefaultDialer,
		handshakeTimeout: defaultHandshakeTimeout,
		logger:           zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithTimeout(ctx, o.handshakeTimeout)
	defer cancel()

	conn, _, err := o.dialer.DialContext(ctx, URL(target), nil)
	if err != nil {
		return nil, twxerrors.SocketDial(err)
	}

	if err := authenticate(ctx, conn, target.AppKey); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := &Channel{
		conn:          conn,
		logger:        o.logger,
		notifications: make(chan Notification, notificationBuffer),
		done:          make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

// authenticate sends the app key and checks the target's first frame
func authenticate(ctx context.Context, conn *websocket.Conn, appKey string) error {
	// Unblock the read below if the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}

	if err := conn.WriteJSON(map[string]string{"appKey": appKey}); err != nil {
		return twxerrors.Transport("send authentication frame", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return twxerrors.HandshakeFailed("no reply from target", ctx.Err())
		}
		return twxerrors.HandshakeFailed("connection closed before reply", err)
	}

	if !gjson.ValidBytes(data) {
		return twxerrors.HandshakeFailed("reply is not valid JSON", nil)
	}
	authenticated := gjson.GetBytes(data, "authenticated")
	if authenticated.Type != gjson.True {
		return twxerrors.HandshakeFailed("target did not authenticate the app key", nil)
	}

	_ = conn.SetWriteDeadline(time.Time{})
	_ = conn.SetReadDeadline(time.Time{})
	return nil
}

// Notifications returns the decoded push messages.
// The channel is closed when the read loop ends; Err tells why.
func (c *Channel) Notifications() <-chan Notification {
	return c.notifications
}

// Err returns the error that ended the read loop, or nil after Close
func (c *Channel) Err() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.err
}

// Close sends a close frame and closes the socket. It is safe to call more than once.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "debugger detached")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		err = c.conn.Close()
	})
	return err
}

func (c *Channel) closing() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Channel) readLoop() {
	defer close(c.notifications)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closing() {
				c.errMu.Lock()
				c.err = errors.Wrap(err, "debugger socket read")
				c.errMu.Unlock()
			}
			return
		}

		n, ok := c.decode(data)
		if !ok {
			continue
		}

		select {
		case c.notifications <- n:
		case <-c.done:
			return
		}
	}
}

// decode applies the two-tier drop policy: malformed frames are logged,
// unknown kinds are ignored quietly
func (c *Channel) decode(data []byte) (Notification, bool) {
	if !gjson.ValidBytes(data) {
		c.logger.Warn("dropping malformed push frame", zap.Int("bytes", len(data)))
		return Notification{}, false
	}

	name := gjson.GetBytes(data, "name").String()
	switch Kind(name) {
	case KindSuspended, KindResumed, KindLog:
	default:
		c.logger.Debug("ignoring push frame", zap.String("name", name))
		return Notification{}, false
	}

	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn("dropping push frame with unexpected fields",
			zap.String("name", name), zap.Error(err))
		return Notification{}, false
	}
	return f.notification(), true
}
