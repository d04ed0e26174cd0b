// Package dap implements the Debug Adapter Protocol side of the ThingWorx debug adapter.
//
// DAP is a protocol used to communicate between a development tool (like an IDE)
// and a debugger. This package provides:
//   - Transport: DAP message framing towards the frontend over stdio or TCP
//   - Session: translation of DAP requests into BMDebugServer remote calls and of
//     push notifications into DAP events
//   - Server: the read loop that feeds frontend requests into a Session
//
// The protocol is described at: https://microsoft.github.io/debug-adapter-protocol/
package dap

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/google/go-dap"
)

// Sender delivers messages to the frontend
type Sender interface {
	Send(msg dap.Message) error
}

// Transport handles communication with a DAP frontend
type Transport struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader
	writer *bufio.Writer
	mu     sync.Mutex
	seq    int
}

// NewTransport creates a transport over a bidirectional stream such as a TCP connection
func NewTransport(conn io.ReadWriteCloser) *Transport {
	return &Transport{
		conn:   conn,
		reader: bufio.NewReader(conn),
		writer: bufio.NewWriter(conn),
		seq:    1,
	}
}

// NewStdioTransport creates a transport using stdio streams
func NewStdioTransport(stdin io.ReadCloser, stdout io.WriteCloser) *Transport {
	rwc := &stdioRWC{
		reader: stdin,
		writer: stdout,
	}
	return NewTransport(rwc)
}

type stdioRWC struct {
	reader io.ReadCloser
	writer io.WriteCloser
}

func (s *stdioRWC) Read(p []byte) (n int, err error) {
	return s.reader.Read(p)
}

func (s *stdioRWC) Write(p []byte) (n int, err error) {
	return s.writer.Write(p)
}

func (s *stdioRWC) Close() error {
	err1 := s.reader.Close()
	err2 := s.writer.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// Send stamps the next sequence number on a response or event and writes it
func (t *Transport) Send(msg dap.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch m := msg.(type) {
	case dap.ResponseMessage:
		m.GetResponse().Seq = t.seq
	case dap.EventMessage:
		m.GetEvent().Seq = t.seq
	}
	t.seq++

	if err := dap.WriteProtocolMessage(t.writer, msg); err != nil {
		return fmt.Errorf("failed to write DAP message: %w", err)
	}

	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush DAP message: %w", err)
	}

	return nil
}

// Receive receives a DAP message
func (t *Transport) Receive() (dap.Message, error) {
	msg, err := dap.ReadProtocolMessage(t.reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read DAP message: %w", err)
	}
	return msg, nil
}

// Close closes the transport
func (t *Transport) Close() error {
	return t.conn.Close()
}
