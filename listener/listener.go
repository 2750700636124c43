// Package listener provides the net.Listener wrappers the API server runs on: one that
// serves TLS and plain HTTP on the same port, and one that survives accept errors.
package listener

import (
	"bufio"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

// DefaultPeekTimeout bounds how long a new connection may take to send its first bytes.
const DefaultPeekTimeout = 10 * time.Second

// connWrapper wraps a net.Conn and reads through a buffered reader holding the peeked bytes
type connWrapper struct {
	net.Conn
	io.Reader
}

func (cw *connWrapper) Read(b []byte) (int, error) {
	return cw.Reader.Read(b)
}

// ProtocolMuxListener wraps net.Listener and inspects each connection to decide between
// TLS and plain HTTP. Without a TLS config every connection is passed through untouched.
// Detection runs on its own goroutine per connection, so a client that never sends its
// first bytes does not hold up the others.
type ProtocolMuxListener struct {
	net.Listener
	TLSConfig   *tls.Config
	PeekTimeout time.Duration

	start   sync.Once
	results chan acceptResult
	done    chan struct{}
	err     error // written before done is closed
}

type acceptResult struct {
	conn net.Conn
	err  error
}

// NewProtocolMuxListener wraps listener. A nil tlsConfig disables the protocol detection.
func NewProtocolMuxListener(listener net.Listener, tlsConfig *tls.Config) *ProtocolMuxListener {
	return &ProtocolMuxListener{
		Listener:    listener,
		TLSConfig:   tlsConfig,
		PeekTimeout: DefaultPeekTimeout,
		results:     make(chan acceptResult),
		done:        make(chan struct{}),
	}
}

// Accept returns the next connection whose protocol has been detected, or the error
// detection failed with.
func (l *ProtocolMuxListener) Accept() (net.Conn, error) {
	if l.TLSConfig == nil {
		rawConnection, err := l.Listener.Accept()
		if err != nil {
			return nil, fmt.Errorf("accepting connection: %w", err)
		}
		return rawConnection, nil
	}

	l.start.Do(func() { go l.acceptLoop() })
	select {
	case result := <-l.results:
		return result.conn, result.err
	case <-l.done:
		return nil, l.err
	}
}

func (l *ProtocolMuxListener) acceptLoop() {
	defer close(l.done)
	for {
		rawConnection, err := l.Listener.Accept()
		if err != nil {
			err = fmt.Errorf("accepting connection: %w", err)
			if errors.Is(err, net.ErrClosed) {
				l.err = err
				return
			}
			l.results <- acceptResult{err: err}
			continue
		}

		go func() {
			conn, err := l.detect(rawConnection)
			select {
			case l.results <- acceptResult{conn: conn, err: err}:
			case <-l.done:
				if conn != nil {
					conn.Close()
				}
			}
		}()
	}
}

// detect peeks the first bytes of rawConnection and completes a TLS handshake when
// they start a TLS record.
func (l *ProtocolMuxListener) detect(rawConnection net.Conn) (net.Conn, error) {
	bufferedReader := bufio.NewReader(rawConnection)
	if err := rawConnection.SetReadDeadline(time.Now().Add(l.PeekTimeout)); err != nil {
		rawConnection.Close()
		return nil, fmt.Errorf("setting read deadline for peek: %w", err)
	}

	peekedBytes, err := bufferedReader.Peek(5)

	if err := rawConnection.SetReadDeadline(time.Time{}); err != nil {
		rawConnection.Close()
		return nil, fmt.Errorf("clearing read deadline after peek: %w", err)
	}
	if err != nil && err != bufio.ErrBufferFull {
		rawConnection.Close()
		return nil, fmt.Errorf("peeking initial bytes: %w", err)
	}

	wrapped := &connWrapper{Conn: rawConnection, Reader: bufferedReader}

	// TLS records start with a handshake content type and a 3.x version.
	if len(peekedBytes) < 2 || peekedBytes[0] != 0x16 || peekedBytes[1] != 0x03 {
		return wrapped, nil
	}

	tlsConn := tls.Server(wrapped, l.TLSConfig)
	if err := rawConnection.SetReadDeadline(time.Now().Add(l.PeekTimeout)); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("setting read deadline for handshake: %w", err)
	}
	if err := tlsConn.Handshake(); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("performing tls handshake: %w", err)
	}
	if err := rawConnection.SetReadDeadline(time.Time{}); err != nil {
		tlsConn.Close()
		return nil, fmt.Errorf("clearing read deadline after handshake: %w", err)
	}
	return tlsConn, nil
}

// ResilientListener wraps net.Listener so that a failed accept of one connection does not
// stop the server. Only a closed listener ends Accept.
type ResilientListener struct {
	net.Listener
	logger  *slog.Logger
	onError func(error)
}

// NewResilientListener wraps listenerToWrap. onError, when set, receives every recovered error.
func NewResilientListener(listenerToWrap net.Listener, logger *slog.Logger, onError func(error)) *ResilientListener {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ResilientListener{Listener: listenerToWrap, logger: logger, onError: onError}
}

func (l *ResilientListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err == nil {
			return conn, nil
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, err
		}

		l.logger.Warn("connection rejected", "error", err)
		if l.onError != nil {
			l.onError(err)
		}
	}
}

// Listen opens a TCP listener on address:port, wrapped for protocol detection and resilience.
func Listen(address, port string, tlsConfig *tls.Config, logger *slog.Logger, onError func(error)) (net.Listener, error) {
	rawListener, err := net.Listen("tcp", net.JoinHostPort(address, port))
	if err != nil {
		return nil, fmt.Errorf("setting up listener on %s:%s: %w", address, port, err)
	}
	muxListener := NewProtocolMuxListener(rawListener, tlsConfig)
	return NewResilientListener(muxListener, logger, onError), nil
}
