package listener

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// generateTestTLSConfig creates a self-signed TLS configuration for testing purposes.
// It returns a server-side tls.Config and a client-side x509.CertPool that trusts the server's cert.
func generateTestTLSConfig(t *testing.T) (serverTLSConfig *tls.Config, clientTLSConfig *tls.Config) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate private key: %v", err)
	}

	notBefore := time.Now()
	notAfter := notBefore.Add(365 * 24 * time.Hour)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		t.Fatalf("failed to generate serial number: %v", err)
	}

	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Furlong Test"},
		},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		DNSNames:              []string{"localhost"},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}

	keyDer, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("failed to marshal private key: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDer})

	serverCert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("failed to load key pair: %v", err)
	}

	// Create a cert pool for the client, containing our self-signed cert
	clientCertPool := x509.NewCertPool()
	if !clientCertPool.AppendCertsFromPEM(certPEM) {
		t.Fatalf("failed to add server certificate to client cert pool")
	}

	serverTLSConfig = &tls.Config{
		Certificates: []tls.Certificate{serverCert},
	}
	clientTLSConfig = &tls.Config{
		RootCAs: clientCertPool,
	}

	return serverTLSConfig, clientTLSConfig
}

// echoOnce accepts a single connection on l and echoes the first read back.
func echoOnce(l net.Listener) chan error {
	errs := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			errs <- fmt.Errorf("accept failed: %w", err)
			return
		}
		defer conn.Close()

		buffer := make([]byte, 1024)
		n, err := conn.Read(buffer)
		if err != nil && err != io.EOF {
			errs <- fmt.Errorf("server read failed: %w", err)
			return
		}
		if _, err := conn.Write(buffer[:n]); err != nil {
			errs <- fmt.Errorf("server write failed: %w", err)
			return
		}
		close(errs)
	}()
	return errs
}

func roundTrip(t *testing.T, conn net.Conn, want []byte) {
	t.Helper()
	if _, err := conn.Write(want); err != nil {
		t.Fatalf("client write failed: %v", err)
	}
	got := make([]byte, len(want))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("client read failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("\nwanted:\n%q\ngot:\n%q", want, got)
	}
}

func TestProtocolMuxListener(t *testing.T) {
	serverTLS, clientTLS := generateTestTLSConfig(t)
	base, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer base.Close()

	mux := NewProtocolMuxListener(base, serverTLS)
	mux.PeekTimeout = 200 * time.Millisecond

	t.Run("should accept plain connections", func(t *testing.T) {
		errs := echoOnce(mux)
		conn, err := net.Dial("tcp", base.Addr().String())
		if err != nil {
			t.Fatalf("client failed to dial: %v", err)
		}
		defer conn.Close()

		roundTrip(t, conn, []byte("GET /api/races HTTP/1.1"))
		if err := <-errs; err != nil {
			t.Fatalf("server side error: %v", err)
		}
	})

	t.Run("should accept tls connections", func(t *testing.T) {
		errs := echoOnce(mux)
		conn, err := tls.Dial("tcp", base.Addr().String(), clientTLS)
		if err != nil {
			t.Fatalf("client failed to dial: %v", err)
		}
		defer conn.Close()

		roundTrip(t, conn, []byte("odds over tls"))
		if err := <-errs; err != nil {
			t.Fatalf("server side error: %v", err)
		}
	})

	t.Run("should time out silent clients", func(t *testing.T) {
		errs := echoOnce(mux)
		conn, err := net.Dial("tcp", base.Addr().String())
		if err != nil {
			t.Fatalf("client failed to dial: %v", err)
		}
		defer conn.Close()

		err = <-errs
		if err == nil || !strings.Contains(err.Error(), "peeking initial bytes") || !strings.Contains(err.Error(), "i/o timeout") {
			t.Fatalf("\nwanted:\npeek timeout\ngot:\n%v", err)
		}
	})

	t.Run("should report failed handshakes", func(t *testing.T) {
		errs := echoOnce(mux)
		_, err := tls.Dial("tcp", base.Addr().String(), &tls.Config{RootCAs: x509.NewCertPool(), ServerName: "localhost"})
		if err == nil {
			t.Fatalf("\nwanted:\nclient handshake error\ngot:\nnil")
		}

		err = <-errs
		if err == nil || !strings.Contains(err.Error(), "performing tls handshake") {
			t.Fatalf("\nwanted:\nhandshake error\ngot:\n%v", err)
		}
	})

	t.Run("should report short first reads", func(t *testing.T) {
		errs := echoOnce(mux)
		conn, err := net.Dial("tcp", base.Addr().String())
		if err != nil {
			t.Fatalf("client failed to dial: %v", err)
		}
		conn.Write([]byte{0x01, 0x02})
		conn.Close()

		err = <-errs
		if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Fatalf("\nwanted:\nEOF\ngot:\n%v", err)
		}
	})
}

func TestProtocolMuxListener_SilentClient(t *testing.T) {
	serverTLS, _ := generateTestTLSConfig(t)
	base, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	mux := NewProtocolMuxListener(base, serverTLS)
	mux.PeekTimeout = 5 * time.Second
	defer mux.Close()

	t.Run("should not hold up other clients while one stays silent", func(t *testing.T) {
		silent, err := net.Dial("tcp", base.Addr().String())
		if err != nil {
			t.Fatalf("client failed to dial: %v", err)
		}
		defer silent.Close()

		errs := echoOnce(mux)
		conn, err := net.Dial("tcp", base.Addr().String())
		if err != nil {
			t.Fatalf("client failed to dial: %v", err)
		}
		defer conn.Close()

		conn.SetDeadline(time.Now().Add(time.Second))
		roundTrip(t, conn, []byte("GET / HTTP/1.1"))
		if err := <-errs; err != nil {
			t.Fatalf("server side error: %v", err)
		}
	})

	t.Run("should return the close error once closed", func(t *testing.T) {
		mux.Close()

		// The silent client's failed detection may still be queued ahead of the close.
		var err error
		for range 2 {
			if _, err = mux.Accept(); errors.Is(err, net.ErrClosed) {
				break
			}
		}
		if !errors.Is(err, net.ErrClosed) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", net.ErrClosed, err)
		}
	})
}

func TestProtocolMuxListener_WithoutTLS(t *testing.T) {
	base, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer base.Close()

	mux := NewProtocolMuxListener(base, nil)

	t.Run("should pass connections through without waiting for data", func(t *testing.T) {
		accepted := make(chan net.Conn, 1)
		go func() {
			conn, err := mux.Accept()
			if err == nil {
				accepted <- conn
			}
			close(accepted)
		}()

		conn, err := net.Dial("tcp", base.Addr().String())
		if err != nil {
			t.Fatalf("client failed to dial: %v", err)
		}
		defer conn.Close()

		select {
		case server := <-accepted:
			if server == nil {
				t.Fatalf("\nwanted:\nconnection\ngot:\nnil")
			}
			if _, ok := server.(*connWrapper); ok {
				t.Fatalf("\nwanted:\nraw connection\ngot:\n%T", server)
			}
			server.Close()
		case <-time.After(time.Second):
			t.Fatalf("\nwanted:\nimmediate accept\ngot:\ntimeout")
		}
	})
}

// mockListener allows custom methods to be implemented for test cases
type mockListener struct {
	accept func() (net.Conn, error)
}

func (m *mockListener) Accept() (net.Conn, error) { return m.accept() }
func (m *mockListener) Close() error              { return nil }
func (m *mockListener) Addr() net.Addr            { return &net.TCPAddr{} }

func TestResilientListener(t *testing.T) {
	t.Run("should keep accepting after a recoverable error", func(t *testing.T) {
		var attempts atomic.Int32
		var reported []error

		flaky := &mockListener{accept: func() (net.Conn, error) {
			if attempts.Add(1) == 1 {
				return nil, errors.New("tls: first record does not look like a TLS handshake")
			}
			server, client := net.Pipe()
			go func() {
				client.Write([]byte("hello furlong"))
				client.Close()
			}()
			return server, nil
		}}

		l := NewResilientListener(flaky, nil, func(err error) { reported = append(reported, err) })
		conn, err := l.Accept()
		if err != nil {
			t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
		}
		defer conn.Close()

		got := make([]byte, len("hello furlong"))
		if _, err := io.ReadFull(conn, got); err != nil {
			t.Fatalf("reading connection: %v", err)
		}
		if string(got) != "hello furlong" {
			t.Fatalf("\nwanted:\nhello furlong\ngot:\n%q", got)
		}
		if attempts.Load() != 2 || len(reported) != 1 {
			t.Fatalf("\nwanted:\n2 attempts, 1 reported\ngot:\n%d attempts, %d reported", attempts.Load(), len(reported))
		}
	})

	t.Run("should stop on a closed listener", func(t *testing.T) {
		var attempts atomic.Int32
		closed := &mockListener{accept: func() (net.Conn, error) {
			attempts.Add(1)
			return nil, fmt.Errorf("accepting connection: %w", net.ErrClosed)
		}}

		_, err := NewResilientListener(closed, nil, nil).Accept()
		if !errors.Is(err, net.ErrClosed) {
			t.Fatalf("\nwanted:\n%v\ngot:\n%v", net.ErrClosed, err)
		}
		if attempts.Load() != 1 {
			t.Fatalf("\nwanted:\n1\ngot:\n%d", attempts.Load())
		}
	})
}

func TestListen(t *testing.T) {
	l, err := Listen("127.0.0.1", "0", nil, nil, nil)
	if err != nil {
		t.Fatalf("\nwanted:\nnil\ngot:\n%v", err)
	}
	defer l.Close()

	errs := echoOnce(l)
	conn, err := net.Dial("tcp", l.Addr().String())
	if err != nil {
		t.Fatalf("client failed to dial: %v", err)
	}
	defer conn.Close()

	roundTrip(t, conn, []byte("ping"))
	if err := <-errs; err != nil {
		t.Fatalf("server side error: %v", err)
	}

	if _, err := Listen("127.0.0.1", "not-a-port", nil, nil, nil); err == nil {
		t.Fatalf("\nwanted:\nerror\ngot:\nnil")
	}
}
