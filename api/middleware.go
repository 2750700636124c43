package api

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/tfkr-ae/furlong"
	"github.com/tfkr-ae/furlong/analyst"
)

// GuestSessionHeader carries the client generated session key of anonymous visitors.
const GuestSessionHeader = "X-Guest-Session"

var (
	errUnauthorized = errors.New("a valid bearer token is required")
	errForbidden    = errors.New("administrator access required")
)

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.NewV7()
		if err != nil {
			id = uuid.New()
		}
		w.Header().Set("X-Request-ID", id.String())
		next.ServeHTTP(w, furlong.ContextWithRequestID(r, id))
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		id, _ := furlong.RequestIDFromContext(r.Context())
		s.logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", rec.status,
			"duration", time.Since(start), "request_id", id)
	})
}

// authenticate resolves the bearer token to a user. Requests without a token are guests,
// keyed by the guest session header or, failing that, the client address.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := s.svc.Config()

		if auth := r.Header.Get("Authorization"); auth != "" {
			token, ok := strings.CutPrefix(auth, "Bearer ")
			userID, known := cfg.UserForToken(strings.TrimSpace(token))
			if !ok || !known {
				writeError(w, s.logger, errUnauthorized)
				return
			}
			r = furlong.ContextWithUserID(r, userID)
			r = furlong.ContextWithAdminFlag(r, cfg.IsAdmin(userID))
			next.ServeHTTP(w, r)
			return
		}

		session := strings.TrimSpace(r.Header.Get(GuestSessionHeader))
		if session == "" {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			session = "addr:" + host
		}
		next.ServeHTTP(w, furlong.ContextWithGuestSession(r, session))
	})
}

func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := furlong.UserIDFromContext(r.Context()); !ok {
			writeError(w, s.logger, errUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := furlong.UserIDFromContext(r.Context()); !ok {
			writeError(w, s.logger, errUnauthorized)
			return
		}
		if admin, _ := furlong.AdminFlagFromContext(r.Context()); !admin {
			writeError(w, s.logger, errForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identity(r *http.Request) analyst.Identity {
	userID, _ := furlong.UserIDFromContext(r.Context())
	session, _ := furlong.GuestSessionFromContext(r.Context())
	return analyst.Identity{UserID: userID, GuestSession: session}
}

func userID(r *http.Request) string {
	id, _ := furlong.UserIDFromContext(r.Context())
	return id
}

// brotliResponseWriter compresses the body of responses that may carry one.
type brotliResponseWriter struct {
	http.ResponseWriter
	writer      io.WriteCloser
	wroteHeader bool
	compress    bool
}

func (w *brotliResponseWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.wroteHeader = true
		if status != http.StatusNoContent && status != http.StatusNotModified {
			w.Header().Set("Content-Encoding", "br")
			w.Header().Del("Content-Length")
			w.compress = true
		}
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *brotliResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	if !w.compress {
		return w.ResponseWriter.Write(b)
	}
	if w.writer == nil {
		w.writer = brotli.NewWriterLevel(w.ResponseWriter, brotli.DefaultCompression)
	}
	return w.writer.Write(b)
}

func (w *brotliResponseWriter) Close() error {
	if !w.compress {
		return nil
	}
	if w.writer == nil {
		// An empty body still needs a valid brotli stream.
		w.writer = brotli.NewWriterLevel(w.ResponseWriter, brotli.DefaultCompression)
	}
	return w.writer.Close()
}

func acceptsBrotli(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		coding, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if strings.EqualFold(coding, "br") && strings.ReplaceAll(params, " ", "") != "q=0" {
			return true
		}
	}
	return false
}

func (s *Server) compress(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Vary", "Accept-Encoding")
		if !acceptsBrotli(r) {
			next.ServeHTTP(w, r)
			return
		}
		bw := &brotliResponseWriter{ResponseWriter: w}
		defer func() {
			if err := bw.Close(); err != nil {
				s.logger.Warn("closing brotli writer", "error", err)
			}
		}()
		next.ServeHTTP(bw, r)
	})
}
