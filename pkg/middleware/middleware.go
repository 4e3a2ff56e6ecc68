package middleware

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/diagnosis/hotel-site/pkg/logger"
)

// RequestID adds a unique request ID to each request
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), logger.RequestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Logging logs HTTP requests with structured logging
func Logging(next http.Handler) http.Handler {
	return middleware.RequestLogger(&StructuredLogger{})(next)
}

type StructuredLogger struct{}

func (l *StructuredLogger) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &StructuredLogEntry{request: r}
}

type StructuredLogEntry struct {
	request *http.Request
}

func (l *StructuredLogEntry) Write(status, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	logger.InfoContext(l.request.Context(), "HTTP request completed",
		"method", l.request.Method,
		"path", l.request.URL.Path,
		"status", status,
		"bytes", bytes,
		"elapsed_ms", elapsed.Milliseconds(),
		"user_agent", l.request.UserAgent(),
		"remote_addr", l.request.RemoteAddr,
	)
}

func (l *StructuredLogEntry) Panic(v interface{}, stack []byte) {
	logger.ErrorContext(l.request.Context(), "HTTP request panic",
		"panic", v,
		"stack", string(stack),
		"method", l.request.Method,
		"path", l.request.URL.Path,
	)
}

// Recoverer turns a handler panic into a 500 JSON envelope and reports it
// through the request's log entry. A response that already started is left
// as is.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			if entry := middleware.GetLogEntry(r); entry != nil {
				entry.Panic(rvr, debug.Stack())
			} else {
				logger.ErrorContext(r.Context(), "HTTP request panic", "panic", rvr, "stack", string(debug.Stack()))
			}

			if ww.Status() != 0 || ww.BytesWritten() > 0 {
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"success":false,"message":"Something went wrong. Please try again later."}` + "\n"))
		}()

		next.ServeHTTP(ww, r)
	})
}

// ServiceName adds service name to context for logging
func ServiceName(name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), logger.ServiceKey, name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Health provides health check endpoint
func Health(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok","timestamp":"` + time.Now().UTC().Format(time.RFC3339) + `"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// IdempotencyStore keeps replayable response bodies. Get returns "" for an
// unknown key. Reserve stores value only when key is absent or expired and
// reports whether it did. Release deletes key only while it still holds value.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, error)
	Reserve(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Release(ctx context.Context, key, value string) error
}

const (
	IdempotencyTTL = 24 * time.Hour
	// Bounds how long a crashed request can hold its key.
	IdempotencyLockTTL = 2 * time.Minute
	// Marks a key whose request is still running. Never valid JSON.
	IdempotencyPending = "\x00pending"
)

// IdempotencyMiddleware replays the body of an earlier 2xx response when a
// POST repeats its Idempotency-Key. The key is reserved before the handler
// runs, so a duplicate arriving mid-flight gets 409 instead of a second
// send. Failed attempts drop the reservation and may be retried.
func IdempotencyMiddleware(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("Idempotency-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			// Hash the key for privacy
			hashedKey := fmt.Sprintf("idempotency:%x", sha256.Sum256([]byte(key)))

			existing, err := store.Get(ctx, hashedKey)
			if err != nil {
				logger.WarnContext(ctx, "Idempotency lookup failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if existing != "" {
				answerDuplicate(w, r, existing)
				return
			}

			reserved, err := store.Reserve(ctx, hashedKey, IdempotencyPending, IdempotencyLockTTL)
			if err != nil {
				logger.WarnContext(ctx, "Idempotency reservation failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				existing, _ = store.Get(ctx, hashedKey)
				answerDuplicate(w, r, existing)
				return
			}

			completed := false
			defer func() {
				if completed {
					return
				}
				if err := store.Release(context.WithoutCancel(ctx), hashedKey, IdempotencyPending); err != nil {
					logger.WarnContext(ctx, "Idempotency release failed", "error", err)
				}
			}()

			recorder := &responseRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)

			status := recorder.statusCode
			if status == 0 {
				status = http.StatusOK
			}
			if status >= 200 && status < 300 && len(recorder.body) > 0 {
				if err := store.Set(ctx, hashedKey, string(recorder.body), IdempotencyTTL); err != nil {
					logger.WarnContext(ctx, "Idempotency store failed", "error", err)
					return
				}
				completed = true
			}
		})
	}
}

// answerDuplicate replays a finished response or reports one still running.
func answerDuplicate(w http.ResponseWriter, r *http.Request, existing string) {
	w.Header().Set("Content-Type", "application/json")
	if existing == "" || existing == IdempotencyPending {
		logger.InfoContext(r.Context(), "Duplicate enquiry while first is in flight")
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"success":false,"message":"This enquiry is already being sent. Please wait."}` + "\n"))
		return
	}
	logger.InfoContext(r.Context(), "Replaying idempotent response")
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(existing))
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       []byte
}

func (r *responseRecorder) WriteHeader(statusCode int) {
	if r.statusCode == 0 {
		r.statusCode = statusCode
	}
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *responseRecorder) Write(body []byte) (int, error) {
	r.body = append(r.body, body...)
	return r.ResponseWriter.Write(body)
}
