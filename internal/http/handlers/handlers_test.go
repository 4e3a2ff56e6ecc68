package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diagnosis/hotel-site/internal/enquiry"
	"github.com/diagnosis/hotel-site/internal/http/handlers"
	"github.com/diagnosis/hotel-site/internal/http/middleware"
	"github.com/diagnosis/hotel-site/internal/notify"
	"github.com/diagnosis/hotel-site/internal/platform/mailer"
	"github.com/diagnosis/hotel-site/internal/repo/memory"
	"github.com/diagnosis/hotel-site/pkg/events"
)

// ---------- Fakes ----------

type fakeTransport struct {
	mu     sync.Mutex
	failOn int // 1-based call that fails, 0 never
	delay  time.Duration
	calls  int
	sent   []mailer.Message
}

func (f *fakeTransport) Send(_ context.Context, msg mailer.Message) (string, error) {
	time.Sleep(f.delay)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls == f.failOn {
		return "", errors.New("dial tcp 127.0.0.1:25: connection refused")
	}
	f.sent = append(f.sent, msg)
	return "msg-id", nil
}

type fakePublisher struct {
	err    error
	events []events.EnquiryReceivedEvent
}

func (p *fakePublisher) Publish(_ context.Context, subject string, data interface{}) error {
	if subject == events.EnquiryReceived {
		p.events = append(p.events, data.(events.EnquiryReceivedEvent))
	}
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

// ---------- Harness ----------

const adminEmail = "admin@hotel.test"

var (
	fixedNow = time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC)
	hotel    = notify.Hotel{Name: "Grand Horizon Hotel", Email: "stay@hotel.test", Phone: "(555) 010-2030"}
)

type env struct {
	transport *fakeTransport
	events    *fakePublisher
	server    http.Handler
}

func newEnv(t *testing.T, opts handlers.RouterOptions) *env {
	t.Helper()

	views := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(views, "home.html"),
		[]byte(`<h1>{{.Hotel.Name}}</h1>{{range .Rooms}}<option value="{{.Value}}">{{.Label}}</option>{{end}}<input min="{{.Today}}">`), 0o644))

	public := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(public, "site.css"), []byte("body{}"), 0o644))

	site, err := handlers.NewSiteHandler(views, public, hotel, time.UTC)
	require.NoError(t, err)

	e := &env{transport: &fakeTransport{}, events: &fakePublisher{}}
	d := notify.NewDispatcher(e.transport, notify.NewRenderer(hotel), adminEmail)
	enq := handlers.NewEnquiryHandler(enquiry.NewValidator(), d, e.events, time.UTC)
	enq.Now = func() time.Time { return fixedNow }

	if opts.AllowedOrigins == nil {
		opts.AllowedOrigins = []string{"http://localhost:3000"}
	}
	e.server = handlers.NewRouter(site, enq, opts)
	return e
}

func validInput() map[string]string {
	return map[string]string{
		"fullName": "Jane Doe",
		"email":    "jane@example.com",
		"phone":    "+1 (555) 123-4567",
		"checkIn":  "2030-06-10",
		"checkOut": "2030-06-12",
		"roomType": "deluxe",
		"message":  "Late arrival",
	}
}

func (e *env) postJSON(t *testing.T, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(string(raw)))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Errors  []enquiry.FieldError `json:"errors"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var out envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

// ---------- Send enquiry ----------

func TestSendEnquirySuccess(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})

	rec := e.postJSON(t, "/send-enquiry", validInput())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, envelope{Success: true, Message: "Enquiry sent successfully!"}, decode(t, rec))

	require.Len(t, e.transport.sent, 2)
	assert.Equal(t, adminEmail, e.transport.sent[0].To)
	assert.Equal(t, "New Booking Enquiry from Jane Doe", e.transport.sent[0].Subject)
	assert.Equal(t, "jane@example.com", e.transport.sent[1].To)
	assert.Contains(t, e.transport.sent[0].Text, "Deluxe Room")

	require.Len(t, e.events.events, 1)
	evt := e.events.events[0]
	assert.NotEmpty(t, evt.Reference)
	assert.Equal(t, "deluxe", evt.RoomType)
	assert.Equal(t, "2030-06-10", evt.CheckIn)
	assert.Contains(t, e.transport.sent[0].Text, evt.Reference)
}

func TestSendEnquiryValidationFailureSendsNothing(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})
	in := validInput()
	in["email"] = "jane@example"

	rec := e.postJSON(t, "/send-enquiry", in)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode(t, rec)
	assert.False(t, out.Success)
	assert.Equal(t, "Please enter a valid email address", out.Message)
	assert.Equal(t, []enquiry.FieldError{{Field: enquiry.FieldEmail, Message: "Please enter a valid email address"}}, out.Errors)
	assert.Zero(t, e.transport.calls)
	assert.Empty(t, e.events.events)
}

func TestSendEnquiryRunsFullRuleSetServerSide(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})
	in := validInput()
	in["phone"] = "12345"
	in["checkIn"] = "2030-05-31"

	rec := e.postJSON(t, "/send-enquiry", in)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "Please enter a valid phone number", out.Message)
	assert.Equal(t, []enquiry.FieldError{
		{Field: enquiry.FieldPhone, Message: "Please enter a valid phone number"},
		{Field: enquiry.FieldCheckIn, Message: "Check-in date must be today or future"},
	}, out.Errors)
	assert.Zero(t, e.transport.calls)
}

func TestSendEnquiryOperatorFailure(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})
	e.transport.failOn = 1

	rec := e.postJSON(t, "/send-enquiry", validInput())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, envelope{Message: "Failed to send enquiry. Please try again later."}, decode(t, rec))
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Equal(t, 1, e.transport.calls)
	assert.Empty(t, e.events.events)
}

func TestSendEnquiryGuestFailureIsStillFailure(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})
	e.transport.failOn = 2

	rec := e.postJSON(t, "/send-enquiry", validInput())

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to send enquiry. Please try again later.", decode(t, rec).Message)
	assert.Equal(t, 2, e.transport.calls)
	require.Len(t, e.transport.sent, 1)
	assert.Equal(t, adminEmail, e.transport.sent[0].To)
}

func TestSendEnquiryFormEncoded(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})
	form := url.Values{}
	for k, v := range validInput() {
		form.Set(k, v)
	}
	req := httptest.NewRequest(http.MethodPost, "/send-enquiry", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()

	e.server.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, e.transport.sent, 2)
}

func TestSendEnquiryInvalidBody(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})

	for name, body := range map[string]string{
		"malformed":  `{"fullName":`,
		"wrong type": `{"fullName": 42}`,
		"empty":      ``,
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/send-enquiry", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			e.server.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, envelope{Message: "Invalid request body"}, decode(t, rec))
		})
	}
	assert.Zero(t, e.transport.calls)
}

func TestSendEnquiryPublishFailureKeepsSuccess(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})
	e.events.err = errors.New("nats: connection closed")

	rec := e.postJSON(t, "/send-enquiry", validInput())

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode(t, rec).Success)
}

func TestSendEnquiryIdempotentReplay(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{Idempotency: memory.NewIdempotencyRepo()})

	first := e.postJSON(t, "/send-enquiry", validInput(), "Idempotency-Key", "form-1")
	second := e.postJSON(t, "/send-enquiry", validInput(), "Idempotency-Key", "form-1")

	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 2, e.transport.calls, "replay sends nothing")
}

func TestSendEnquiryConcurrentDuplicatesSendOnce(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{Idempotency: memory.NewIdempotencyRepo()})
	e.transport.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	codes := make([]int, 3)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = e.postJSON(t, "/send-enquiry", validInput(), "Idempotency-Key", "k").Code
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, code := range codes {
		assert.Contains(t, []int{http.StatusOK, http.StatusConflict}, code)
		if code == http.StatusOK {
			ok++
		}
	}
	assert.GreaterOrEqual(t, ok, 1)
	assert.Len(t, e.transport.sent, 2, "one operator and one guest email in total")
}

func TestSendEnquiryRetryAfterFailureSendsAgain(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{Idempotency: memory.NewIdempotencyRepo()})
	e.transport.failOn = 1

	first := e.postJSON(t, "/send-enquiry", validInput(), "Idempotency-Key", "k")
	second := e.postJSON(t, "/send-enquiry", validInput(), "Idempotency-Key", "k")

	assert.Equal(t, http.StatusInternalServerError, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, 3, e.transport.calls)
}

func TestSendEnquiryRateLimitIgnoresSpoofedForwarding(t *testing.T) {
	rl := middleware.NewRateLimiter(memory.NewRateLimitRepo(), middleware.RateLimitConfig{Requests: 1, Window: time.Minute})
	e := newEnv(t, handlers.RouterOptions{RateLimiter: rl})

	accepted := 0
	for i := 0; i < 10; i++ {
		rec := e.postJSON(t, "/send-enquiry", validInput(), "X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		if rec.Code == http.StatusOK {
			accepted++
		}
	}

	assert.Equal(t, 1, accepted)
	assert.Equal(t, 2, e.transport.calls)
}

func TestSendEnquiryRateLimited(t *testing.T) {
	rl := middleware.NewRateLimiter(memory.NewRateLimitRepo(), middleware.RateLimitConfig{Requests: 1, Window: time.Minute})
	e := newEnv(t, handlers.RouterOptions{RateLimiter: rl})

	assert.Equal(t, http.StatusOK, e.postJSON(t, "/send-enquiry", validInput()).Code)

	rec := e.postJSON(t, "/send-enquiry", validInput())
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Too many requests. Try again later.", decode(t, rec).Message)
	assert.Equal(t, 2, e.transport.calls)

	assert.Equal(t, http.StatusOK, e.postJSON(t, "/validate-enquiry", validInput()).Code, "validation is not throttled")
}

// ---------- Validate enquiry ----------

type validation struct {
	Valid  bool                 `json:"valid"`
	Errors []enquiry.FieldError `json:"errors"`
}

func TestValidateEnquiry(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})

	var ok validation
	rec := e.postJSON(t, "/validate-enquiry", validInput())
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ok))
	assert.True(t, ok.Valid)
	assert.Empty(t, ok.Errors)

	in := validInput()
	in["fullName"] = "Jo"
	in["checkOut"] = "2030-06-10"

	var all validation
	rec = e.postJSON(t, "/validate-enquiry", in)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.False(t, all.Valid)
	assert.Len(t, all.Errors, 2)

	var one validation
	rec = e.postJSON(t, "/validate-enquiry?field=checkOut", in)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &one))
	assert.Equal(t, []enquiry.FieldError{{Field: enquiry.FieldCheckOut, Message: "Check-out must be after check-in"}}, one.Errors)

	assert.Zero(t, e.transport.calls)
}

func TestValidateEnquiryUnknownField(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})

	rec := e.postJSON(t, "/validate-enquiry?field=roomType", validInput())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---------- Site ----------

func TestHomePage(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Grand Horizon Hotel")
	assert.Contains(t, body, `<option value="presidential">Presidential Suite</option>`)
	assert.Contains(t, body, `min="2030-06-01"`)
}

func TestStaticAndNotFound(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})

	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/static/site.css", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "body{}", rec.Body.String())

	rec = httptest.NewRecorder()
	e.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/rooms/penthouse", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "<h1>404 - Page Not Found</h1>", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
}

func TestHealthAndRequestID(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCORSPreflight(t *testing.T) {
	e := newEnv(t, handlers.RouterOptions{})
	req := httptest.NewRequest(http.MethodOptions, "/send-enquiry", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()

	e.server.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, e.transport.calls)
}
