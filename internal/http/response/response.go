package response

import (
	"encoding/json"
	"net/http"

	"github.com/diagnosis/hotel-site/internal/enquiry"
	"github.com/diagnosis/hotel-site/pkg/logger"
)

// Envelope is the JSON body of every enquiry API response.
type Envelope struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Errors  []enquiry.FieldError `json:"errors,omitempty"`
}

// Messages shown to the guest.
const (
	MsgSent          = "Enquiry sent successfully!"
	MsgSendFailed    = "Failed to send enquiry. Please try again later."
	MsgInvalidBody   = "Invalid request body"
	MsgRateLimited   = "Too many requests. Try again later."
	MsgInternalError = "Something went wrong. Please try again later."
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func Success(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Message: message})
}

func Failure(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, Envelope{Success: false, Message: message})
}

// Invalid reports the first rejection as the message and lists all of them.
func Invalid(w http.ResponseWriter, errs []enquiry.FieldError) {
	msg := MsgInvalidBody
	if len(errs) > 0 {
		msg = errs[0].Message
	}
	WriteJSON(w, http.StatusBadRequest, Envelope{Success: false, Message: msg, Errors: errs})
}

func BadRequest(w http.ResponseWriter, message string) {
	Failure(w, http.StatusBadRequest, message)
}

func InternalError(w http.ResponseWriter, message string) {
	Failure(w, http.StatusInternalServerError, message)
}

func RateLimit(w http.ResponseWriter, message string) {
	Failure(w, http.StatusTooManyRequests, message)
}

// NotFound writes the site's plain HTML 404 page.
func NotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("<h1>404 - Page Not Found</h1>"))
}
