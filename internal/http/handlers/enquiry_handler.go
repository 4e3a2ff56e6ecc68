package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/diagnosis/hotel-site/internal/enquiry"
	"github.com/diagnosis/hotel-site/internal/http/response"
	"github.com/diagnosis/hotel-site/internal/notify"
	"github.com/diagnosis/hotel-site/pkg/events"
	"github.com/diagnosis/hotel-site/pkg/logger"
)

const maxBodyBytes = 64 << 10

type EnquiryHandler struct {
	Validator  *enquiry.Validator
	Dispatcher *notify.Dispatcher
	Events     events.Publisher
	Location   *time.Location
	Now        func() time.Time
}

func NewEnquiryHandler(v *enquiry.Validator, d *notify.Dispatcher, pub events.Publisher, loc *time.Location) *EnquiryHandler {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &EnquiryHandler{
		Validator:  v,
		Dispatcher: d,
		Events:     pub,
		Location:   loc,
		Now:        time.Now,
	}
}

// ref is "now" in the hotel's zone; the check-in rule compares against its date.
func (h *EnquiryHandler) ref() time.Time {
	return h.Now().In(h.Location)
}

// SendEnquiry validates a submission and, when accepted, notifies staff and
// the guest.
func (h *EnquiryHandler) SendEnquiry(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(w, r)
	if err != nil {
		logger.InfoContext(r.Context(), "Rejected enquiry body", "error", err)
		response.BadRequest(w, response.MsgInvalidBody)
		return
	}

	res := h.Validator.Validate(in, h.ref())
	if !res.Accepted() {
		logger.InfoContext(r.Context(), "Enquiry failed validation", "fields", res.Failed())
		response.Invalid(w, res.Errors)
		return
	}

	rec := res.Record
	rec.Reference = uuid.NewString()
	ctx := context.WithValue(r.Context(), logger.EnquiryIDKey, rec.Reference)

	out := h.Dispatcher.Dispatch(ctx, rec)
	if !out.Delivered {
		logger.ErrorContext(ctx, "Failed to send enquiry", "error", out.ErrorDetail, "sent", out.Sent)
		response.InternalError(w, response.MsgSendFailed)
		return
	}

	logger.InfoContext(ctx, "Enquiry sent", "room_type", string(rec.RoomType))
	response.Success(w, response.MsgSent)

	h.publish(ctx, rec)
}

func (h *EnquiryHandler) publish(ctx context.Context, rec *enquiry.Record) {
	evt := events.EnquiryReceivedEvent{
		Reference:  rec.Reference,
		RoomType:   string(rec.RoomType),
		CheckIn:    rec.CheckIn,
		CheckOut:   rec.CheckOut,
		ReceivedAt: h.Now().UTC(),
	}
	if err := h.Events.Publish(ctx, events.EnquiryReceived, evt); err != nil {
		logger.WarnContext(ctx, "Failed to publish enquiry event", "error", err)
	}
}

type validationResult struct {
	Valid  bool                 `json:"valid"`
	Errors []enquiry.FieldError `json:"errors"`
}

// ValidateEnquiry runs the rule set without sending anything. With
// ?field=<name> only that field is judged.
func (h *EnquiryHandler) ValidateEnquiry(w http.ResponseWriter, r *http.Request) {
	in, err := decodeInput(w, r)
	if err != nil {
		response.BadRequest(w, response.MsgInvalidBody)
		return
	}

	out := validationResult{Errors: []enquiry.FieldError{}}

	if name := r.URL.Query().Get("field"); name != "" {
		f, ok := enquiry.ParseField(name)
		if !ok {
			response.BadRequest(w, fmt.Sprintf("Unknown field %q", name))
			return
		}
		if fe := h.Validator.ValidateField(f, in, h.ref()); fe != nil {
			out.Errors = append(out.Errors, *fe)
		}
	} else {
		out.Errors = append(out.Errors, h.Validator.Validate(in, h.ref()).Errors...)
	}

	out.Valid = len(out.Errors) == 0
	response.WriteJSON(w, http.StatusOK, out)
}

var errEmptyBody = errors.New("empty body")

// decodeInput reads JSON, or form values for urlencoded and multipart posts.
func decodeInput(w http.ResponseWriter, r *http.Request) (enquiry.Input, error) {
	var in enquiry.Input
	if r.Body == nil || r.Body == http.NoBody {
		return in, errEmptyBody
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if mediaType == "multipart/form-data" {
			if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
				return in, err
			}
		} else if err := r.ParseForm(); err != nil {
			return in, err
		}
		in = enquiry.Input{
			FullName: r.PostFormValue("fullName"),
			Email:    r.PostFormValue("email"),
			Phone:    r.PostFormValue("phone"),
			CheckIn:  r.PostFormValue("checkIn"),
			CheckOut: r.PostFormValue("checkOut"),
			RoomType: r.PostFormValue("roomType"),
			Message:  r.PostFormValue("message"),
		}
		return in, nil
	default:
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			return in, err
		}
		return in, nil
	}
}
