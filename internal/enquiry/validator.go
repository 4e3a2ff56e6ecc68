package enquiry

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	MsgNameRequired   = "Full name is required"
	MsgNameTooShort   = "Must be at least 3 characters"
	MsgEmailRequired  = "Email address is required"
	MsgEmailInvalid   = "Please enter a valid email address"
	MsgPhoneRequired  = "Phone number is required"
	MsgPhoneInvalid   = "Please enter a valid phone number"
	MsgDateInvalid    = "Please enter a valid date"
	MsgCheckInPast    = "Check-in date must be today or future"
	MsgCheckOutBefore = "Check-out must be after check-in"
)

const (
	DateLayout     = "2006-01-02"
	minPhoneLength = 10
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^[0-9\s\-+()]+$`)
)

type rule struct {
	tag     string
	message string
}

var (
	nameRules  = []rule{{"required", MsgNameRequired}, {"min=3", MsgNameTooShort}}
	emailRules = []rule{{"required", MsgEmailRequired}, {"enquiry_email", MsgEmailInvalid}}
	phoneRules = []rule{{"required", MsgPhoneRequired}, {"enquiry_phone", MsgPhoneInvalid}}
	dateRules  = []rule{{"datetime=" + DateLayout, MsgDateInvalid}}
)

// Validator applies the enquiry rules. It is safe for concurrent use.
type Validator struct {
	v *validator.Validate
}

func NewValidator() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("enquiry_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("enquiry_phone", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return phonePattern.MatchString(s) && len(s) >= minPhoneLength
	})
	return &Validator{v: v}
}

var std = NewValidator()

// Validate runs the full rule set with the package validator.
func Validate(in Input, ref time.Time) Result {
	return std.Validate(in, ref)
}

// ValidateField runs a single field's rule with the package validator.
func ValidateField(f Field, in Input, ref time.Time) *FieldError {
	return std.ValidateField(f, in, ref)
}

// Today is the calendar date of ref in ref's own location.
func Today(ref time.Time) string {
	return ref.Format(DateLayout)
}

// Validate evaluates every field independently and reports at most one
// error per field, in Fields order. ref supplies "today" for the
// check-in rule.
func (v *Validator) Validate(in Input, ref time.Time) Result {
	var errs []FieldError
	for _, f := range Fields {
		if fe := v.ValidateField(f, in, ref); fe != nil {
			errs = append(errs, *fe)
		}
	}
	if len(errs) > 0 {
		return Result{Errors: errs}
	}
	return Result{Record: newRecord(in)}
}

// ValidateField evaluates only f. Other fields are read but not judged,
// except that checkOut compares against a well-formed checkIn.
func (v *Validator) ValidateField(f Field, in Input, ref time.Time) *FieldError {
	switch f {
	case FieldFullName:
		return v.apply(f, strings.TrimSpace(in.FullName), nameRules)
	case FieldEmail:
		return v.apply(f, strings.TrimSpace(in.Email), emailRules)
	case FieldPhone:
		return v.apply(f, strings.TrimSpace(in.Phone), phoneRules)
	case FieldCheckIn:
		checkIn := strings.TrimSpace(in.CheckIn)
		if checkIn == "" {
			return nil
		}
		if fe := v.apply(f, checkIn, dateRules); fe != nil {
			return fe
		}
		// ISO dates are zero-padded, so string order is date order.
		if checkIn < Today(ref) {
			return &FieldError{Field: f, Message: MsgCheckInPast}
		}
	case FieldCheckOut:
		checkOut := strings.TrimSpace(in.CheckOut)
		if checkOut == "" {
			return nil
		}
		if fe := v.apply(f, checkOut, dateRules); fe != nil {
			return fe
		}
		checkIn := strings.TrimSpace(in.CheckIn)
		if checkIn == "" || !v.passes(checkIn, dateRules) {
			return nil
		}
		if checkOut <= checkIn {
			return &FieldError{Field: f, Message: MsgCheckOutBefore}
		}
	}
	return nil
}

func (v *Validator) apply(f Field, value string, rules []rule) *FieldError {
	for _, r := range rules {
		if err := v.v.Var(value, r.tag); err != nil {
			return &FieldError{Field: f, Message: r.message}
		}
	}
	return nil
}

func (v *Validator) passes(value string, rules []rule) bool {
	return v.apply("", value, rules) == nil
}

func newRecord(in Input) *Record {
	rt, ok := ParseRoomType(in.RoomType)
	if !ok {
		rt = ""
	}
	return &Record{
		FullName:  strings.TrimSpace(in.FullName),
		Email:     strings.TrimSpace(in.Email),
		Phone:     strings.TrimSpace(in.Phone),
		CheckIn:   strings.TrimSpace(in.CheckIn),
		CheckOut:  strings.TrimSpace(in.CheckOut),
		RoomType:  rt,
		RoomLabel: rt.Label(),
		Message:   strings.TrimSpace(in.Message),
	}
}
