// Package enquiry holds the booking-enquiry model and the rule set that
// decides whether a submission may be forwarded to hotel staff.
package enquiry

import "strings"

// Field names match the form control ids and the JSON keys.
type Field string

const (
	FieldFullName Field = "fullName"
	FieldEmail    Field = "email"
	FieldPhone    Field = "phone"
	FieldCheckIn  Field = "checkIn"
	FieldCheckOut Field = "checkOut"
)

// Fields is the order in which rules run and errors are reported.
var Fields = []Field{FieldFullName, FieldEmail, FieldPhone, FieldCheckIn, FieldCheckOut}

func ParseField(s string) (Field, bool) {
	for _, f := range Fields {
		if string(f) == s {
			return f, true
		}
	}
	return "", false
}

type RoomType string

const (
	RoomDeluxe       RoomType = "deluxe"
	RoomExecutive    RoomType = "executive"
	RoomPresidential RoomType = "presidential"
)

const (
	RoomNotSelected = "Not selected"
	NotSpecified    = "Not specified"
	NoMessage       = "No message provided"
)

// RoomTypes lists the bookable rooms in display order.
var RoomTypes = []RoomType{RoomDeluxe, RoomExecutive, RoomPresidential}

var roomLabels = map[RoomType]string{
	RoomDeluxe:       "Deluxe Room",
	RoomExecutive:    "Executive Suite",
	RoomPresidential: "Presidential Suite",
}

func ParseRoomType(s string) (RoomType, bool) {
	rt := RoomType(strings.ToLower(strings.TrimSpace(s)))
	_, ok := roomLabels[rt]
	return rt, ok
}

func (rt RoomType) Label() string {
	if label, ok := roomLabels[rt]; ok {
		return label
	}
	return RoomNotSelected
}

// RoomLabel resolves a submitted room key to its display label.
func RoomLabel(key string) string {
	rt, _ := ParseRoomType(key)
	return rt.Label()
}

// Input is a submission exactly as received; nothing in it is trusted.
type Input struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	CheckIn  string `json:"checkIn"`
	CheckOut string `json:"checkOut"`
	RoomType string `json:"roomType"`
	Message  string `json:"message"`
}

// Get returns the raw value submitted for a validated field.
func (in Input) Get(f Field) string {
	switch f {
	case FieldFullName:
		return in.FullName
	case FieldEmail:
		return in.Email
	case FieldPhone:
		return in.Phone
	case FieldCheckIn:
		return in.CheckIn
	case FieldCheckOut:
		return in.CheckOut
	}
	return ""
}

type FieldError struct {
	Field   Field  `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return string(e.Field) + ": " + e.Message
}

// Record is an accepted enquiry. It lives for one request only.
type Record struct {
	Reference string
	FullName  string
	Email     string
	Phone     string
	CheckIn   string // empty when not supplied
	CheckOut  string // empty when not supplied
	RoomType  RoomType
	RoomLabel string
	Message   string
}

// Result carries either an accepted Record or the rejection errors, never both.
type Result struct {
	Record *Record
	Errors []FieldError
}

func (r Result) Accepted() bool {
	return r.Record != nil
}

// First returns the earliest error in field order.
func (r Result) First() (FieldError, bool) {
	if len(r.Errors) == 0 {
		return FieldError{}, false
	}
	return r.Errors[0], true
}

// Failed lists the rejected field names, for logging without field values.
func (r Result) Failed() []string {
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, string(e.Field))
	}
	return out
}
