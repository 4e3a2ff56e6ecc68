package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/diagnosis/hotel-site/internal/enquiry"
	"github.com/diagnosis/hotel-site/internal/platform/mailer"
)

// Hotel is the contact block printed in guest confirmations.
type Hotel struct {
	Name    string
	Email   string
	Phone   string
	Address string
	Website string
}

type view struct {
	Hotel     Hotel
	Reference string
	FullName  string
	Email     string
	Phone     string
	CheckIn   string
	CheckOut  string
	Room      string
	Message   string
}

func newView(h Hotel, rec *enquiry.Record) view {
	return view{
		Hotel:     h,
		Reference: rec.Reference,
		FullName:  rec.FullName,
		Email:     rec.Email,
		Phone:     orDefault(rec.Phone, enquiry.NotSpecified),
		CheckIn:   orDefault(rec.CheckIn, enquiry.NotSpecified),
		CheckOut:  orDefault(rec.CheckOut, enquiry.NotSpecified),
		Room:      orDefault(rec.RoomLabel, enquiry.RoomNotSelected),
		Message:   orDefault(rec.Message, enquiry.NoMessage),
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

const operatorHTML = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>New Booking Enquiry</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #0f172a;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2 style="border-bottom: 2px solid #c9a84c; padding-bottom: 8px;">New Booking Enquiry</h2>
    <table style="width: 100%; border-collapse: collapse;">
      <tr><td style="padding: 6px 0; font-weight: bold;">Full Name</td><td>{{.FullName}}</td></tr>
      <tr><td style="padding: 6px 0; font-weight: bold;">Email</td><td><a href="mailto:{{.Email}}">{{.Email}}</a></td></tr>
      <tr><td style="padding: 6px 0; font-weight: bold;">Phone</td><td>{{.Phone}}</td></tr>
      <tr><td style="padding: 6px 0; font-weight: bold;">Check-in</td><td>{{.CheckIn}}</td></tr>
      <tr><td style="padding: 6px 0; font-weight: bold;">Check-out</td><td>{{.CheckOut}}</td></tr>
      <tr><td style="padding: 6px 0; font-weight: bold;">Room Type</td><td>{{.Room}}</td></tr>
    </table>
    <h3>Message</h3>
    <div style="background: #f8fafc; padding: 12px; border-left: 3px solid #c9a84c;">{{.Message}}</div>
    {{if .Reference}}<p style="color: #94a3b8; font-size: 12px;">Reference: {{.Reference}}</p>{{end}}
  </div>
</body>
</html>`

const operatorText = `New booking enquiry

Full Name: {{.FullName}}
Email:     {{.Email}}
Phone:     {{.Phone}}
Check-in:  {{.CheckIn}}
Check-out: {{.CheckOut}}
Room Type: {{.Room}}

Message:
{{.Message}}
{{if .Reference}}
Reference: {{.Reference}}
{{end}}`

const guestHTML = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Thank you for your enquiry</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #0f172a;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h2>Thank you, {{.FullName}}!</h2>
    <p>We have received your enquiry at {{.Hotel.Name}}. Our reservations team will be in touch within 24 hours.</p>
    <h3>Your enquiry</h3>
    <ul>
      <li><strong>Room:</strong> {{.Room}}</li>
      <li><strong>Check-in:</strong> {{.CheckIn}}</li>
      <li><strong>Check-out:</strong> {{.CheckOut}}</li>
    </ul>
    <p>Need anything sooner? Contact us:</p>
    <p>
      {{.Hotel.Name}}<br>
      {{if .Hotel.Address}}{{.Hotel.Address}}<br>{{end}}
      Phone: {{.Hotel.Phone}}<br>
      Email: <a href="mailto:{{.Hotel.Email}}">{{.Hotel.Email}}</a>
      {{if .Hotel.Website}}<br><a href="{{.Hotel.Website}}">{{.Hotel.Website}}</a>{{end}}
    </p>
    <p style="color: #94a3b8; font-size: 12px;">You are receiving this email because this address was used on our booking enquiry form.</p>
  </div>
</body>
</html>`

const guestText = `Thank you, {{.FullName}}!

We have received your enquiry at {{.Hotel.Name}}. Our reservations team will be in touch within 24 hours.

Room:      {{.Room}}
Check-in:  {{.CheckIn}}
Check-out: {{.CheckOut}}

{{.Hotel.Name}}
{{if .Hotel.Address}}{{.Hotel.Address}}
{{end}}Phone: {{.Hotel.Phone}}
Email: {{.Hotel.Email}}
{{if .Hotel.Website}}{{.Hotel.Website}}
{{end}}`

// Renderer turns an accepted enquiry into the two notification emails.
type Renderer struct {
	hotel        Hotel
	operatorHTML *htmltemplate.Template
	operatorText *texttemplate.Template
	guestHTML    *htmltemplate.Template
	guestText    *texttemplate.Template
}

func NewRenderer(h Hotel) *Renderer {
	return &Renderer{
		hotel:        h,
		operatorHTML: htmltemplate.Must(htmltemplate.New("operator.html").Parse(operatorHTML)),
		operatorText: texttemplate.Must(texttemplate.New("operator.txt").Parse(operatorText)),
		guestHTML:    htmltemplate.Must(htmltemplate.New("guest.html").Parse(guestHTML)),
		guestText:    texttemplate.Must(texttemplate.New("guest.txt").Parse(guestText)),
	}
}

func OperatorSubject(rec *enquiry.Record) string {
	return "New Booking Enquiry from " + rec.FullName
}

func (r *Renderer) GuestSubject() string {
	return "Thank you for your enquiry - " + r.hotel.Name
}

// Operator renders the staff notification addressed to adminEmail.
func (r *Renderer) Operator(rec *enquiry.Record, adminEmail string) (mailer.Message, error) {
	text, html, err := render(r.operatorText, r.operatorHTML, newView(r.hotel, rec))
	if err != nil {
		return mailer.Message{}, fmt.Errorf("render operator notification: %w", err)
	}
	return mailer.Message{
		To:      adminEmail,
		ReplyTo: rec.Email,
		Subject: OperatorSubject(rec),
		Text:    text,
		HTML:    html,
	}, nil
}

// Guest renders the acknowledgement sent back to the guest.
func (r *Renderer) Guest(rec *enquiry.Record) (mailer.Message, error) {
	text, html, err := render(r.guestText, r.guestHTML, newView(r.hotel, rec))
	if err != nil {
		return mailer.Message{}, fmt.Errorf("render guest confirmation: %w", err)
	}
	return mailer.Message{
		To:      rec.Email,
		ToName:  rec.FullName,
		ReplyTo: r.hotel.Email,
		Subject: r.GuestSubject(),
		Text:    text,
		HTML:    html,
	}, nil
}

func render(text *texttemplate.Template, html *htmltemplate.Template, v view) (string, string, error) {
	var tb, hb bytes.Buffer
	if err := text.Execute(&tb, v); err != nil {
		return "", "", err
	}
	if err := html.Execute(&hb, v); err != nil {
		return "", "", err
	}
	return tb.String(), hb.String(), nil
}
