package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"
	"path/filepath"
	"time"

	"github.com/diagnosis/hotel-site/internal/enquiry"
	"github.com/diagnosis/hotel-site/internal/http/response"
	"github.com/diagnosis/hotel-site/internal/notify"
	"github.com/diagnosis/hotel-site/pkg/logger"
)

type roomOption struct {
	Value string
	Label string
}

type homePage struct {
	Hotel notify.Hotel
	Rooms []roomOption
	Today string
}

// SiteHandler serves the marketing pages and static assets.
type SiteHandler struct {
	home     *template.Template
	static   http.Handler
	hotel    notify.Hotel
	location *time.Location
	now      func() time.Time
}

// NewSiteHandler parses viewsDir/home.html once at startup.
func NewSiteHandler(viewsDir, publicDir string, hotel notify.Hotel, loc *time.Location) (*SiteHandler, error) {
	home, err := template.ParseFiles(filepath.Join(viewsDir, "home.html"))
	if err != nil {
		return nil, fmt.Errorf("parse home view: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &SiteHandler{
		home:     home,
		static:   http.StripPrefix("/static/", http.FileServer(http.Dir(publicDir))),
		hotel:    hotel,
		location: loc,
		now:      time.Now,
	}, nil
}

func (h *SiteHandler) Home(w http.ResponseWriter, r *http.Request) {
	page := homePage{
		Hotel: h.hotel,
		Today: enquiry.Today(h.now().In(h.location)),
	}
	for _, rt := range enquiry.RoomTypes {
		page.Rooms = append(page.Rooms, roomOption{Value: string(rt), Label: rt.Label()})
	}

	var buf bytes.Buffer
	if err := h.home.Execute(&buf, page); err != nil {
		logger.ErrorContext(r.Context(), "Failed to render home page", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (h *SiteHandler) Static(w http.ResponseWriter, r *http.Request) {
	h.static.ServeHTTP(w, r)
}

func (h *SiteHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	response.NotFound(w)
}
