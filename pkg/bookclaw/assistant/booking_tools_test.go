package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jholhewres/bookclaw/pkg/bookclaw/calendar"
)

// fakeCalendar records calls and serves canned busy intervals.
type fakeCalendar struct {
	busy      []calendar.Interval
	busyErr   error
	insertErr error

	lastEvent      *calendar.Event
	lastCalendarID string
}

func (f *fakeCalendar) FreeBusy(_ context.Context, calendarID string, _, _ time.Time) ([]calendar.Interval, error) {
	f.lastCalendarID = calendarID
	return f.busy, f.busyErr
}

func (f *fakeCalendar) InsertEvent(_ context.Context, calendarID string, event *calendar.Event) (string, error) {
	f.lastCalendarID = calendarID
	f.lastEvent = event
	if f.insertErr != nil {
		return "", f.insertErr
	}
	return "https://calendar.google.com/event?eid=abc123", nil
}

func bookingConfig() *Config {
	cfg := DefaultConfig()
	cfg.Calendar.Enabled = true
	cfg.Calendar.CalendarID = "salon@example.com"
	cfg.Services = map[string]ServiceConfig{
		"haircut":    {Name: "Haircut", DurationMinutes: 30, Price: 1500, Currency: "LKR"},
		"beard_trim": {Name: "Beard Trim", DurationMinutes: 15, Price: 500, Currency: "LKR"},
	}
	return cfg
}

func TestCheckAvailability(t *testing.T) {
	args := map[string]any{
		"start_time": "2026-09-01T10:00:00Z",
		"end_time":   "2026-09-01T11:00:00Z",
	}

	t.Run("free calendar returns literal Free", func(t *testing.T) {
		cal := &fakeCalendar{}
		got, err := checkAvailability(context.Background(), cal, bookingConfig(), args)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "Free" {
			t.Errorf("result = %q, want \"Free\"", got)
		}
		if cal.lastCalendarID != "salon@example.com" {
			t.Errorf("queried calendar %q", cal.lastCalendarID)
		}
	})

	t.Run("busy calendar lists intervals", func(t *testing.T) {
		cal := &fakeCalendar{busy: []calendar.Interval{
			{
				Start: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
				End:   time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC),
			},
		}}
		got, err := checkAvailability(context.Background(), cal, bookingConfig(), args)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.HasPrefix(got, "Busy during these times:") {
			t.Errorf("result = %q", got)
		}
		if !strings.Contains(got, "2026-09-01T10:00:00Z") {
			t.Errorf("busy interval missing from %q", got)
		}
	})

	t.Run("missing calendar id", func(t *testing.T) {
		cfg := bookingConfig()
		cfg.Calendar.CalendarID = ""
		if _, err := checkAvailability(context.Background(), &fakeCalendar{}, cfg, args); err == nil {
			t.Fatal("expected error for missing calendar id")
		}
	})

	t.Run("calendar failure surfaces as error", func(t *testing.T) {
		cal := &fakeCalendar{busyErr: fmt.Errorf("api down")}
		if _, err := checkAvailability(context.Background(), cal, bookingConfig(), args); err == nil {
			t.Fatal("expected error when calendar fails")
		}
	})

	t.Run("invalid timestamps rejected", func(t *testing.T) {
		bad := map[string]any{"start_time": "tomorrow", "end_time": "later"}
		if _, err := checkAvailability(context.Background(), &fakeCalendar{}, bookingConfig(), bad); err == nil {
			t.Fatal("expected error for unparseable timestamps")
		}
	})
}

func TestBookAppointment(t *testing.T) {
	customer := CustomerInfo{Name: "Nimal", Number: "94771234567"}

	t.Run("computes end from service duration", func(t *testing.T) {
		cal := &fakeCalendar{}
		got, err := bookAppointment(context.Background(), cal, bookingConfig(), customer, map[string]any{
			"service_id": "haircut",
			"start_time": "2026-09-01T10:00:00Z",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		wantEnd := time.Date(2026, 9, 1, 10, 30, 0, 0, time.UTC)
		if !cal.lastEvent.End.Equal(wantEnd) {
			t.Errorf("end = %v, want %v", cal.lastEvent.End, wantEnd)
		}
		if cal.lastEvent.Summary != "Haircut - Nimal" {
			t.Errorf("summary = %q", cal.lastEvent.Summary)
		}
		if !strings.Contains(cal.lastEvent.Description, "Phone: 94771234567") {
			t.Errorf("description missing phone: %q", cal.lastEvent.Description)
		}
		if !strings.Contains(got, "1500 LKR") || !strings.Contains(got, "eid=abc123") {
			t.Errorf("confirmation = %q", got)
		}
	})

	t.Run("unknown service", func(t *testing.T) {
		_, err := bookAppointment(context.Background(), &fakeCalendar{}, bookingConfig(), customer, map[string]any{
			"service_id": "massage",
			"start_time": "2026-09-01T10:00:00Z",
		})
		if err == nil || !strings.Contains(err.Error(), "not found") {
			t.Fatalf("err = %v, want not-found", err)
		}
	})

	t.Run("guest email becomes attendee", func(t *testing.T) {
		cal := &fakeCalendar{}
		_, err := bookAppointment(context.Background(), cal, bookingConfig(), customer, map[string]any{
			"service_id":  "beard_trim",
			"start_time":  "2026-09-01T10:00:00Z",
			"guest_email": "guest@example.com",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cal.lastEvent.GuestEmail != "guest@example.com" {
			t.Errorf("guest email = %q", cal.lastEvent.GuestEmail)
		}
	})

	t.Run("anonymous customer gets placeholders", func(t *testing.T) {
		cal := &fakeCalendar{}
		_, err := bookAppointment(context.Background(), cal, bookingConfig(), CustomerInfo{}, map[string]any{
			"service_id": "haircut",
			"start_time": "2026-09-01T10:00:00Z",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cal.lastEvent.Summary != "Haircut - Customer" {
			t.Errorf("summary = %q", cal.lastEvent.Summary)
		}
		if !strings.Contains(cal.lastEvent.Description, "Phone: Unknown") {
			t.Errorf("description = %q", cal.lastEvent.Description)
		}
	})

	t.Run("insert failure surfaces as error", func(t *testing.T) {
		cal := &fakeCalendar{insertErr: fmt.Errorf("quota exceeded")}
		_, err := bookAppointment(context.Background(), cal, bookingConfig(), customer, map[string]any{
			"service_id": "haircut",
			"start_time": "2026-09-01T10:00:00Z",
		})
		if err == nil {
			t.Fatal("expected error when insert fails")
		}
	})
}

func TestParseTime(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"rfc3339 utc", "2026-09-01T10:00:00Z", false},
		{"rfc3339 offset", "2026-09-01T10:00:00+05:30", false},
		{"no zone falls back to local", "2026-09-01T10:00:00", false},
		{"empty", "", true},
		{"garbage", "next tuesday", true},
		{"date only", "2026-09-01", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseTime(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseTime(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestRegisterBookingTools(t *testing.T) {
	exec := NewToolExecutor(slog.Default())
	RegisterBookingTools(exec, &fakeCalendar{}, bookingConfig(), CustomerInfo{})

	defs := exec.Tools()
	if len(defs) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(defs))
	}
	if defs[0].Function.Name != "check_availability" || defs[1].Function.Name != "book_appointment" {
		t.Errorf("tools = %s,%s", defs[0].Function.Name, defs[1].Function.Name)
	}
	if !strings.Contains(string(defs[1].Function.Parameters), "beard_trim") {
		t.Error("service catalog not embedded in tool schema")
	}
}
