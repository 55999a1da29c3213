// Package assistant – booking_tools.go registers the calendar tools the
// model can call: availability checks and appointment booking against
// the configured service catalog.
package assistant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jholhewres/bookclaw/pkg/bookclaw/calendar"
)

// CustomerInfo identifies the sender a booking is made for. The booking
// tools close over it, so each message gets its own registration.
type CustomerInfo struct {
	Name   string
	Number string
}

// RegisterBookingTools registers check_availability and book_appointment
// on the executor, bound to the given calendar service, catalog and
// customer.
func RegisterBookingTools(exec *ToolExecutor, cal calendar.Service, cfg *Config, customer CustomerInfo) {
	serviceIDs := make([]string, 0, len(cfg.Services))
	for id := range cfg.Services {
		serviceIDs = append(serviceIDs, id)
	}
	sort.Strings(serviceIDs)

	exec.Register(MakeToolDefinition(
		"check_availability",
		"Check if the calendar is free for a specific time range.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"start_time": map[string]any{
					"type":        "string",
					"description": "ISO 8601 start time (e.g. 2024-05-21T10:00:00Z)",
				},
				"end_time": map[string]any{
					"type":        "string",
					"description": "ISO 8601 end time",
				},
			},
			"required": []string{"start_time", "end_time"},
		},
	), func(ctx context.Context, args map[string]any) (string, error) {
		return checkAvailability(ctx, cal, cfg, args)
	})

	exec.Register(MakeToolDefinition(
		"book_appointment",
		"Book an appointment for a specific service.",
		map[string]any{
			"type": "object",
			"properties": map[string]any{
				"service_id": map[string]any{
					"type":        "string",
					"enum":        serviceIDs,
					"description": "The ID of the service to book (e.g. haircut, beard_trim)",
				},
				"start_time": map[string]any{
					"type":        "string",
					"description": "ISO 8601 start time",
				},
				"guest_email": map[string]any{
					"type":        "string",
					"description": "Optional email to invite to the event",
				},
			},
			"required": []string{"service_id", "start_time"},
		},
	), func(ctx context.Context, args map[string]any) (string, error) {
		return bookAppointment(ctx, cal, cfg, customer, args)
	})
}

// checkAvailability queries free/busy for the configured calendar.
// Failures come back as textual results so the model can relay them.
func checkAvailability(ctx context.Context, cal calendar.Service, cfg *Config, args map[string]any) (string, error) {
	calendarID := cfg.Calendar.CalendarID
	if calendarID == "" {
		return "", fmt.Errorf("calendar id is not configured")
	}

	start, err := parseTime(stringArg(args, "start_time"))
	if err != nil {
		return "", fmt.Errorf("invalid start_time: %w", err)
	}
	end, err := parseTime(stringArg(args, "end_time"))
	if err != nil {
		return "", fmt.Errorf("invalid end_time: %w", err)
	}

	busy, err := cal.FreeBusy(ctx, calendarID, start, end)
	if err != nil {
		return "", fmt.Errorf("checking availability: %w", err)
	}

	if len(busy) == 0 {
		return "Free", nil
	}

	var sb strings.Builder
	sb.WriteString("Busy during these times:")
	for _, b := range busy {
		fmt.Fprintf(&sb, "\n- %s to %s",
			b.Start.Format(time.RFC3339),
			b.End.Format(time.RFC3339),
		)
	}
	return sb.String(), nil
}

// bookAppointment looks up the service in the catalog, computes the end
// time from its duration and inserts the event.
func bookAppointment(ctx context.Context, cal calendar.Service, cfg *Config, customer CustomerInfo, args map[string]any) (string, error) {
	calendarID := cfg.Calendar.CalendarID
	if calendarID == "" {
		return "", fmt.Errorf("calendar id is not configured")
	}

	serviceID := stringArg(args, "service_id")
	svc, ok := cfg.Services[serviceID]
	if !ok {
		return "", fmt.Errorf("service %q not found", serviceID)
	}

	start, err := parseTime(stringArg(args, "start_time"))
	if err != nil {
		return "", fmt.Errorf("invalid start_time: %w", err)
	}
	end := start.Add(time.Duration(svc.DurationMinutes) * time.Minute)

	name := customer.Name
	if name == "" {
		name = "Customer"
	}
	number := customer.Number
	if number == "" {
		number = "Unknown"
	}

	event := &calendar.Event{
		Summary: fmt.Sprintf("%s - %s", svc.Name, name),
		Description: fmt.Sprintf(
			"Service: %s\nCustomer: %s\nPhone: %s\nDuration: %d mins\nPrice: %d %s\nBooked via WhatsApp assistant.",
			svc.Name, name, number, svc.DurationMinutes, svc.Price, svc.Currency,
		),
		Start:      start,
		End:        end,
		GuestEmail: stringArg(args, "guest_email"),
	}

	link, err := cal.InsertEvent(ctx, calendarID, event)
	if err != nil {
		return "", fmt.Errorf("booking appointment: %w", err)
	}

	return fmt.Sprintf(
		"Appointment booked for %s!\nCustomer: %s\nPrice: %d %s\nView event: %s",
		svc.Name, name, svc.Price, svc.Currency, link,
	), nil
}

// parseTime accepts RFC 3339 timestamps, falling back to a zone-less
// local form models sometimes produce.
func parseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", value, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// stringArg fetches a string argument by key, empty if missing.
func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
