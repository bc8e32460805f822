package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	qualitydomain "github.com/amrivadeneyra/lunari-sub001/internal/quality/domain"
)

const dateOnlyLayout = "2006-01-02"

func parseOptionalBool(value string) (*bool, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseBool(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalTime(value string, endOfDay bool) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return &parsed, nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		if endOfDay {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
		} else {
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
		}
		return &parsed, nil
	}
	return nil, errors.New("invalid_time")
}

// parseWindow resolves the optional from/to query params once at the
// boundary; an absent pair means full history.
func parseWindow(from, to string) (qualitydomain.Window, error) {
	parsedFrom, err := parseOptionalTime(from, false)
	if err != nil {
		return qualitydomain.Window{}, newValidationError("from", "invalid_from", "invalid from")
	}
	parsedTo, err := parseOptionalTime(to, true)
	if err != nil {
		return qualitydomain.Window{}, newValidationError("to", "invalid_to", "invalid to")
	}
	if parsedFrom != nil && parsedTo != nil && parsedTo.Before(*parsedFrom) {
		return qualitydomain.Window{}, newValidationError("to", "invalid_window", "to precedes from")
	}
	return qualitydomain.Window{From: parsedFrom, To: parsedTo}, nil
}
