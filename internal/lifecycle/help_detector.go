package lifecycle

import "strings"

// HelpDetector reports whether an assistant message body indicates that
// help or a resolution was offered. Implementations may use substring
// markers, structured flags, or a classifier; the state machine does not
// care which.
type HelpDetector interface {
	IsHelpOffered(body string) bool
}

// SubstringHelpDetector matches any of a fixed set of case-insensitive
// markers inside the message body.
type SubstringHelpDetector struct {
	markers []string
}

// DefaultHelpMarkers are the Spanish-language resolution phrases the
// assistant emits when it believes it has answered the customer.
var DefaultHelpMarkers = []string{
	"espero haberte ayudado",
	"te he ayudado",
	"¿te sirvió",
	"¿pude ayudarte",
	"problema resuelto",
	"queda resuelto",
	"solucionado",
}

func NewSubstringHelpDetector(markers ...string) *SubstringHelpDetector {
	if len(markers) == 0 {
		markers = DefaultHelpMarkers
	}
	normalized := make([]string, 0, len(markers))
	for _, marker := range markers {
		marker = strings.ToLower(strings.TrimSpace(marker))
		if marker == "" {
			continue
		}
		normalized = append(normalized, marker)
	}
	return &SubstringHelpDetector{markers: normalized}
}

func (d *SubstringHelpDetector) IsHelpOffered(body string) bool {
	if d == nil || len(d.markers) == 0 {
		return false
	}
	body = strings.ToLower(body)
	for _, marker := range d.markers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

var _ HelpDetector = (*SubstringHelpDetector)(nil)
