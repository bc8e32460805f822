package domain

import (
	"context"
	"errors"
	"time"
)

// Window is an optional [from, to] time range. The zero value means
// full history; both bounds are resolved once at the API entry point so
// downstream queries never re-interpret missing parameters.
type Window struct {
	From *time.Time
	To   *time.Time
}

// FullHistory returns the unbounded window.
func FullHistory() Window {
	return Window{}
}

// Between builds a window from optional bounds.
func Between(from, to *time.Time) Window {
	return Window{From: from, To: to}
}

// Bounded reports whether any bound is set.
func (w Window) Bounded() bool {
	return w.From != nil || w.To != nil
}

// ResponseTimeReport is the average assistant response latency across
// all conversations created inside the window.
type ResponseTimeReport struct {
	AverageSeconds     int64  `json:"averageResponseTime"`
	TotalConversations int64  `json:"totalConversations"`
	TotalMessages      int64  `json:"totalMessages"`
	FormattedTime      string `json:"formattedTime"`
}

// OnTimeReport is the share of customer messages answered on time.
type OnTimeReport struct {
	RespondedOnTime int64   `json:"respondedOnTime"`
	TotalMessages   int64   `json:"totalMessages"`
	Percentage      float64 `json:"percentage"`
}

// ResolutionReport partitions classified conversations by resolution
// type. Conversations without a recorded classification are excluded.
type ResolutionReport struct {
	FirstInteractionCount int64   `json:"firstInteractionCount"`
	FollowUpCount         int64   `json:"followUpCount"`
	EscalatedCount        int64   `json:"escalatedCount"`
	UnresolvedCount       int64   `json:"unresolvedCount"`
	TotalConversations    int64   `json:"totalConversations"`
	FirstInteractionRate  float64 `json:"firstInteractionRate"`
}

// RatingBuckets holds one slot per rating value 1 through 5.
type RatingBuckets struct {
	Rating1 int64 `json:"rating1"`
	Rating2 int64 `json:"rating2"`
	Rating3 int64 `json:"rating3"`
	Rating4 int64 `json:"rating4"`
	Rating5 int64 `json:"rating5"`
}

// SatisfactionReport is the customer satisfaction average plus a per
// value distribution. Bucket percentages are rounded independently and
// are not guaranteed to sum to 100.
type SatisfactionReport struct {
	AverageRating float64       `json:"averageRating"`
	TotalRatings  int64         `json:"totalRatings"`
	Distribution  RatingBuckets `json:"distribution"`
	Percentages   RatingBuckets `json:"percentages"`
}

// Summary bundles the four quality metrics. Slots are nil when their
// own computation failed; a failure in one never nulls the others.
type Summary struct {
	ResponseTime *ResponseTimeReport `json:"responseTime"`
	OnTimeRate   *OnTimeReport       `json:"onTimeRate"`
	Resolution   *ResolutionReport   `json:"resolution"`
	Satisfaction *SatisfactionReport `json:"satisfaction"`
}

type Service interface {
	AverageResponseTime(context.Context, Window) (ResponseTimeReport, error)
	OnTimeRate(context.Context, Window) (OnTimeReport, error)
	ResolutionRate(context.Context, Window) (ResolutionReport, error)
	SatisfactionAverage(context.Context, Window) (SatisfactionReport, error)
	Summary(context.Context, Window) (Summary, error)
}

var ErrInvalidCompany = errors.New("invalid_company")
