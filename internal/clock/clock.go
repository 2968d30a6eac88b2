// Package clock centralizes the timezone handling the bot depends on:
// everything users see is local wall time, while the database stores
// submitted-at timestamps as naive UTC in the T-separated ISO form.
// Older rows carry a space-separated local form; both must stay readable.
package clock

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Notices filed at or before 08:10 local time are within tolerance and
// require no manager approval.
const (
	cutoffHour   = 8
	cutoffMinute = 10
)

const (
	storedLayout = "2006-01-02T15:04:05" // what we write (UTC)
	legacyLayout = "2006-01-02 15:04:05" // what old rows contain (local)
	hmLayout     = "15:04"
)

var hmRe = regexp.MustCompile(`^\d{2}:\d{2}$`)

type Clock struct {
	loc *time.Location
}

func New(tz string) (*Clock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return &Clock{loc: loc}, nil
}

// In builds a Clock for an already-resolved location.
func In(loc *time.Location) *Clock {
	return &Clock{loc: loc}
}

func (c *Clock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *Clock) NowHM() string {
	return c.Now().Format(hmLayout)
}

// SubmittedNow returns the storage form of "now": UTC without a zone suffix.
func SubmittedNow() string {
	return time.Now().UTC().Format(storedLayout)
}

// LocalHM renders a stored submitted-at value as local HH:MM. The T-form is
// UTC and gets converted; the legacy space-form is already local. Anything
// unparseable is returned as-is so the caller never loses the raw value.
func (c *Clock) LocalHM(s string) string {
	if s == "" {
		return "—"
	}
	if t, err := time.Parse(legacyLayout, s); err == nil {
		return t.Format(hmLayout)
	}
	// time.Parse accepts a fractional second even when the layout omits it.
	if t, err := time.Parse(storedLayout, s); err == nil && strings.Contains(s, "T") {
		return t.In(c.loc).Format(hmLayout)
	}
	return s
}

// ParseHM strictly parses a 24h HH:MM string.
func ParseHM(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if !hmRe.MatchString(s) {
		return time.Time{}, false
	}
	t, err := time.Parse(hmLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// AfterCutoff reports whether t's wall time is strictly past the tolerance
// cutoff.
func AfterCutoff(t time.Time) bool {
	h, m, _ := t.Clock()
	return h > cutoffHour || (h == cutoffHour && m > cutoffMinute)
}
