// Package availability resolves a resource's free windows for a date from the
// upstream feed and normalizes its loosely-typed payload.
package availability

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"leadbook/internal/crmapi"
	"leadbook/internal/metrics"
	"leadbook/internal/models"
)

// Feed is the subset of the CRM client the resolver needs.
type Feed interface {
	GetAvailability(ctx context.Context, resourceID, date string, viewerOffsetMinutes int) (*crmapi.AvailabilityResponse, error)
}

// Resolver fetches and normalizes availability windows.
type Resolver struct {
	feed   Feed
	logger *zerolog.Logger
}

// NewResolver creates a resolver over the given feed.
func NewResolver(feed Feed, logger *zerolog.Logger) *Resolver {
	return &Resolver{feed: feed, logger: logger}
}

// Resolve returns the resource's availability windows for a date, normalized
// to wall-clock "HH:MM" boundaries. viewerOffsetMinutes is the viewer's UTC
// offset in minutes east of UTC.
//
// Fetch failures degrade to an empty list: with no windows nothing is
// bookable, which prevents double-booking at the cost of availability until
// the next successful refresh.
//
// The returned windows may overlap or duplicate each other; callers must not
// assume merged input.
func (r *Resolver) Resolve(ctx context.Context, resourceID, date string, viewerOffsetMinutes int) []models.AvailabilityWindow {
	resp, err := r.feed.GetAvailability(ctx, resourceID, date, viewerOffsetMinutes)
	if err != nil {
		metrics.IncFeedError("availability")
		r.logger.Warn().Err(err).
			Str("resource_id", resourceID).
			Str("date", date).
			Msg("availability fetch failed; treating day as fully booked")
		return nil
	}
	return Normalize(resp, date, viewerOffsetMinutes)
}

// Normalize maps the feed's availability envelope to canonical windows. It is
// the single place that understands every variant the feed produces:
//
//  1. The raw window list is extracted from whichever envelope key is
//     populated (available_slots, availableSlots, slots or data). Entries
//     missing either boundary are dropped.
//  2. Each boundary is classified as absolute (carries a date marker) or
//     relative (bare wall-clock).
//  3. Absolute boundaries are converted to the viewer's local wall-clock
//     using the supplied offset. The feed pre-computes windows with the
//     viewer's offset, so local conversion recovers the intended
//     resource-local time. If the viewer-local calendar date differs from
//     the requested date the whole window is dropped; this keeps windows
//     that cross midnight under timezone conversion out of the wrong day.
//  4. Relative boundaries are truncated to canonical "HH:MM".
//  5. Entries still unparsable after all of the above are dropped.
//
// The output is not merged or de-duplicated.
func Normalize(resp *crmapi.AvailabilityResponse, date string, viewerOffsetMinutes int) []models.AvailabilityWindow {
	if resp == nil {
		return nil
	}

	var out []models.AvailabilityWindow
	for _, raw := range resp.Windows() {
		start, end := raw.Bounds()
		if start == "" || end == "" {
			continue
		}

		startLocal, ok := normalizeBoundary(start, date, viewerOffsetMinutes)
		if !ok {
			continue
		}
		endLocal, ok := normalizeBoundary(end, date, viewerOffsetMinutes)
		if !ok {
			continue
		}

		w := models.AvailabilityWindow{StartTime: startLocal, EndTime: endLocal}
		if !w.Valid() {
			continue
		}
		out = append(out, w)
	}
	return out
}

// wallClockRe matches bare wall-clock strings: "H:MM", "HH:MM" or "HH:MM:SS".
var wallClockRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::\d{2}(?:\.\d+)?)?$`)

// absoluteLayouts are the timestamp shapes the feed has been observed to send.
var absoluteLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// normalizeBoundary converts a single raw boundary value to canonical "HH:MM"
// on the requested date, or reports that the value must be dropped.
func normalizeBoundary(value, date string, viewerOffsetMinutes int) (string, bool) {
	value = strings.TrimSpace(value)

	if wallClockRe.MatchString(value) {
		// Relative: re-render through the minute parser to truncate
		// seconds and zero-pad the hour.
		m, err := models.MinutesOfDay(value)
		if err != nil {
			return "", false
		}
		return models.FormatMinutes(m), true
	}

	if !isAbsolute(value) {
		return "", false
	}

	viewer := time.FixedZone("viewer", viewerOffsetMinutes*60)
	for _, layout := range absoluteLayouts {
		t, err := time.Parse(layout, value)
		if err != nil {
			continue
		}
		if layout == "2006-01-02T15:04:05" || layout == "2006-01-02 15:04:05" ||
			layout == "2006-01-02T15:04" || layout == "2006-01-02 15:04" {
			// Naive timestamps carry no zone; the feed emits them in UTC.
			t = t.UTC()
		}
		local := t.In(viewer)
		if local.Format(models.DateLayout) != date {
			return "", false
		}
		return local.Format("15:04"), true
	}
	return "", false
}

// isAbsolute reports whether the value carries a date marker, i.e. is a
// timestamp rather than a bare wall-clock string.
func isAbsolute(value string) bool {
	return strings.Contains(value, "-") || strings.Contains(value, "T")
}
