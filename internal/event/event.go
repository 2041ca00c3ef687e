// Package event holds scheduled events and the store that persists them.
package event

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/muaviaUsmani/hearth/internal/errors"
	"github.com/rs/xid"
)

// Event is a persisted schedule request. JSON field names are the wire
// shape used by the API and by stored records.
type Event struct {
	ID                 string                 `json:"eventId"`
	TaskType           string                 `json:"taskType"`
	ScheduleExpression string                 `json:"scheduleExpression"`
	Payload            map[string]interface{} `json:"payload"`
	IsRecurring        bool                   `json:"isRecurring"`
	NextRunAt          string                 `json:"nextRunAtIso"`
	CreatedAt          string                 `json:"createdAtIso"`
	LastRunAt          string                 `json:"lastRunAtIso,omitempty"`
}

// NextRunTime parses NextRunAt
func (e *Event) NextRunTime() (time.Time, error) {
	return ParseISO(e.NextRunAt)
}

// CreateRequest carries the caller-supplied fields of a new event.
// A nil IsRecurring means true.
type CreateRequest struct {
	TaskType           string                 `json:"taskType"`
	ScheduleExpression string                 `json:"scheduleExpression"`
	Payload            map[string]interface{} `json:"payload,omitempty"`
	IsRecurring        *bool                  `json:"isRecurring,omitempty"`
}

// Recurring resolves the IsRecurring default
func (r CreateRequest) Recurring() bool {
	return r.IsRecurring == nil || *r.IsRecurring
}

// ISOLayout is the timestamp format used in every stored and returned field
const ISOLayout = "2006-01-02T15:04:05Z"

// FormatISO renders t in UTC at second precision. Years outside 0..9999
// have no RFC 3339 form and are reported as an InternalError.
func FormatISO(t time.Time) (string, error) {
	u := t.UTC()
	if y := u.Year(); y < 0 || y > 9999 {
		return "", errors.Internal("format timestamp", fmt.Errorf("year %d out of range", y))
	}
	return u.Format(ISOLayout), nil
}

// ParseISO parses any RFC 3339 timestamp and normalizes it to UTC
func ParseISO(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

var idPattern = regexp.MustCompile(`^evt_(\d+)_([a-z0-9]+)$`)

// NewID returns evt_<epochMillis>_<suffix>. The xid suffix is unique across
// processes, so two IDs minted in the same millisecond never collide.
func NewID(now time.Time) string {
	return "evt_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + xid.New().String()
}

// ValidID reports whether id has the event ID shape
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// IDTime extracts the creation millisecond encoded in id
func IDTime(id string) (time.Time, bool) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms).UTC(), true
}

// Less orders IDs chronologically, then by suffix
func Less(a, b string) bool {
	ta, okA := IDTime(a)
	tb, okB := IDTime(b)
	if okA && okB && !ta.Equal(tb) {
		return ta.Before(tb)
	}
	return a < b
}
