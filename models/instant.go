package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateTimeLayout is the text layout PocketBase uses for datetime columns. It is
// fixed width and UTC, so stored values sort lexically.
const DateTimeLayout = "2006-01-02 15:04:05.000Z"

var ErrInvalidInstant = errors.New("invalid instant")

// epoch values above this are taken to be milliseconds
const millisThreshold = 1e11

var textLayouts = []string{
	DateTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// FormatInstant renders t in DateTimeLayout. The zero time renders empty.
func FormatInstant(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(DateTimeLayout)
}

// ParseInstant interprets v as an absolute instant. It accepts time values,
// ISO-8601 / PocketBase text, and epoch numbers in seconds or milliseconds,
// either as numbers or numeric strings. Empty values yield the zero time.
func ParseInstant(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case *time.Time:
		if t == nil {
			return time.Time{}, nil
		}
		return t.UTC(), nil
	case int:
		return fromEpoch(float64(t)), nil
	case int64:
		return fromEpoch(float64(t)), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidInstant, t)
		}
		return fromEpoch(t), nil
	case []byte:
		return parseInstantText(string(t))
	case string:
		return parseInstantText(t)
	}
	return time.Time{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidInstant, v)
}

func parseInstantText(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(n), nil
	}
	for _, layout := range textLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidInstant, s)
}

func fromEpoch(n float64) time.Time {
	if math.Abs(n) >= millisThreshold {
		return time.UnixMilli(int64(n)).UTC()
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
