package utils

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is how event dates are stored and passed in callbacks.
const DateLayout = "2006-01-02"

var inputLayouts = []string{
	DateLayout,
	"02.01.2006",
	"02/01/2006",
	"02.01.06",
}

// ParseDate accepts ISO dates and the day-first forms admins type in chat.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// NormalizeDate converts any accepted input form into DateLayout.
func NormalizeDate(s string) (string, error) {
	t, err := ParseDate(s)
	if err != nil {
		return "", err
	}
	return t.Format(DateLayout), nil
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// HumanDate renders a stored date as DD.MM.YYYY; invalid input is returned as is.
func HumanDate(date string) string {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("02.01.2006")
}

// ShortDate renders a stored date as DD.MM.
func ShortDate(date string) string {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("02.01")
}
