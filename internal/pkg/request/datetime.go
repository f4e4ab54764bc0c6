package request

import (
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// DateTime accepts RFC 3339 timestamps or bare calendar dates (UTC midnight)
// in JSON bodies and query strings.
type DateTime struct {
	time.Time
}

func ParseDateTime(s string) (DateTime, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return DateTime{t.UTC()}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return DateTime{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD or RFC 3339", s)
	}
	return DateTime{t}, nil
}

func (d *DateTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	parsed, err := ParseDateTime(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// UnmarshalParam lets gin bind the type from query and form values.
func (d *DateTime) UnmarshalParam(param string) error {
	parsed, err := ParseDateTime(param)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Ptr returns the wrapped time, or nil for a nil receiver.
func (d *DateTime) Ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
