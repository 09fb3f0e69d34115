package model

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"time"
)

// NanoTime is a time.Time that crosses the HTTP boundary as integer
// nanoseconds since epoch, matching the pipeline wire contract. In the
// database it behaves like a plain timestamp.
type NanoTime struct {
	time.Time
}

func NewNanoTime(t time.Time) NanoTime {
	return NanoTime{Time: t}
}

func (t NanoTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("0"), nil
	}
	return []byte(strconv.FormatInt(t.UnixNano(), 10)), nil
}

func (t *NanoTime) UnmarshalJSON(b []byte) error {
	s := string(b)
	if s == "null" || s == "0" {
		t.Time = time.Time{}
		return nil
	}
	ns, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("NanoTime: expected integer nanoseconds, got %q: %w", s, err)
	}
	t.Time = time.Unix(0, ns).UTC()
	return nil
}

func (t NanoTime) Value() (driver.Value, error) {
	return t.Time, nil
}

func (t *NanoTime) Scan(v interface{}) error {
	switch x := v.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = x
		return nil
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, x)
		if err != nil {
			return fmt.Errorf("NanoTime: cannot parse %q: %w", x, err)
		}
		t.Time = parsed
		return nil
	case []byte:
		return t.Scan(string(x))
	default:
		return fmt.Errorf("NanoTime: unsupported scan type %T", v)
	}
}
