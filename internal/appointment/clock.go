package appointment

import (
	"errors"
	"fmt"
	"time"
)

const (
	minutesPerDay = 24 * 60
	dateLayout    = "2006-01-02"
)

var (
	ErrInvalidClock    = errors.New("time must be HH:mm")
	ErrInvalidDate     = errors.New("date must be YYYY-MM-DD")
	ErrCrossesMidnight = errors.New("time range crosses midnight")
)

// Clock is a wall-clock time of day in minutes since midnight, always in
// [0, 1440). It carries no date and no time zone.
type Clock int

// ParseClock parses an "HH:mm" string.
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil || len(s) != 5 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

// MustClock is ParseClock for literals.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// AddMinutes returns c shifted by m minutes. There is no day rollover: a
// result at or past 24:00 (or before 00:00) is ErrCrossesMidnight.
func (c Clock) AddMinutes(m int) (Clock, error) {
	n := int(c) + m
	if n < 0 || n >= minutesPerDay {
		return 0, fmt.Errorf("%w: %s%+dm", ErrCrossesMidnight, c, m)
	}
	return Clock(n), nil
}

func (c Clock) Valid() bool {
	return c >= 0 && c < minutesPerDay
}

func (c Clock) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("%w: %d minutes", ErrInvalidClock, int(c))
	}
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseDate validates an ISO calendar date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return d, nil
}

// At resolves date + clock to an instant in loc. The clinic's wall clock is
// taken at face value; no zone conversion happens.
func At(date string, c Clock, loc *time.Location) (time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	if loc == nil {
		loc = time.Local
	}
	return time.Date(d.Year(), d.Month(), d.Day(), int(c)/60, int(c)%60, 0, 0, loc), nil
}
