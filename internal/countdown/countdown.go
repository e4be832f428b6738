// Package countdown models the launch countdown shown on the main screen.
package countdown

import (
	"context"
	"fmt"
	"time"
)

// Remaining is the time left, split the way the timer displays it.
type Remaining struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// Default is the countdown shown when no deadline is configured.
func Default() Remaining {
	return Remaining{Days: 23, Hours: 12, Minutes: 23, Seconds: 23}
}

// Until returns the time left from now to end. A past end yields zero.
func Until(now, end time.Time) Remaining {
	d := end.Sub(now)
	if d <= 0 {
		return Remaining{}
	}
	return FromDuration(d)
}

// FromDuration splits d into days, hours, minutes and seconds, dropping
// fractions of a second.
func FromDuration(d time.Duration) Remaining {
	if d <= 0 {
		return Remaining{}
	}
	secs := int64(d / time.Second)
	return Remaining{
		Days:    int(secs / 86400),
		Hours:   int(secs % 86400 / 3600),
		Minutes: int(secs % 3600 / 60),
		Seconds: int(secs % 60),
	}
}

// Duration converts back to a time.Duration.
func (r Remaining) Duration() time.Duration {
	return time.Duration(r.Days)*24*time.Hour +
		time.Duration(r.Hours)*time.Hour +
		time.Duration(r.Minutes)*time.Minute +
		time.Duration(r.Seconds)*time.Second
}

// IsZero reports whether the countdown has finished.
func (r Remaining) IsZero() bool {
	return r.Days <= 0 && r.Hours <= 0 && r.Minutes <= 0 && r.Seconds <= 0
}

// Tick returns r one second later. Seconds borrow from minutes, minutes from
// hours and hours from days; zero stays zero.
func (r Remaining) Tick() Remaining {
	switch {
	case r.Seconds > 0:
		r.Seconds--
	case r.Minutes > 0:
		r.Minutes--
		r.Seconds = 59
	case r.Hours > 0:
		r.Hours--
		r.Minutes, r.Seconds = 59, 59
	case r.Days > 0:
		r.Days--
		r.Hours, r.Minutes, r.Seconds = 23, 59, 59
	}
	return r
}

// String renders "DD:HH:MM:SS" with each field zero-padded to two digits.
func (r Remaining) String() string {
	return fmt.Sprintf("%02d:%02d:%02d:%02d", r.Days, r.Hours, r.Minutes, r.Seconds)
}

// Labeled renders the fields with the timer's labels.
func (r Remaining) Labeled() string {
	return fmt.Sprintf("%02d Days %02d Hours %02d Min %02d Sec", r.Days, r.Hours, r.Minutes, r.Seconds)
}

// Run calls fn with start and then with every tick until the countdown
// reaches zero or ctx is done. It returns ctx.Err() when cancelled.
func Run(ctx context.Context, start Remaining, interval time.Duration, fn func(Remaining)) error {
	if interval <= 0 {
		interval = time.Second
	}

	cur := start
	fn(cur)
	if cur.IsZero() {
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cur = cur.Tick()
			fn(cur)
			if cur.IsZero() {
				return nil
			}
		}
	}
}
