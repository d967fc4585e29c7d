package cache

import "time"

// TTL describes how long a cached result should be retained. The zero value is a
// zero duration, which backends treat as "do not retain".
type TTL struct {
	duration time.Duration
	deadline time.Time
	forever  bool
}

// Forever asks the backend to keep the entry until it is flushed or evicted.
var Forever = TTL{forever: true}

// Duration returns a relative TTL. Zero and negative values are passed to the
// backend as is.
func Duration(d time.Duration) TTL {
	return TTL{duration: d}
}

// Minutes is a shorthand for Duration(n * time.Minute).
func Minutes(n int) TTL {
	return Duration(time.Duration(n) * time.Minute)
}

// Until returns a TTL that expires at the given instant. The remaining duration
// is resolved when the entry is written.
func Until(t time.Time) TTL {
	return TTL{deadline: t}
}

// IsForever reports whether the TTL is the Forever sentinel.
func (t TTL) IsForever() bool {
	return t.forever
}

// Resolve returns the duration to hand to the backend, measured from now.
func (t TTL) Resolve(now time.Time) time.Duration {
	if !t.deadline.IsZero() {
		return t.deadline.Sub(now)
	}
	return t.duration
}

func (t TTL) String() string {
	switch {
	case t.forever:
		return "forever"
	case !t.deadline.IsZero():
		return "until " + t.deadline.Format(time.RFC3339)
	default:
		return t.duration.String()
	}
}
