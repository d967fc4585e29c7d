package cacheinfra

import (
	"time"

	"github.com/apex/log"
)

type options struct {
	logger log.Interface
	now    func() time.Time
}

// Option customizes a backend.
type Option func(*options)

// WithLogger sets the logger used for debug and warning output.
func WithLogger(logger log.Interface) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{
		logger: log.Log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
