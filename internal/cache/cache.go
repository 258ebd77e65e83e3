// Package cache keeps backend result rows keyed by query fingerprint, so
// that repeated evaluations do not resend identical queries.
//
// Two stores are provided: Memory, bounded by entry count, and Badger,
// persistent on disk with zstd-compressed values. Both honour a minimum
// retention floor: an entry younger than MinRetention is never evicted or
// expired, whatever the other limits say.
package cache

import (
	"log/slog"
	"time"
)

// Options bounds a cache.
type Options struct {
	// TTL expires entries after this age. Zero keeps entries until evicted.
	TTL time.Duration

	// MinRetention is the age below which an entry is always kept.
	MinRetention time.Duration

	// MaxEntries bounds a Memory cache. Zero is unbounded.
	MaxEntries int

	// Logger receives debug records for writes. Nil uses slog.Default().
	Logger *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// lifetime is how long an entry stays readable; zero is forever.
func (o Options) lifetime() time.Duration {
	if o.TTL <= 0 {
		return 0
	}
	return max(o.TTL, o.MinRetention)
}
