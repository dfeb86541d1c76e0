// Package watermarks persists, per logical list, the time of the last
// successful incremental pull.
package watermarks

import (
	"context"
	"time"
)

type Repository interface {
	// Get returns the watermark of list and false when the list was never
	// pulled.
	Get(ctx context.Context, list string) (time.Time, bool, error)
	// Advance moves the watermark forward. An older value is ignored.
	Advance(ctx context.Context, list string, t time.Time) error
	List(ctx context.Context) (map[string]time.Time, error)
	Clear(ctx context.Context) error
}
