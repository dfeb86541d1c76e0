// Package clock issues the write-tokens stamped into update maps.
//
// A token has the form
//
//	<wall-millis>-<client-id>-<counter>
//
// with a 15 digit wall component and a 6 digit counter, both zero padded, so
// tokens order correctly under plain string comparison. Within one Authority
// tokens are strictly increasing, like a hybrid logical clock: the wall part
// never moves backwards and the counter breaks ties inside a millisecond.
// Tokens from different clients order by wall clock first; skew between
// devices is accepted.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/google/uuid"
)

const (
	wallDigits    = 15
	counterDigits = 6
	maxCounter    = 999999
)

// Token is an opaque, totally ordered write marker.
type Token string

// Compare returns -1, 0 or +1.
func (t Token) Compare(other Token) int {
	return strings.Compare(string(t), string(other))
}

// After reports whether t was issued later than other.
func (t Token) After(other Token) bool {
	return t.Compare(other) > 0
}

func (t Token) String() string { return string(t) }

// Parts is a decoded token.
type Parts struct {
	WallMillis int64
	ClientID   string
	Counter    int
}

// Time returns the wall component as a time.
func (p Parts) Time() time.Time {
	return time.UnixMilli(p.WallMillis).UTC()
}

// Parse splits a token into its components.
func Parse(t Token) (Parts, error) {
	s := string(t)
	if len(s) < wallDigits+counterDigits+3 || s[wallDigits] != '-' || s[len(s)-counterDigits-1] != '-' {
		return Parts{}, fmt.Errorf("%w: %q", common.ErrInvalidToken, s)
	}

	wall, err := strconv.ParseInt(s[:wallDigits], 10, 64)
	if err != nil {
		return Parts{}, fmt.Errorf("%w: wall: %v", common.ErrInvalidToken, err)
	}
	counter, err := strconv.Atoi(s[len(s)-counterDigits:])
	if err != nil {
		return Parts{}, fmt.Errorf("%w: counter: %v", common.ErrInvalidToken, err)
	}

	return Parts{
		WallMillis: wall,
		ClientID:   s[wallDigits+1 : len(s)-counterDigits-1],
		Counter:    counter,
	}, nil
}

// NewClientID returns a fresh random client instance id.
func NewClientID() string {
	return uuid.NewString()
}

// Authority issues tokens for one client instance. It is safe for concurrent
// use.
type Authority struct {
	mu       sync.Mutex
	clientID string
	now      func() time.Time
	lastWall int64
	counter  int
}

// NewAuthority returns an Authority stamping tokens with clientID.
func NewAuthority(clientID string) *Authority {
	return &Authority{clientID: clientID, now: time.Now}
}

// WithNow replaces the wall clock; used by tests.
func (a *Authority) WithNow(now func() time.Time) *Authority {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
	return a
}

// ClientID returns the id embedded in issued tokens.
func (a *Authority) ClientID() string {
	return a.clientID
}

// Issue returns a token strictly greater than every token this Authority
// issued before.
func (a *Authority) Issue() Token {
	a.mu.Lock()
	defer a.mu.Unlock()

	wall := a.now().UnixMilli()
	switch {
	case wall > a.lastWall:
		a.lastWall = wall
		a.counter = 0
	case a.counter >= maxCounter:
		a.lastWall++
		a.counter = 0
	default:
		// same millisecond or the wall clock went backwards
		a.counter++
	}

	return Token(fmt.Sprintf("%0*d-%s-%0*d", wallDigits, a.lastWall, a.clientID, counterDigits, a.counter))
}
