// Package code assigns human-readable movement codes.
//
// A code is the creation minute followed by a two-digit sequence within
// that minute: "16102026:14:05" + "03" = "16102026:14:0503". Codes are
// labels only and play no part in balance arithmetic.
package code

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Layout is the time layout of a code prefix (DDMMYYYY:HH:MM).
const Layout = "02012006:15:04"

// Generator produces the next movement code for an owner.
type Generator interface {
	Next(ctx context.Context, ownerID string, at time.Time) (string, error)
}

// Source lists codes already assigned. movement.Store satisfies it.
type Source interface {
	MovementCodes(ctx context.Context, ownerID, prefix string) ([]string, error)
}

// Prefix returns the code prefix for t.
func Prefix(t time.Time) string { return t.Format(Layout) }

// Sequence numbers codes per owner and minute. It consults the store for
// codes already persisted and remembers what it handed out, so two calls
// in the same minute never collide even before either movement is saved.
type Sequence struct {
	src Source

	mu     sync.Mutex
	issued map[string]issuedSeq // owner + "|" + prefix
}

type issuedSeq struct {
	minute time.Time
	last   int
}

// NewSequence creates a Sequence backed by src.
func NewSequence(src Source) *Sequence {
	return &Sequence{src: src, issued: make(map[string]issuedSeq)}
}

// Next implements Generator.
func (s *Sequence) Next(ctx context.Context, ownerID string, at time.Time) (string, error) {
	prefix := Prefix(at)

	existing, err := s.src.MovementCodes(ctx, ownerID, prefix)
	if err != nil {
		return "", fmt.Errorf("code: list %s: %w", prefix, err)
	}

	highest := 0
	for _, c := range existing {
		if n, ok := sequenceOf(c, prefix); ok && n > highest {
			highest = n
		}
	}

	key := ownerID + "|" + prefix
	minute := at.Truncate(time.Minute)

	s.mu.Lock()
	defer s.mu.Unlock()

	if last := s.issued[key].last; last > highest {
		highest = last
	}
	next := highest + 1
	s.issued[key] = issuedSeq{minute: minute, last: next}

	// Only minutes before this one are done; a caller whose clock lags into
	// the previous minute must not drop a later minute still in use.
	for k, v := range s.issued {
		if v.minute.Before(minute) {
			delete(s.issued, k)
		}
	}

	return fmt.Sprintf("%s%02d", prefix, next), nil
}

// sequenceOf extracts the numeric suffix of c if it carries prefix.
func sequenceOf(c, prefix string) (int, bool) {
	if !strings.HasPrefix(c, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(c[len(prefix):])
	if err != nil {
		return 0, false
	}
	return n, true
}
