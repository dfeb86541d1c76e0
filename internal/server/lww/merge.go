// Package lww merges pushed row levels into the stored ones, field by field,
// keeping the value with the newest write token.
//
// Write tokens are "<15-digit millis>-<instance>-<6-digit counter>" strings,
// so plain string comparison orders them by wall time first.
package lww

import (
	"slices"

	"github.com/dmitrijs2005/comicsync/internal/server/models"
)

// Result is the outcome of MergeRecord.
type Result struct {
	Record models.Record
	// Accepted lists the fields whose incoming value won, sorted.
	Accepted []string
	// Rejected lists the fields whose stored value was newer, sorted.
	Rejected []string
}

// Changed reports whether any incoming value was taken.
func (r Result) Changed() bool {
	return len(r.Accepted) > 0
}

// Newer reports whether token a wins over b. Any token beats none; no token
// never beats a stored one.
func Newer(a, b string) bool {
	if b == "" {
		return true
	}
	return a > b
}

// MergeRecord applies incoming onto stored. A field is taken when its
// incoming token is newer than the stored token for it; the stored token is
// then replaced by the incoming one. Fields without a token are taken only
// when the stored field has none either. stored is not modified.
func MergeRecord(stored, incoming models.Record) Result {
	out := Result{Record: stored.Clone()}

	for f, v := range incoming.Data {
		tok := incoming.UpdateMap[f]
		if !Newer(tok, stored.UpdateMap[f]) {
			out.Rejected = append(out.Rejected, f)
			continue
		}
		out.Record.Data[f] = v
		if tok != "" {
			out.Record.UpdateMap[f] = tok
		}
		out.Accepted = append(out.Accepted, f)
	}

	slices.Sort(out.Accepted)
	slices.Sort(out.Rejected)
	return out
}
