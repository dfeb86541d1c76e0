package models

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/dmitrijs2005/comicsync/internal/common"
)

// Check validates one field value and returns the rejection reason, or ""
// when the value is acceptable. JSON null is handed to the check too.
type Check func(v any) string

// Level lists the fields a row level accepts.
type Level map[string]Check

// Kind describes a library table and the per-user table attached to it.
type Kind struct {
	Name      string
	Table     string
	UserTable string
	Primary   Level
	User      Level
	// Filterable lists the field paths List accepts as filters; user level
	// fields are written as "user.<field>".
	Filterable []string
}

var Books = &Kind{
	Name:      "books",
	Table:     "books",
	UserTable: "user_books",
	Primary: Level{
		"title":   text(true),
		"series":  text(false),
		"volume":  number(0, math.Inf(1), false),
		"chapter": number(0, math.Inf(1), false),
		"sort":    number(math.Inf(-1), math.Inf(1), false),
		"tags":    textList,
		"file":    text(false),
		"pages":   number(0, math.Inf(1), true),
		"rating":  number(0, 5, false),
	},
	User: Level{
		"current_page": number(0, math.Inf(1), true),
		"finished":     boolean,
		"rating":       number(0, 5, false),
		"last_read_at": text(false),
	},
	Filterable: []string{"series", "user.finished"},
}

var Series = &Kind{
	Name:      "series",
	Table:     "series",
	UserTable: "user_series",
	Primary: Level{
		"name":       text(true),
		"anilist_id": number(0, math.Inf(1), true),
		"tags":       textList,
		"book_count": number(0, math.Inf(1), true),
		"year":       number(0, 9999, true),
	},
	User: Level{
		"reading":      boolean,
		"current_book": text(false),
		"list":         text(false),
		"rating":       number(0, 5, false),
	},
	Filterable: []string{"name", "user.reading", "user.list"},
}

var kinds = map[string]*Kind{
	Books.Name:  Books,
	Series.Name: Series,
}

// LookupKind returns the kind registered under name.
func LookupKind(name string) (*Kind, error) {
	k, ok := kinds[name]
	if !ok {
		return nil, common.NewFieldError("kind", fmt.Sprintf("unknown kind %q", name))
	}
	return k, nil
}

// FilterExpr returns the SQL expression a filter path compares against.
// Primary fields live on alias p and user fields on alias u.
func (k *Kind) FilterExpr(path string) (string, error) {
	if !slices.Contains(k.Filterable, path) {
		return "", common.NewFieldError("filters."+path, "not filterable")
	}
	if field, ok := strings.CutPrefix(path, KeyUser+"."); ok {
		return fmt.Sprintf("u.data->>'%s'", field), nil
	}
	return fmt.Sprintf("p.data->>'%s'", path), nil
}

var reserved = []string{KeyID, KeyCreatedAt, KeyUpdatedAt, KeyDeletedAt, KeyUser}

// Decode reads a pushed level from its wire shape. Every value is checked
// against the level; the first failure, in field order, is returned as a
// *common.FieldError. prefix is prepended to field names in errors.
func (l Level) Decode(prefix string, m map[string]any) (Record, error) {
	rec := NewRecord()

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, f := range keys {
		v := m[f]
		switch {
		case f == KeyUpdateMap:
			if err := l.decodeUpdateMap(prefix, v, rec.UpdateMap); err != nil {
				return Record{}, err
			}
		case slices.Contains(reserved, f):
		default:
			check, ok := l[f]
			if !ok {
				return Record{}, common.NewFieldError(prefix+f, "unknown field")
			}
			if reason := check(v); reason != "" {
				return Record{}, common.NewFieldError(prefix+f, reason)
			}
			rec.Data[f] = v
		}
	}
	return rec, nil
}

// Complete reports the first field, in name order, that the level requires
// but data lacks.
func (l Level) Complete(prefix string, data map[string]any) error {
	fields := make([]string, 0, len(l))
	for f := range l {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	for _, f := range fields {
		if _, ok := data[f]; ok {
			continue
		}
		if reason := l[f](nil); reason != "" {
			return common.NewFieldError(prefix+f, reason)
		}
	}
	return nil
}

func (l Level) decodeUpdateMap(prefix string, v any, dst map[string]string) error {
	if v == nil {
		return nil
	}
	um, ok := v.(map[string]any)
	if !ok {
		return common.NewFieldError(prefix+KeyUpdateMap, "must be an object")
	}
	for f, t := range um {
		if _, known := l[f]; !known {
			return common.NewFieldError(prefix+KeyUpdateMap+"."+f, "unknown field")
		}
		tok, ok := t.(string)
		if !ok || tok == "" {
			return common.NewFieldError(prefix+KeyUpdateMap+"."+f, "must be a write token")
		}
		dst[f] = tok
	}
	return nil
}

func text(required bool) Check {
	return func(v any) string {
		if v == nil {
			if required {
				return "required"
			}
			return ""
		}
		s, ok := v.(string)
		if !ok {
			return "must be a string"
		}
		if required && strings.TrimSpace(s) == "" {
			return "must not be empty"
		}
		return ""
	}
}

func number(lo, hi float64, integer bool) Check {
	return func(v any) string {
		if v == nil {
			return ""
		}
		n, ok := v.(float64)
		if !ok {
			return "must be a number"
		}
		if integer && n != math.Trunc(n) {
			return "must be an integer"
		}
		switch {
		case n >= lo && n <= hi:
		case math.IsInf(hi, 1):
			return fmt.Sprintf("must be at least %g", lo)
		default:
			return fmt.Sprintf("must be between %g and %g", lo, hi)
		}
		return ""
	}
}

func boolean(v any) string {
	if v == nil {
		return ""
	}
	if _, ok := v.(bool); !ok {
		return "must be true or false"
	}
	return ""
}

func textList(v any) string {
	if v == nil {
		return ""
	}
	items, ok := v.([]any)
	if !ok {
		return "must be a list of strings"
	}
	for _, it := range items {
		if _, ok := it.(string); !ok {
			return "must be a list of strings"
		}
	}
	return ""
}
