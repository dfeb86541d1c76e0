package api

import (
	"fmt"

	"github.com/dmitrijs2005/comicsync/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Payload keys.
const (
	FieldStatus       = "status"
	FieldUsername     = "username"
	FieldPassword     = "password"
	FieldAccessToken  = "access_token"
	FieldRefreshToken = "refresh_token"
	FieldKind         = "kind"
	FieldID           = "id"
	FieldBookID       = "book_id"
	FieldUpdatedAfter = "updated_after"
	FieldAfterID      = "after_id"
	FieldNext         = "next"
	FieldFilters      = "filters"
	FieldPage         = "page"
	FieldPageSize     = "page_size"
	FieldTotal        = "total"
	FieldData         = "data"
	FieldRow          = "row"
	FieldURL          = "url"

	StatusOK = "OK"
)

// Encode builds a Struct from plain JSON values.
func Encode(m map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedRow, err)
	}
	return s, nil
}

// Decode returns the Struct as plain JSON values. A nil Struct decodes to an
// empty map.
func Decode(s *structpb.Struct) map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return s.AsMap()
}

// String reads a string field, "" when absent or of another type.
func String(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// Int reads a numeric field.
func Int(m map[string]any, key string) int {
	v, _ := m[key].(float64)
	return int(v)
}

// Object reads a nested object.
func Object(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key].(map[string]any)
	return v, ok
}

// FieldErrorStatus encodes a field-level rejection as InvalidArgument with
// the field and reason attached as a Struct detail.
func FieldErrorStatus(fe *common.FieldError) error {
	st := status.New(codes.InvalidArgument, fe.Error())
	detail, err := structpb.NewStruct(map[string]any{"field": fe.Field, "reason": fe.Reason})
	if err != nil {
		return st.Err()
	}
	withDetails, err := st.WithDetails(detail)
	if err != nil {
		return st.Err()
	}
	return withDetails.Err()
}

// FieldErrorFromStatus recovers the *common.FieldError carried by st. When
// the detail is missing the status message becomes the reason.
func FieldErrorFromStatus(st *status.Status) *common.FieldError {
	for _, d := range st.Details() {
		if s, ok := d.(*structpb.Struct); ok {
			m := s.AsMap()
			return &common.FieldError{Field: String(m, "field"), Reason: String(m, "reason")}
		}
	}
	return &common.FieldError{Reason: st.Message()}
}
