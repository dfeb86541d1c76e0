package grpc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/comicsync/internal/api"
	"github.com/dmitrijs2005/comicsync/internal/common"
	"github.com/dmitrijs2005/comicsync/internal/server/models"
	"github.com/dmitrijs2005/comicsync/internal/server/services"
)

type userService interface {
	Register(ctx context.Context, username, password string) (*models.User, error)
	Login(ctx context.Context, username, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type libraryService interface {
	List(ctx context.Context, userID string, req services.ListRequest) (*services.ListResult, error)
	Update(ctx context.Context, kind, id string, incoming map[string]any) (*models.Row, error)
	UpdateUser(ctx context.Context, userID, kind, id string, incoming map[string]any) (*models.UserRecord, error)
	Delete(ctx context.Context, kind, id string) error
	DownloadURL(ctx context.Context, userID, bookID string) (string, error)
}

func (s *GRPCServer) Ping(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.reply(ctx, map[string]any{api.FieldStatus: api.StatusOK})
}

func (s *GRPCServer) Register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := api.Decode(req)
	username := api.String(in, api.FieldUsername)

	user, err := s.users.Register(ctx, username, api.String(in, api.FieldPassword))
	if err != nil {
		return nil, s.toStatus(ctx, "register", err)
	}

	s.logger.Info(ctx, "Registered", "username", user.UserName, "id", user.ID)
	return s.reply(ctx, map[string]any{api.FieldStatus: api.StatusOK, api.FieldID: user.ID})
}

func (s *GRPCServer) Login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := api.Decode(req)

	tokens, err := s.users.Login(ctx, api.String(in, api.FieldUsername), api.String(in, api.FieldPassword))
	if err != nil {
		return nil, s.toStatus(ctx, "login", err)
	}
	return s.tokens(ctx, tokens)
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	in := api.Decode(req)

	tokens, err := s.users.RefreshToken(ctx, api.String(in, api.FieldRefreshToken))
	if err != nil {
		return nil, s.toStatus(ctx, "refresh token", err)
	}
	return s.tokens(ctx, tokens)
}

func (s *GRPCServer) List(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	in := api.Decode(req)

	lr := services.ListRequest{
		Kind:     api.String(in, api.FieldKind),
		AfterID:  api.String(in, api.FieldAfterID),
		Page:     api.Int(in, api.FieldPage),
		PageSize: api.Int(in, api.FieldPageSize),
	}
	if raw := api.String(in, api.FieldUpdatedAfter); raw != "" {
		lr.UpdatedAfter, err = time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, api.FieldErrorStatus(&common.FieldError{Field: api.FieldUpdatedAfter, Reason: "must be an RFC 3339 time"})
		}
	}
	if filters, ok := api.Object(in, api.FieldFilters); ok {
		lr.Filters = make(map[string]string, len(filters))
		for k, v := range filters {
			str, ok := v.(string)
			if !ok {
				return nil, api.FieldErrorStatus(&common.FieldError{Field: api.FieldFilters + "." + k, Reason: "must be a string"})
			}
			lr.Filters[k] = str
		}
	}

	res, err := s.library.List(ctx, userID, lr)
	if err != nil {
		return nil, s.toStatus(ctx, "list", err)
	}

	data := make([]any, 0, len(res.Rows))
	for _, r := range res.Rows {
		data = append(data, r.ToMap())
	}
	out := map[string]any{
		api.FieldTotal:    res.Total,
		api.FieldPage:     res.Page,
		api.FieldPageSize: res.PageSize,
		api.FieldData:     data,
	}
	if res.Next != nil {
		out[api.FieldNext] = map[string]any{
			api.FieldUpdatedAfter: res.Next.UpdatedAt.UTC().Format(time.RFC3339Nano),
			api.FieldAfterID:      res.Next.ID,
		}
	}
	return s.reply(ctx, out)
}

func (s *GRPCServer) Update(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := userIDFromContext(ctx); err != nil {
		return nil, err
	}
	in := api.Decode(req)
	row, _ := api.Object(in, api.FieldRow)

	saved, err := s.library.Update(ctx, api.String(in, api.FieldKind), api.String(in, api.FieldID), row)
	if err != nil {
		return nil, s.toStatus(ctx, "update", err)
	}
	return s.reply(ctx, map[string]any{api.FieldRow: saved.ToMap()})
}

func (s *GRPCServer) UpdateUser(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	in := api.Decode(req)
	row, _ := api.Object(in, api.FieldRow)

	saved, err := s.library.UpdateUser(ctx, userID, api.String(in, api.FieldKind), api.String(in, api.FieldID), row)
	if err != nil {
		return nil, s.toStatus(ctx, "update user", err)
	}
	return s.reply(ctx, map[string]any{api.FieldRow: saved.Record.ToMap()})
}

func (s *GRPCServer) Delete(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if _, err := userIDFromContext(ctx); err != nil {
		return nil, err
	}
	in := api.Decode(req)

	if err := s.library.Delete(ctx, api.String(in, api.FieldKind), api.String(in, api.FieldID)); err != nil {
		return nil, s.toStatus(ctx, "delete", err)
	}
	return s.reply(ctx, map[string]any{api.FieldStatus: api.StatusOK})
}

func (s *GRPCServer) DownloadURL(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID, err := userIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	in := api.Decode(req)

	url, err := s.library.DownloadURL(ctx, userID, api.String(in, api.FieldBookID))
	if err != nil {
		return nil, s.toStatus(ctx, "download url", err)
	}
	return s.reply(ctx, map[string]any{api.FieldURL: url})
}

func (s *GRPCServer) tokens(ctx context.Context, t *services.TokenPair) (*structpb.Struct, error) {
	return s.reply(ctx, map[string]any{
		api.FieldAccessToken:  t.AccessToken,
		api.FieldRefreshToken: t.RefreshToken,
	})
}

func (s *GRPCServer) reply(ctx context.Context, m map[string]any) (*structpb.Struct, error) {
	out, err := api.Encode(m)
	if err != nil {
		s.logger.Error(ctx, "encoding reply", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

// toStatus maps service errors onto gRPC codes. Unexpected errors are logged
// and reported as Internal without their text.
func (s *GRPCServer) toStatus(ctx context.Context, op string, err error) error {
	var fe *common.FieldError
	switch {
	case errors.As(err, &fe):
		return api.FieldErrorStatus(fe)
	case errors.Is(err, common.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, common.ErrRefreshTokenExpired.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.Error(ctx, fmt.Sprintf("%s failed", op), "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
