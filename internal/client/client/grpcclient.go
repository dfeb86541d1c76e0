package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/comicsync/internal/api"
	"github.com/dmitrijs2005/comicsync/internal/client/models"
	"github.com/dmitrijs2005/comicsync/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const defaultTimeout = 15 * time.Second

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      api.LibraryClient
	timeout     time.Duration

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) tokens() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken, s.refreshToken
}

func (s *GRPCClient) setTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken, s.refreshToken = access, refresh
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	access, refresh := s.tokens()
	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if err == nil || method == api.MethodRefreshToken {
		return err
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}
	if refresh == "" {
		return err
	}

	in, encErr := api.Encode(map[string]any{api.FieldRefreshToken: refresh})
	if encErr != nil {
		return encErr
	}
	out, rerr := s.client.Call(ctx, api.MethodRefreshToken, in)
	if rerr != nil {
		return rerr
	}
	m := api.Decode(out)
	s.setTokens(api.String(m, api.FieldAccessToken), api.String(m, api.FieldRefreshToken))

	access, _ = s.tokens()
	return invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
}

// NewGRPCClient connects lazily to endpointURL.
func NewGRPCClient(endpointURL string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, timeout: defaultTimeout}
	conn, err := grpc.NewClient(endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor))
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = api.NewLibraryClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) call(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	in, err := api.Encode(req)
	if err != nil {
		return nil, err
	}
	out, err := s.client.Call(ctx, method, in)
	if err != nil {
		return nil, s.mapError(err)
	}
	return api.Decode(out), nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.call(ctx, api.MethodPing, nil)
	if err != nil {
		return err
	}
	if api.String(resp, api.FieldStatus) != api.StatusOK {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Register(ctx context.Context, username, password string) error {
	_, err := s.call(ctx, api.MethodRegister, map[string]any{
		api.FieldUsername: username,
		api.FieldPassword: password,
	})
	return err
}

func (s *GRPCClient) Login(ctx context.Context, username, password string) error {
	resp, err := s.call(ctx, api.MethodLogin, map[string]any{
		api.FieldUsername: username,
		api.FieldPassword: password,
	})
	if err != nil {
		return err
	}
	s.setTokens(api.String(resp, api.FieldAccessToken), api.String(resp, api.FieldRefreshToken))
	return nil
}

func (s *GRPCClient) List(ctx context.Context, kind models.Kind, p ListParams) (*ListPage, error) {
	schema, err := models.Lookup(kind)
	if err != nil {
		return nil, err
	}

	filters := make(map[string]any, len(p.Filters))
	for k, v := range p.Filters {
		filters[k] = v
	}
	req := map[string]any{
		api.FieldKind:     string(kind),
		api.FieldFilters:  filters,
		api.FieldPage:     p.Page,
		api.FieldPageSize: p.PageSize,
	}
	if !p.UpdatedAfter.IsZero() {
		req[api.FieldUpdatedAfter] = p.UpdatedAfter.UTC().Format(time.RFC3339Nano)
	}
	if p.AfterID != "" {
		req[api.FieldAfterID] = p.AfterID
	}

	resp, err := s.call(ctx, api.MethodList, req)
	if err != nil {
		return nil, err
	}

	page := &ListPage{
		Total:    api.Int(resp, api.FieldTotal),
		Page:     api.Int(resp, api.FieldPage),
		PageSize: api.Int(resp, api.FieldPageSize),
	}
	if next, ok := api.Object(resp, api.FieldNext); ok {
		at, err := time.Parse(time.RFC3339Nano, api.String(next, api.FieldUpdatedAfter))
		if err != nil {
			return nil, fmt.Errorf("%w: %s next cursor: %v", common.ErrMalformedRow, kind, err)
		}
		page.Next = &Cursor{UpdatedAt: at, ID: api.String(next, api.FieldAfterID)}
	}
	raw, _ := resp[api.FieldData].([]any)
	page.Data = make([]*models.Entity, 0, len(raw))
	for i, r := range raw {
		m, ok := r.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s data[%d] is not an object", common.ErrMalformedRow, kind, i)
		}
		e, err := models.EntityFromMap(schema, m)
		if err != nil {
			return nil, fmt.Errorf("%s data[%d]: %w", kind, i, err)
		}
		page.Data = append(page.Data, e)
	}
	return page, nil
}

func (s *GRPCClient) Update(ctx context.Context, kind models.Kind, id string, rec models.Record) (*models.Entity, error) {
	schema, err := models.Lookup(kind)
	if err != nil {
		return nil, err
	}
	resp, err := s.call(ctx, api.MethodUpdate, map[string]any{
		api.FieldKind: string(kind),
		api.FieldID:   id,
		api.FieldRow:  rec.ToMap(),
	})
	if err != nil {
		return nil, err
	}
	row, ok := api.Object(resp, api.FieldRow)
	if !ok {
		return nil, fmt.Errorf("%w: update %s[%s]: missing row", common.ErrMalformedRow, kind, id)
	}
	return models.EntityFromMap(schema, row)
}

func (s *GRPCClient) UpdateUser(ctx context.Context, kind models.Kind, id string, rec models.Record) (*models.Record, error) {
	schema, err := models.Lookup(kind)
	if err != nil {
		return nil, err
	}
	resp, err := s.call(ctx, api.MethodUpdateUser, map[string]any{
		api.FieldKind: string(kind),
		api.FieldID:   id,
		api.FieldRow:  rec.ToMap(),
	})
	if err != nil {
		return nil, err
	}
	row, ok := api.Object(resp, api.FieldRow)
	if !ok {
		return nil, fmt.Errorf("%w: update user %s[%s]: missing row", common.ErrMalformedRow, kind, id)
	}
	return models.RecordFromMap(schema.Sub, row)
}

func (s *GRPCClient) Delete(ctx context.Context, kind models.Kind, id string) error {
	_, err := s.call(ctx, api.MethodDelete, map[string]any{
		api.FieldKind: string(kind),
		api.FieldID:   id,
	})
	return err
}

func (s *GRPCClient) DownloadURL(ctx context.Context, bookID string) (string, error) {
	resp, err := s.call(ctx, api.MethodDownloadURL, map[string]any{api.FieldBookID: bookID})
	if err != nil {
		return "", err
	}
	return api.String(resp, api.FieldURL), nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.InvalidArgument, codes.FailedPrecondition:
		return api.FieldErrorFromStatus(st)
	case codes.NotFound:
		return fmt.Errorf("%w: %s", common.ErrNotFound, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

var _ API = (*GRPCClient)(nil)
