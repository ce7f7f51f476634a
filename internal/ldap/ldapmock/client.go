// Package ldapmock provides a testify-backed fake of ldap.Client.
package ldapmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/isometry/terraform-provider-adclient/internal/ldap"
)

// Client implements ldap.Client for tests.
type Client struct {
	mock.Mock
}

var _ ldap.Client = (*Client)(nil)

func (m *Client) Connect(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *Client) Close() error {
	return m.Called().Error(0)
}

func (m *Client) Bind(ctx context.Context, username, password string) error {
	return m.Called(ctx, username, password).Error(0)
}

func (m *Client) BindWithConfig(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *Client) CheckCredentials(ctx context.Context, username, password string) error {
	return m.Called(ctx, username, password).Error(0)
}

func searchResult(args mock.Arguments) (*ldap.SearchResult, error) {
	if result, ok := args.Get(0).(*ldap.SearchResult); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) Search(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return searchResult(m.Called(ctx, req))
}

func (m *Client) SearchWithPaging(ctx context.Context, req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	return searchResult(m.Called(ctx, req))
}

func (m *Client) Add(ctx context.Context, req *ldap.AddRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *Client) Modify(ctx context.Context, req *ldap.ModifyRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *Client) ModifyDN(ctx context.Context, req *ldap.ModifyDNRequest) error {
	return m.Called(ctx, req).Error(0)
}

func (m *Client) Delete(ctx context.Context, dn string) error {
	return m.Called(ctx, dn).Error(0)
}

func (m *Client) WhoAmI(ctx context.Context) (*ldap.WhoAmIResult, error) {
	args := m.Called(ctx)
	if result, ok := args.Get(0).(*ldap.WhoAmIResult); ok {
		return result, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Client) GetBaseDN(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *Client) BoundServer() string {
	return m.Called().String(0)
}

func (m *Client) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *Client) Stats() ldap.PoolStats {
	if stats, ok := m.Called().Get(0).(ldap.PoolStats); ok {
		return stats
	}
	return ldap.PoolStats{}
}
