package accounts_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	headers map[string]string
	cookies map[string]string
	query   map[string]string
	params  map[string]string
}

func (f fakeSource) Header(key string) string { return f.headers[key] }

func (f fakeSource) Cookies(key string, defaultValue ...string) string {
	if v, ok := f.cookies[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func (f fakeSource) Query(key string, defaultValue string) string {
	if v, ok := f.query[key]; ok {
		return v
	}
	return defaultValue
}

func (f fakeSource) Param(key string, defaultValue ...string) string {
	if v, ok := f.params[key]; ok {
		return v
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

func TestExtractRawTokenOrder(t *testing.T) {
	extractors := accounts.GetExtractors(accounts.DefaultTokenLookup)
	require.Len(t, extractors, 2)

	tests := []struct {
		name   string
		source fakeSource
		want   string
		err    error
	}{
		{
			name:   "bearer header",
			source: fakeSource{headers: map[string]string{"Authorization": "Bearer header-token"}},
			want:   "header-token",
		},
		{
			name:   "scheme is case insensitive",
			source: fakeSource{headers: map[string]string{"Authorization": "bearer header-token"}},
			want:   "header-token",
		},
		{
			name: "header wins over cookie",
			source: fakeSource{
				headers: map[string]string{"Authorization": "Bearer header-token"},
				cookies: map[string]string{"token": "cookie-token"},
			},
			want: "header-token",
		},
		{
			name:   "cookie fallback",
			source: fakeSource{cookies: map[string]string{"token": "cookie-token"}},
			want:   "cookie-token",
		},
		{
			name: "wrong scheme falls through to cookie",
			source: fakeSource{
				headers: map[string]string{"Authorization": "Basic abc"},
				cookies: map[string]string{"token": "cookie-token"},
			},
			want: "cookie-token",
		},
		{
			name:   "nothing presented",
			source: fakeSource{},
			err:    accounts.ErrUnauthenticated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := accounts.ExtractRawToken(tt.source, extractors)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetExtractorsQueryAndParam(t *testing.T) {
	extractors := accounts.GetExtractors("query:token, param:token, bogus", "Token")
	require.Len(t, extractors, 2)

	got, err := accounts.ExtractRawToken(fakeSource{query: map[string]string{"token": "q"}}, extractors)
	require.NoError(t, err)
	assert.Equal(t, "q", got)

	got, err = accounts.ExtractRawToken(fakeSource{params: map[string]string{"token": "p"}}, extractors)
	require.NoError(t, err)
	assert.Equal(t, "p", got)

	custom := accounts.GetExtractors("header:Authorization", "Token")
	got, err = accounts.ExtractRawToken(fakeSource{headers: map[string]string{"Authorization": "Token abc"}}, custom)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func TestErrorBody(t *testing.T) {
	status, body := accounts.ErrorBody(accounts.ErrLastSuperadmin, false)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, accounts.ErrLastSuperadmin.Message, body["message"])
	assert.Equal(t, accounts.TextCodeLastSuperadmin, body["code"])
	assert.NotContains(t, body, "detail")

	status, body = accounts.ErrorBody(errors.New("pq: password authentication failed"), false)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", body["message"])
	assert.NotContains(t, body, "code")

	_, body = accounts.ErrorBody(errors.New("pq: password authentication failed"), true)
	assert.Equal(t, "pq: password authentication failed", body["detail"])

	status, body = accounts.ErrorBody(accounts.ErrNoApproversAvailable, false)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.NotContains(t, body, "code")
}
