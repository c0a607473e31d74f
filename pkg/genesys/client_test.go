package genesys

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/ccdash/internal/retry"
)

func newFakeGenesys(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		id, secret, ok := r.BasicAuth()
		if !ok || id != "client" || secret != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
			return
		}
		assert.Equal(t, "acme", r.Header.Get("X-Organization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer","expires_in":86399}`))
	})

	mux.HandleFunc("/api/v2/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "2", r.URL.Query().Get("pageNumber"))
		assert.Equal(t, "25", r.URL.Query().Get("pageSize"))
		assert.Contains(t, r.URL.Query().Get("expand"), "presence")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"entities": []map[string]any{{
				"id":            "u-1",
				"name":          "Ada Lovelace",
				"presence":      map[string]any{"presenceDefinition": map[string]any{"systemPresence": "Available"}},
				"routingStatus": map[string]any{"status": "IDLE"},
			}},
			"pageNumber": 2,
			"pageSize":   25,
			"pageCount":  3,
			"total":      51,
		})
	})

	mux.HandleFunc("/api/v2/routing/queues", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"rate limited"}`))
	})

	mux.HandleFunc("/api/v2/routing/queues/q-1/members", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"entities":[{"id":"u-1","joined":true,"ringNumber":2}],"pageNumber":1,"pageCount":1,"total":1}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server, secret string) *Client {
	t.Helper()
	c, err := New("client", secret,
		WithLoginBase(srv.URL),
		WithAPIBase(srv.URL),
		WithOrganization("acme"),
		WithPageSize(25),
		WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return c
}

func TestAuthenticateAndFetchUsers(t *testing.T) {
	srv := newFakeGenesys(t)
	c := newTestClient(t, srv, "secret")
	ctx := context.Background()

	sess, err := c.Authenticate(ctx)
	require.NoError(t, err)
	assert.False(t, sess.Expiry().IsZero())

	page, err := sess.UsersPage(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.PageCount)
	assert.Equal(t, 51, page.Total)
	require.Len(t, page.Entities, 1)

	u := page.Entities[0]
	assert.Equal(t, "u-1", u.ID)
	require.NotNil(t, u.Presence)
	assert.Equal(t, "Available", *u.Presence.PresenceDefinition.SystemPresence)
	assert.Nil(t, u.Email)
}

func TestAuthenticateBadCredentials(t *testing.T) {
	srv := newFakeGenesys(t)
	c := newTestClient(t, srv, "wrong")

	_, err := c.Authenticate(context.Background())
	require.Error(t, err)

	var se *retry.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.False(t, retry.IsTransient(err))
}

func TestQueuesRateLimitIsTransient(t *testing.T) {
	srv := newFakeGenesys(t)
	c := newTestClient(t, srv, "secret")
	sess := NewSession(c, "tok-123", time.Time{})

	_, err := sess.QueuesPage(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
	assert.Contains(t, err.Error(), "rate limited")
}

func TestQueueMembersPage(t *testing.T) {
	srv := newFakeGenesys(t)
	c := newTestClient(t, srv, "secret")
	sess := NewSession(c, "tok-123", time.Time{})

	page, err := sess.QueueMembersPage(context.Background(), "q-1", 1)
	require.NoError(t, err)
	require.Len(t, page.Entities, 1)
	assert.True(t, *page.Entities[0].Joined)
	assert.Equal(t, 2, *page.Entities[0].RingNumber)
}

func TestRegionFallback(t *testing.T) {
	assert.Equal(t, "https://api.usw2.pure.cloud", APIURL("us-west-2"))
	assert.Equal(t, "https://login.mypurecloud.ie", LoginURL("eu-west-1"))
	assert.Equal(t, "https://api.mypurecloud.com", APIURL("mars-north-1"))
	assert.False(t, KnownRegion("mars-north-1"))
}
