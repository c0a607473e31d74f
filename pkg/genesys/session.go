package genesys

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/briangreenhill/ccdash/internal/retry"
)

const userExpand = "presence,routingStatus,conversationSummary,outOfOffice,geolocation,station,authorization"

// Session is an authenticated view of the API. It is created once per
// refresh batch and discarded afterwards.
type Session struct {
	client *Client
	token  string
	expiry time.Time
}

// NewSession wraps an already issued access token.
func NewSession(c *Client, token string, expiry time.Time) *Session {
	return &Session{client: c, token: token, expiry: expiry}
}

// Expiry returns when the access token expires. Zero means unknown.
func (s *Session) Expiry() time.Time {
	return s.expiry
}

// UsersPage returns one page of users with presence and routing status.
func (s *Session) UsersPage(ctx context.Context, page int) (EntityListing[UserEntity], error) {
	var out EntityListing[UserEntity]
	q := s.pageQuery(page)
	q.Set("expand", userExpand)
	err := s.get(ctx, "/api/v2/users", q, &out)
	return out, err
}

// QueuesPage returns one page of routing queues.
func (s *Session) QueuesPage(ctx context.Context, page int) (EntityListing[QueueEntity], error) {
	var out EntityListing[QueueEntity]
	err := s.get(ctx, "/api/v2/routing/queues", s.pageQuery(page), &out)
	return out, err
}

// QueueMembersPage returns one page of the members of a queue.
func (s *Session) QueueMembersPage(ctx context.Context, queueID string, page int) (EntityListing[MemberEntity], error) {
	var out EntityListing[MemberEntity]
	p := path.Join("/api/v2/routing/queues", queueID, "members")
	err := s.get(ctx, p, s.pageQuery(page), &out)
	return out, err
}

func (s *Session) pageQuery(page int) url.Values {
	if page <= 0 {
		page = 1
	}
	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(s.client.pageSize))
	q.Set("pageNumber", strconv.Itoa(page))
	return q
}

func (s *Session) get(ctx context.Context, p string, q url.Values, out any) error {
	u := *s.client.apiBase
	u.Path = path.Join(u.Path, p)
	u.RawPath = ""
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return goerr.Wrap(err, "build request", goerr.V("path", p))
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", "application/json")
	if s.client.organization != "" {
		req.Header.Set("X-Organization", s.client.organization)
	}

	resp, err := s.client.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &retry.StatusError{
			Method:     http.MethodGet,
			URL:        p,
			StatusCode: resp.StatusCode,
			Body:       string(b),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return goerr.Wrap(err, "decode response", goerr.V("path", p))
	}
	return nil
}
