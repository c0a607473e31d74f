// Package genesys is a minimal client for the Genesys Cloud platform API.
package genesys

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/briangreenhill/ccdash/internal/retry"
)

const DefaultPageSize = 100

type Client struct {
	http         *http.Client
	apiBase      *url.URL
	loginBase    string
	clientID     string
	clientSecret string
	organization string
	pageSize     int
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRegion points the client at the hosts of a Genesys Cloud region.
func WithRegion(region string) Option {
	return func(c *Client) {
		c.loginBase = LoginURL(region)
		c.apiBase, _ = url.Parse(APIURL(region))
	}
}

func WithAPIBase(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil {
			c.apiBase = u
		}
	}
}

func WithLoginBase(raw string) Option {
	return func(c *Client) { c.loginBase = raw }
}

func WithOrganization(org string) Option {
	return func(c *Client) { c.organization = org }
}

func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func New(clientID, clientSecret string, opts ...Option) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, errors.New("client id and secret required")
	}
	c := &Client{
		http:         &http.Client{Timeout: 60 * time.Second},
		clientID:     clientID,
		clientSecret: clientSecret,
		pageSize:     DefaultPageSize,
	}
	WithRegion(DefaultRegion)(c)
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// PageSize returns the page size used for list endpoints.
func (c *Client) PageSize() int {
	return c.pageSize
}

// Authenticate performs the client credentials grant and returns a session
// bound to the resulting token.
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	cfg := clientcredentials.Config{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		TokenURL:     c.loginBase + "/oauth/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.tokenHTTPClient())
	tok, err := cfg.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			return nil, &retry.StatusError{
				Method:     http.MethodPost,
				URL:        cfg.TokenURL,
				StatusCode: re.Response.StatusCode,
				Body:       string(re.Body),
			}
		}
		return nil, goerr.Wrap(err, "authenticate", goerr.V("token_url", cfg.TokenURL))
	}

	return &Session{client: c, token: tok.AccessToken, expiry: tok.Expiry}, nil
}

// tokenHTTPClient adds the organization header to token requests.
func (c *Client) tokenHTTPClient() *http.Client {
	if c.organization == "" {
		return c.http
	}
	base := c.http.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := *c.http
	hc.Transport = orgTransport{base: base, org: c.organization}
	return &hc
}

type orgTransport struct {
	base http.RoundTripper
	org  string
}

func (t orgTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set("X-Organization", t.org)
	return t.base.RoundTrip(r)
}
