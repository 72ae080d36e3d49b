package authsdk

import (
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for one organization's slice of the Quartz identity
// service. The organization rides along as the X-Org-ID header on every
// request; tenant-scoped endpoints reject requests without it.
type SDKClient struct {
	BaseURL    string
	Org        string
	HTTPClient *http.Client
}

// NewSDKClient creates a new client bound to one organization.
func NewSDKClient(baseURL, org string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		Org:     org,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// NewSession wraps an access token for authenticated calls. The token comes
// from a completed authorization-code exchange.
func (c *SDKClient) NewSession(accessToken string) *Session {
	return &Session{client: c, accessToken: accessToken}
}

// Session is an authenticated caller: an SDKClient plus a bearer token.
type Session struct {
	client      *SDKClient
	accessToken string
}
