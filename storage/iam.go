package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const (
	iamGrantType = "urn:ibm:params:oauth:grant-type:apikey"
	// tokens are refreshed this long before IAM says they expire
	iamExpiryDelta = time.Minute
)

// iamTokenResponse is the body of a successful IAM token exchange
type iamTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Expiration  int64  `json:"expiration"`
}

// iamTokenSource exchanges an API key for an IAM bearer token
type iamTokenSource struct {
	apiKey   string
	tokenURL string
	client   *http.Client
	now      func() time.Time
}

func (s *iamTokenSource) Token() (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("grant_type", iamGrantType)
	form.Set("apikey", s.apiKey)

	req, err := http.NewRequest(http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build IAM token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("IAM token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read IAM token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("IAM token request returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok iamTokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("invalid IAM token response: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("IAM token response has no access_token")
	}

	var expiry time.Time
	switch {
	case tok.Expiration > 0:
		expiry = time.Unix(tok.Expiration, 0)
	case tok.ExpiresIn > 0:
		expiry = s.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	}

	return &oauth2.Token{AccessToken: tok.AccessToken, TokenType: "Bearer", Expiry: expiry}, nil
}

// NewIAMHTTPClient returns a client that authorizes every request with an IAM bearer token
// obtained for apiKey. The token is reused until shortly before it expires.
func NewIAMHTTPClient(apiKey, tokenURL string, base http.RoundTripper) *http.Client {
	if base == nil {
		base = http.DefaultTransport
	}
	src := &iamTokenSource{
		apiKey:   apiKey,
		tokenURL: tokenURL,
		client:   &http.Client{Transport: base, Timeout: 30 * time.Second},
		now:      time.Now,
	}
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.ReuseTokenSourceWithExpiry(nil, src, iamExpiryDelta),
			Base:   base,
		},
	}
}
