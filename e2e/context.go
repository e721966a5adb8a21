package e2e

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TestContext carries HTTP state between the steps of one scenario.
type TestContext struct {
	baseURL    string
	adminToken string
	client     *http.Client

	// forwardedFor gives each scenario its own rate limit bucket.
	forwardedFor string

	lastStatus  int
	lastBody    []byte
	lastHeaders http.Header

	clientID     string
	clientSecret string
	redirectURI  string
	sessionToken string
	authCode     string
	verifier     string
	accessToken  string
}

func NewTestContext(baseURL, adminToken string) *TestContext {
	return &TestContext{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminToken: adminToken,
		client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Reset clears per-scenario state.
func (tc *TestContext) Reset() {
	*tc = TestContext{
		baseURL:      tc.baseURL,
		adminToken:   tc.adminToken,
		client:       tc.client,
		forwardedFor: randomIP(),
	}
}

func randomIP() string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("10.%d.%d.%d", b[0], b[1], b[2])
}

func (tc *TestContext) do(req *http.Request, headers map[string]string) error {
	req.Header.Set("X-Forwarded-For", tc.forwardedFor)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastBody = body
	tc.lastHeaders = resp.Header
	return nil
}

func (tc *TestContext) POST(path string, body interface{}) error {
	return tc.POSTWithHeaders(path, body, nil)
}

func (tc *TestContext) POSTWithHeaders(path string, body interface{}, headers map[string]string) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, tc.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return tc.do(req, headers)
}

func (tc *TestContext) POSTForm(path string, form url.Values, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodPost, tc.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return tc.do(req, headers)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	req, err := http.NewRequest(http.MethodGet, tc.baseURL+path, nil)
	if err != nil {
		return err
	}
	return tc.do(req, headers)
}

func (tc *TestContext) GetResponseField(field string) (interface{}, error) {
	var body map[string]interface{}
	if err := json.Unmarshal(tc.lastBody, &body); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", tc.lastBody)
	}
	v, ok := body[field]
	if !ok {
		return nil, fmt.Errorf("field %q not in response: %s", field, tc.lastBody)
	}
	return v, nil
}

func (tc *TestContext) GetLastResponseStatus() int  { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }
func (tc *TestContext) GetLastResponseHeader(name string) string {
	return tc.lastHeaders.Get(name)
}

func (tc *TestContext) GetAdminToken() string { return tc.adminToken }

func (tc *TestContext) GetClientID() string     { return tc.clientID }
func (tc *TestContext) GetClientSecret() string { return tc.clientSecret }
func (tc *TestContext) GetRedirectURI() string  { return tc.redirectURI }

func (tc *TestContext) SetClient(id, secret, redirectURI string) {
	tc.clientID, tc.clientSecret, tc.redirectURI = id, secret, redirectURI
}

func (tc *TestContext) GetSessionToken() string      { return tc.sessionToken }
func (tc *TestContext) SetSessionToken(token string) { tc.sessionToken = token }

func (tc *TestContext) GetAuthCode() string     { return tc.authCode }
func (tc *TestContext) SetAuthCode(code string) { tc.authCode = code }

func (tc *TestContext) GetVerifier() string         { return tc.verifier }
func (tc *TestContext) SetVerifier(verifier string) { tc.verifier = verifier }

func (tc *TestContext) GetAccessToken() string      { return tc.accessToken }
func (tc *TestContext) SetAccessToken(token string) { tc.accessToken = token }
