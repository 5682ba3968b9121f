package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// fakeCredential is an azcore.TokenCredential returning a fixed ARM token.
type fakeCredential struct {
	calls  int32
	err    error
	scopes []string
}

func (f *fakeCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	atomic.AddInt32(&f.calls, 1)
	f.scopes = opts.Scopes
	if f.err != nil {
		return azcore.AccessToken{}, f.err
	}
	return azcore.AccessToken{Token: "arm-token", ExpiresOn: time.Now().Add(time.Hour)}, nil
}

var testAccount = Account{
	SubscriptionID: "sub-1",
	ResourceGroup:  "rg-video",
	AccountName:    "vi-account",
}

// newTestProvider creates a TokenProvider pointing at a test HTTP server.
func newTestProvider(server *httptest.Server, cred azcore.TokenCredential) *TokenProvider {
	p := NewTokenProvider(cred, testAccount, server.URL)
	p.httpClient = server.Client()
	return p
}

func TestAccessToken_Exchange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		wantPath := "/subscriptions/sub-1/resourceGroups/rg-video/providers/Microsoft.VideoIndexer/accounts/vi-account/generateAccessToken"
		if r.URL.Path != wantPath {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != APIVersion {
			t.Errorf("unexpected api-version: %s", r.URL.Query().Get("api-version"))
		}
		if got := r.Header.Get("Authorization"); got != "Bearer arm-token" {
			t.Errorf("unexpected Authorization header: %s", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("unexpected Content-Type: %s", got)
		}

		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
			return
		}
		if body["permissionType"] != "Contributor" || body["scope"] != "Account" {
			t.Errorf("unexpected body: %v", body)
		}

		json.NewEncoder(w).Encode(generateAccessTokenResponse{AccessToken: "vi-token"})
	}))
	defer server.Close()

	cred := &fakeCredential{}
	p := newTestProvider(server, cred)

	token, err := p.AccessToken(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "vi-token" {
		t.Errorf("expected vi-token, got %s", token)
	}
	if len(cred.scopes) != 1 || cred.scopes[0] != "https://management.azure.com/.default" {
		t.Errorf("unexpected scopes: %v", cred.scopes)
	}
}

func TestAccessToken_CachedAfterFirstCall(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		json.NewEncoder(w).Encode(generateAccessTokenResponse{AccessToken: "vi-token"})
	}))
	defer server.Close()

	cred := &fakeCredential{}
	p := newTestProvider(server, cred)

	for i := 0; i < 5; i++ {
		if _, err := p.AccessToken(context.Background()); err != nil {
			t.Fatalf("call %d: unexpected error: %v", i, err)
		}
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected 1 exchange, got %d", got)
	}
	if cred.calls != 1 {
		t.Errorf("expected 1 credential call, got %d", cred.calls)
	}
}

func TestAccessToken_ConcurrentCallersExchangeOnce(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(20 * time.Millisecond)
		json.NewEncoder(w).Encode(generateAccessTokenResponse{AccessToken: "vi-token"})
	}))
	defer server.Close()

	p := newTestProvider(server, &fakeCredential{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := p.AccessToken(context.Background())
			if err != nil || token != "vi-token" {
				t.Errorf("unexpected result: %q, %v", token, err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("expected 1 exchange across concurrent callers, got %d", got)
	}
}

func TestAccessToken_NonSuccessStatus(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.Error(w, `{"error":{"code":"AuthorizationFailed"}}`, http.StatusForbidden)
	}))
	defer server.Close()

	p := newTestProvider(server, &fakeCredential{})

	_, err := p.AccessToken(context.Background())
	var authErr *Error
	if !errors.As(err, &authErr) {
		t.Fatalf("expected *auth.Error, got %v", err)
	}
	if authErr.Type != ErrTypeExchange {
		t.Errorf("expected ErrTypeExchange, got %v", authErr.Type)
	}
	if authErr.StatusCode != http.StatusForbidden {
		t.Errorf("expected status 403, got %d", authErr.StatusCode)
	}

	// Failures are not cached: a second call tries again.
	p.AccessToken(context.Background())
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("expected 2 exchange attempts, got %d", got)
	}
}

func TestAccessToken_BadResponseBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"empty token", `{"accessToken":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := newTestProvider(server, &fakeCredential{})
			_, err := p.AccessToken(context.Background())

			var authErr *Error
			if !errors.As(err, &authErr) || authErr.Type != ErrTypeResponse {
				t.Errorf("expected ErrTypeResponse, got %v", err)
			}
		})
	}
}

func TestAccessToken_CredentialFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("exchange endpoint should not be called when the credential fails")
	}))
	defer server.Close()

	sentinel := errors.New("no managed identity endpoint")
	p := newTestProvider(server, &fakeCredential{err: sentinel})

	_, err := p.AccessToken(context.Background())
	var authErr *Error
	if !errors.As(err, &authErr) || authErr.Type != ErrTypeCredential {
		t.Fatalf("expected ErrTypeCredential, got %v", err)
	}
	if !errors.Is(err, sentinel) {
		t.Error("expected the credential error to be wrapped")
	}
}

func TestAccessTokenRequest_RoundTrip(t *testing.T) {
	data, err := json.Marshal(DefaultAccessTokenRequest)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"permissionType":"Contributor","scope":"Account"}` {
		t.Errorf("unexpected encoding: %s", data)
	}

	var decoded AccessTokenRequest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != DefaultAccessTokenRequest {
		t.Errorf("round trip mismatch: %+v", decoded)
	}
}

func TestAccessTokenRequest_CaseSensitive(t *testing.T) {
	tests := []string{
		`{"permissionType":"contributor","scope":"Account"}`,
		`{"permissionType":"Contributor","scope":"ACCOUNT"}`,
		`{"permissionType":"Admin","scope":"Account"}`,
	}
	for _, input := range tests {
		var req AccessTokenRequest
		if err := json.Unmarshal([]byte(input), &req); err == nil {
			t.Errorf("expected error decoding %s", input)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Type: ErrTypeExchange, Message: "access token request rejected", StatusCode: 401}
	if !strings.Contains(err.Error(), "status 401") {
		t.Errorf("expected status in message, got %q", err.Error())
	}
}

// captureLogs redirects the global logger to a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := log.Logger
	origLevel := zerolog.GlobalLevel()
	t.Cleanup(func() {
		log.Logger = orig
		zerolog.SetGlobalLevel(origLevel)
	})
	log.Logger = zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	return &buf
}

func TestAccessToken_FailuresAreLogged(t *testing.T) {
	tests := []struct {
		name   string
		cred   *fakeCredential
		status int
	}{
		{"credential failure", &fakeCredential{err: errors.New("not logged in")}, http.StatusOK},
		{"exchange failure", &fakeCredential{}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "denied", tt.status)
			}))
			defer server.Close()

			buf := captureLogs(t)
			p := newTestProvider(server, tt.cred)
			if _, err := p.AccessToken(context.Background()); err == nil {
				t.Fatal("expected an error")
			}

			out := buf.String()
			if !strings.Contains(out, `"level":"error"`) || !strings.Contains(out, "Failed to get access token") {
				t.Errorf("expected error log, got: %s", out)
			}
		})
	}
}
