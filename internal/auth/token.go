// Package auth obtains Azure Video Indexer access tokens.
//
// A token is produced in two hops: the ambient Azure credential (environment,
// managed identity, Azure CLI, ...) yields an ARM bearer token, which is then
// exchanged for an account-scoped Video Indexer token through the ARM
// generateAccessToken action. The Video Indexer token is cached for the life
// of the process and never refreshed; a run is expected to finish well within
// the token's one hour lifetime.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultARMBaseURL is the Azure Resource Manager endpoint.
	DefaultARMBaseURL = "https://management.azure.com"

	// APIVersion is the Microsoft.VideoIndexer resource provider API version.
	APIVersion = "2024-01-01"

	// armScope is the audience requested from the ambient credential.
	armScope = "https://management.azure.com/.default"

	defaultTimeout = 30 * time.Second
)

// Account identifies the Video Indexer ARM resource.
type Account struct {
	SubscriptionID string
	ResourceGroup  string
	AccountName    string
}

// TokenProvider exchanges an ARM token for a Video Indexer access token and
// caches the result. It is safe for concurrent use; at most one exchange is
// in flight at any time.
type TokenProvider struct {
	cred       azcore.TokenCredential
	httpClient *http.Client
	baseURL    string
	account    Account
	request    AccessTokenRequest

	mu    sync.Mutex
	token string
}

// NewTokenProvider creates a TokenProvider for the given account.
// An empty baseURL selects DefaultARMBaseURL.
func NewTokenProvider(cred azcore.TokenCredential, account Account, baseURL string) *TokenProvider {
	if baseURL == "" {
		baseURL = DefaultARMBaseURL
	}
	return &TokenProvider{
		cred: cred,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL: baseURL,
		account: account,
		request: DefaultAccessTokenRequest,
	}
}

// NewDefaultCredential returns the ambient Azure credential chain.
func NewDefaultCredential() (azcore.TokenCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, &Error{Type: ErrTypeCredential, Message: "failed to create Azure credential", Err: err}
	}
	return cred, nil
}

// AccessToken returns the cached Video Indexer token, performing the
// exchange on first use. Failures are not cached.
func (p *TokenProvider) AccessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" {
		return p.token, nil
	}

	log.Info().Msg("Retrieving access token")
	start := time.Now()

	armToken, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{armScope}})
	if err != nil {
		err = &Error{Type: ErrTypeCredential, Message: "failed to obtain ARM token", Err: err}
		log.Error().Err(err).Msg("Failed to get access token")
		return "", err
	}

	token, err := p.exchange(ctx, armToken.Token)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get access token")
		return "", err
	}

	p.token = token
	log.Info().Dur("duration", time.Since(start)).Msg("Retrieved access token")
	return token, nil
}

// exchangeURL builds the generateAccessToken action URL.
func (p *TokenProvider) exchangeURL() string {
	return fmt.Sprintf("%s/subscriptions/%s/resourceGroups/%s/providers/Microsoft.VideoIndexer/accounts/%s/generateAccessToken?api-version=%s",
		p.baseURL,
		url.PathEscape(p.account.SubscriptionID),
		url.PathEscape(p.account.ResourceGroup),
		url.PathEscape(p.account.AccountName),
		APIVersion)
}

// exchange performs the ARM generateAccessToken call.
func (p *TokenProvider) exchange(ctx context.Context, armToken string) (string, error) {
	body, err := json.Marshal(p.request)
	if err != nil {
		return "", &Error{Type: ErrTypeExchange, Message: "encode access token request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.exchangeURL(), bytes.NewReader(body))
	if err != nil {
		return "", &Error{Type: ErrTypeExchange, Message: "build request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+armToken)
	req.Header.Set("Content-Type", "application/json")

	log.Debug().
		Str("permission", p.request.Permission.String()).
		Str("scope", p.request.Scope.String()).
		Str("account", p.account.AccountName).
		Msg("Requesting Video Indexer access token")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", &Error{Type: ErrTypeExchange, Message: "access token request failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return "", &Error{Type: ErrTypeExchange, Message: "access token request rejected", StatusCode: resp.StatusCode}
	}

	var parsed generateAccessTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &Error{Type: ErrTypeResponse, Message: "failed to parse access token response", Err: err}
	}
	if parsed.AccessToken == "" {
		return "", &Error{Type: ErrTypeResponse, Message: "access token response carried no token"}
	}
	return parsed.AccessToken, nil
}
