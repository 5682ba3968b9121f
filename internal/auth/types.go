package auth

import (
	"fmt"
)

// Permission is the permission level requested for a Video Indexer access token.
type Permission int

const (
	PermissionReader Permission = iota
	PermissionContributor
	PermissionOwner
)

var permissionNames = []string{"Reader", "Contributor", "Owner"}

func (p Permission) String() string {
	if int(p) < 0 || int(p) >= len(permissionNames) {
		return fmt.Sprintf("Permission(%d)", int(p))
	}
	return permissionNames[p]
}

// MarshalText encodes the permission as its case-sensitive service name.
func (p Permission) MarshalText() ([]byte, error) {
	if int(p) < 0 || int(p) >= len(permissionNames) {
		return nil, fmt.Errorf("invalid permission %d", int(p))
	}
	return []byte(permissionNames[p]), nil
}

// UnmarshalText decodes a case-sensitive service name.
func (p *Permission) UnmarshalText(text []byte) error {
	for i, name := range permissionNames {
		if string(text) == name {
			*p = Permission(i)
			return nil
		}
	}
	return fmt.Errorf("unknown permission %q", string(text))
}

// Scope is the resource scope requested for a Video Indexer access token.
type Scope int

const (
	ScopeAccount Scope = iota
	ScopeProject
	ScopeVideo
)

var scopeNames = []string{"Account", "Project", "Video"}

func (s Scope) String() string {
	if int(s) < 0 || int(s) >= len(scopeNames) {
		return fmt.Sprintf("Scope(%d)", int(s))
	}
	return scopeNames[s]
}

// MarshalText encodes the scope as its case-sensitive service name.
func (s Scope) MarshalText() ([]byte, error) {
	if int(s) < 0 || int(s) >= len(scopeNames) {
		return nil, fmt.Errorf("invalid scope %d", int(s))
	}
	return []byte(scopeNames[s]), nil
}

// UnmarshalText decodes a case-sensitive service name.
func (s *Scope) UnmarshalText(text []byte) error {
	for i, name := range scopeNames {
		if string(text) == name {
			*s = Scope(i)
			return nil
		}
	}
	return fmt.Errorf("unknown scope %q", string(text))
}

// AccessTokenRequest is the body of the ARM generateAccessToken call.
type AccessTokenRequest struct {
	Permission Permission `json:"permissionType"`
	Scope      Scope      `json:"scope"`
}

// DefaultAccessTokenRequest asks for an account-wide contributor token,
// enough to upload videos and read their index.
var DefaultAccessTokenRequest = AccessTokenRequest{
	Permission: PermissionContributor,
	Scope:      ScopeAccount,
}

// generateAccessTokenResponse is the response of the generateAccessToken call.
type generateAccessTokenResponse struct {
	AccessToken string `json:"accessToken"`
}
