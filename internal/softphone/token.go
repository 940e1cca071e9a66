// Package softphone manages the browser-phone side of the platform: access
// tokens for the provider's voice SDK and the lifecycle of one client call.
package softphone

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrConfiguration means the voice credentials are missing or incomplete.
// Token issuance fails fast on it; there is no point retrying.
var ErrConfiguration = errors.New("softphone: voice credentials not configured")

// DefaultTokenTTL matches the provider's default access-token lifetime.
const DefaultTokenTTL = time.Hour

// RefreshThreshold is how close to expiry a token gets before the refresh
// loop replaces it.
const RefreshThreshold = 5 * time.Minute

// Token is one issued voice access token.
type Token struct {
	Value     string    `json:"token"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenIssuer mints provider-format voice access tokens. The signing scheme
// follows the provider's first-party-auth JWT layout so the token is
// accepted by the voice SDK unchanged.
type TokenIssuer struct {
	AccountSID  string
	APIKey      string
	APISecret   string
	TwimlAppSID string
	TTL         time.Duration

	Now func() time.Time
}

func NewTokenIssuer(accountSID, apiKey, apiSecret, twimlAppSID string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{
		AccountSID:  accountSID,
		APIKey:      apiKey,
		APISecret:   apiSecret,
		TwimlAppSID: twimlAppSID,
		TTL:         ttl,
		Now:         time.Now,
	}
}

// Issue mints a token for the given user. The softphone identity is derived
// from the user id so the TwiML application can address the client directly.
func (i *TokenIssuer) Issue(userID string) (Token, error) {
	if i.AccountSID == "" || i.APIKey == "" || i.APISecret == "" || i.TwimlAppSID == "" {
		return Token{}, ErrConfiguration
	}
	if userID == "" {
		return Token{}, errors.New("softphone: user id required")
	}

	now := i.Now().UTC()
	identity := "user_" + userID
	expiresAt := now.Add(i.TTL)

	claims := jwt.MapClaims{
		"jti": fmt.Sprintf("%s-%d", i.APIKey, now.Unix()),
		"iss": i.APIKey,
		"sub": i.AccountSID,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"grants": map[string]any{
			"identity": identity,
			"voice": map[string]any{
				"outgoing": map[string]any{
					"application_sid": i.TwimlAppSID,
				},
				"incoming": map[string]any{
					"allow": true,
				},
			},
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["cty"] = "twilio-fpa;v=1"

	signed, err := tok.SignedString([]byte(i.APISecret))
	if err != nil {
		return Token{}, fmt.Errorf("softphone: signing token: %w", err)
	}

	return Token{Value: signed, Identity: identity, ExpiresAt: expiresAt}, nil
}

// NeedsRefresh reports whether a token expiring at expiresAt should be
// replaced now. Already-expired tokens need refresh too.
func NeedsRefresh(now, expiresAt time.Time) bool {
	return !now.Before(expiresAt.Add(-RefreshThreshold))
}
