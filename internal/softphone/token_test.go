package softphone

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testIssuer() *TokenIssuer {
	return NewTokenIssuer("ACxxx", "SKxxx", "apisecret", "APxxx", 0)
}

func TestIssueTokenShape(t *testing.T) {
	issuer := testIssuer()
	now := time.Now().UTC().Truncate(time.Second)
	issuer.Now = func() time.Time { return now }

	tok, err := issuer.Issue("42")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if tok.Identity != "user_42" {
		t.Fatalf("identity = %q", tok.Identity)
	}
	if !tok.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expires_at = %v", tok.ExpiresAt)
	}

	parsed, err := jwt.Parse(tok.Value, func(tk *jwt.Token) (any, error) {
		return []byte("apisecret"), nil
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Header["cty"] != "twilio-fpa;v=1" {
		t.Fatalf("cty = %v", parsed.Header["cty"])
	}

	claims := parsed.Claims.(jwt.MapClaims)
	if claims["iss"] != "SKxxx" || claims["sub"] != "ACxxx" {
		t.Fatalf("claims: %+v", claims)
	}
	grants := claims["grants"].(map[string]any)
	if grants["identity"] != "user_42" {
		t.Fatalf("grants identity = %v", grants["identity"])
	}
	voice := grants["voice"].(map[string]any)
	outgoing := voice["outgoing"].(map[string]any)
	if outgoing["application_sid"] != "APxxx" {
		t.Fatalf("application_sid = %v", outgoing["application_sid"])
	}
	incoming := voice["incoming"].(map[string]any)
	if incoming["allow"] != true {
		t.Fatalf("incoming allow = %v", incoming["allow"])
	}
}

func TestIssueFailsFastWithoutCredentials(t *testing.T) {
	cases := []*TokenIssuer{
		NewTokenIssuer("", "SKxxx", "secret", "APxxx", 0),
		NewTokenIssuer("ACxxx", "", "secret", "APxxx", 0),
		NewTokenIssuer("ACxxx", "SKxxx", "", "APxxx", 0),
		NewTokenIssuer("ACxxx", "SKxxx", "secret", "", 0),
	}
	for i, issuer := range cases {
		if _, err := issuer.Issue("42"); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("case %d: err = %v, want ErrConfiguration", i, err)
		}
	}
}

func TestIssueRequiresUserID(t *testing.T) {
	if _, err := testIssuer().Issue(""); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}

func TestIssueCustomTTL(t *testing.T) {
	issuer := NewTokenIssuer("ACxxx", "SKxxx", "secret", "APxxx", 30*time.Minute)
	now := time.Now()
	issuer.Now = func() time.Time { return now }

	tok, err := issuer.Issue("7")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !tok.ExpiresAt.Equal(now.UTC().Add(30 * time.Minute)) {
		t.Fatalf("expires_at = %v", tok.ExpiresAt)
	}
}

func TestNeedsRefresh(t *testing.T) {
	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		expiresIn time.Duration
		want      bool
	}{
		{time.Hour, false},
		{6 * time.Minute, false},
		{5 * time.Minute, true},
		{time.Minute, true},
		{0, true},
		{-time.Minute, true},
	}
	for _, tc := range cases {
		if got := NeedsRefresh(now, now.Add(tc.expiresIn)); got != tc.want {
			t.Fatalf("NeedsRefresh(+%v) = %v, want %v", tc.expiresIn, got, tc.want)
		}
	}
}
