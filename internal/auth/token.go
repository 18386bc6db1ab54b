package auth

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Scope is the access level a capability token grants.
type Scope string

const (
	ScopeFull    Scope = "full"
	ScopePreview Scope = "preview"
)

// ParseScope validates a scope string from the wire.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeFull, ScopePreview:
		return Scope(s), nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// Claims binds an origin URL and an access scope into a capability token.
// Anyone holding a valid token can resolve exactly the bound URL at
// exactly the bound scope; a preview token never unlocks full playback.
type Claims struct {
	OriginURL string `json:"url"`
	Scope     Scope  `json:"scope"`
	SubjectID string `json:"sub_id,omitempty"`
	ContentID string `json:"cid,omitempty"`
	jwt.RegisteredClaims
}

// Issuer mints and validates capability tokens. The signing key is the
// only shared state; it is read-only after startup.
type Issuer struct {
	signingKey []byte
	ttl        time.Duration
}

// NewIssuer derives the token signing key from the process master secret.
func NewIssuer(masterSecret string, ttl time.Duration) (*Issuer, error) {
	key, err := DeriveKey(masterSecret, "capability-token")
	if err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return &Issuer{signingKey: key, ttl: ttl}, nil
}

// Issue creates a capability token for originURL at the given scope.
// subjectID and contentID are optional and only used for log correlation.
func (i *Issuer) Issue(originURL string, scope Scope, subjectID, contentID string) (string, error) {
	u, err := url.Parse(originURL)
	if err != nil || !u.IsAbs() {
		return "", fmt.Errorf("origin url must be absolute: %q", originURL)
	}

	now := time.Now()
	claims := Claims{
		OriginURL: originURL,
		Scope:     scope,
		SubjectID: subjectID,
		ContentID: contentID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "movieapp",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.signingKey)
}

// Validate checks the signature and expiry and returns the bound claims.
func (i *Issuer) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.signingKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := ParseScope(string(claims.Scope)); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
