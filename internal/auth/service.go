package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Issuer signs and verifies HS256 access tokens whose subject is an account id.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewIssuer constructs an Issuer. A zero ttl means one hour.
func NewIssuer(secret string, ttl time.Duration, issuer string) *Issuer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}
}

// TokenPair is the login response payload.
type TokenPair struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Issue signs an access token for accountID.
func (i *Issuer) Issue(accountID string) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		Issuer:    i.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Pair issues a token and wraps it for the login response.
func (i *Issuer) Pair(accountID string) (TokenPair, error) {
	token, err := i.Issue(accountID)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: token, TokenType: "Bearer", ExpiresIn: int64(i.ttl.Seconds())}, nil
}

// Parse verifies token and returns the account id it was issued for.
func (i *Issuer) Parse(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}
