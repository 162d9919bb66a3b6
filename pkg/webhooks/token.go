package webhooks

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL bounds how long a delivery credential stays valid.
const DefaultTokenTTL = time.Hour

// Payload is the content of one broadcast delivery.
type Payload struct {
	TxID      int64     `json:"tx_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Claims is the JWT payload carried by a delivery credential.
type Claims struct {
	TxID      int64  `json:"tx_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	jwtlib.RegisteredClaims
}

// Signer creates delivery credentials signed per subscriber secret.
type Signer struct {
	ttl time.Duration
}

// NewSigner creates a signer with the given token TTL. Zero means
// DefaultTokenTTL.
func NewSigner(ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Signer{ttl: ttl}
}

// Sign creates a signed HS256 token for the payload using the subscriber's
// secret.
func (s *Signer) Sign(payload Payload, secret string) (string, error) {
	now := time.Now()
	claims := Claims{
		TxID:      payload.TxID,
		Message:   payload.Message,
		Timestamp: payload.Timestamp.UTC().Format(time.RFC3339),
		RegisteredClaims: jwtlib.RegisteredClaims{
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign delivery token: %w", err)
	}
	return signed, nil
}

// VerifyToken validates a delivery token against a subscriber secret and
// returns the claims. Verification fails for any other secret.
func VerifyToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid delivery token")
	}
	return claims, nil
}
