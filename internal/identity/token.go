package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenAudience is the "aud" claim every signer token must carry.
const TokenAudience = "blockguardian"

// MaxTokenTTL bounds the lifetime of a signer token.
const MaxTokenTTL = 10 * time.Minute

// ErrTokenLifetime is returned when a token's exp-iat window exceeds MaxTokenTTL.
var ErrTokenLifetime = errors.New("token lifetime exceeds maximum")

// SignerClaims are the JWT claims of a signer token. The subject is the
// base58 public key of the signing keypair, so the token is self-certifying:
// it verifies against the key it names.
type SignerClaims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose,omitempty"`
}

// IssueSignerToken creates a token signed by kp with the given lifetime.
// A zero ttl defaults to one minute.
func IssueSignerToken(kp *Keypair, purpose string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = time.Minute
	}
	if ttl > MaxTokenTTL {
		return "", ErrTokenLifetime
	}
	now := time.Now().UTC()
	claims := SignerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   kp.PublicKey().String(),
			Audience:  jwt.ClaimStrings{TokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.New().String(),
		},
		Purpose: purpose,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(kp.PrivateKey())
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifySignerToken parses tokenStr, checks its EdDSA signature against the
// key named in its subject, and returns that key.
func VerifySignerToken(tokenStr string) (PublicKey, *SignerClaims, error) {
	var signer PublicKey
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&SignerClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodEd25519); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			sub, err := tok.Claims.GetSubject()
			if err != nil {
				return nil, err
			}
			k, err := ParsePublicKey(sub)
			if err != nil {
				return nil, fmt.Errorf("subject: %w", err)
			}
			signer = k
			return ed25519.PublicKey(k[:]), nil
		},
		jwt.WithAudience(TokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return PublicKey{}, nil, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(*SignerClaims)
	if !ok || !token.Valid {
		return PublicKey{}, nil, fmt.Errorf("invalid token claims")
	}
	if claims.IssuedAt == nil {
		return PublicKey{}, nil, fmt.Errorf("verify token: missing iat")
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt.Time) > MaxTokenTTL {
		return PublicKey{}, nil, ErrTokenLifetime
	}
	return signer, claims, nil
}
