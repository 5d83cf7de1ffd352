package proof

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AttestationClaims binds a contribution to its proof hash in a signed,
// externally verifiable token. The attestation is issued alongside the
// VerificationResult; it is never part of the hashed trace, so issuing time
// does not affect proof determinism.
type AttestationClaims struct {
	jwt.RegisteredClaims
	ProofHash string `json:"proof_hash"`
	Verified  bool   `json:"verified"`
}

// Attestor signs proof attestations with an HMAC key.
type Attestor struct {
	key    []byte
	issuer string
}

// NewAttestor returns an Attestor. The key must be non-empty.
func NewAttestor(key []byte, issuer string) (*Attestor, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("proof: attestation key is required")
	}
	if issuer == "" {
		issuer = "provara/engine"
	}
	return &Attestor{key: key, issuer: issuer}, nil
}

// Attest issues a signed token for the contribution's proof hash.
func (a *Attestor) Attest(contributionID, proofHash string, verified bool, issuedAt time.Time) (string, error) {
	claims := AttestationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  contributionID,
			Issuer:   a.issuer,
			IssuedAt: jwt.NewNumericDate(issuedAt.UTC()),
		},
		ProofHash: proofHash,
		Verified:  verified,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.key)
}

// Verify parses and validates an attestation token.
func (a *Attestor) Verify(tokenString string) (*AttestationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AttestationClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("proof: unexpected signing method %v", t.Header["alg"])
		}
		return a.key, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AttestationClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return claims, nil
}
