package jwtx

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Signer signs ID token claims with one client's RSA key.
type Signer interface {
	// KID is the key identifier placed in the token header.
	KID() string
	Alg() string
	Sign(claims IDTokenClaims) (string, error)

	// Public returns the verification half of the key pair.
	Public() *rsa.PublicKey
}

// RS256Signer implements Signer using RSA SHA-256.
type RS256Signer struct {
	kid string
	key *rsa.PrivateKey
	pub *rsa.PublicKey
}

// NewRS256Signer loads an RSA private key from PEM bytes. Handles both
// PKCS1 and PKCS8 because otherwise we will be chasing a bug for longer
// than we would be willing to admit.
func NewRS256Signer(kid string, pemKey []byte) (*RS256Signer, error) {
	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM for RSA key")
	}

	var key *rsa.PrivateKey
	var err error

	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		priv, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err2 != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS8: %w", err2)
		}
		rk, ok := priv.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("jwtx: not RSA private key")
		}
		key = rk
	default:
		return nil, fmt.Errorf("jwtx: unsupported PEM type %q", block.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("jwtx: parse RSA key: %w", err)
	}

	return &RS256Signer{
		kid: kid,
		key: key,
		pub: &key.PublicKey,
	}, nil
}

func (s *RS256Signer) KID() string { return s.kid }

func (s *RS256Signer) Alg() string { return jwt.SigningMethodRS256.Alg() }

// Sign takes the claims and turns them into a signed JWT string.
func (s *RS256Signer) Sign(claims IDTokenClaims) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}

func (s *RS256Signer) Public() *rsa.PublicKey { return s.pub }

// ParseIDToken verifies an ID token against a public key and returns its
// claims. Intended for tests and SDK-side verification.
func ParseIDToken(raw string, pub *rsa.PublicKey) (IDTokenClaims, error) {
	var claims IDTokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("jwtx: unexpected signing method %q", t.Method.Alg())
		}
		return pub, nil
	})
	if err != nil {
		return IDTokenClaims{}, err
	}
	return claims, nil
}
