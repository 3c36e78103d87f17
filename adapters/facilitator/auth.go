package facilitator

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"time"

	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// Authenticator decorates outbound facilitator requests with credentials
type Authenticator interface {
	Authorize(req *http.Request) error
}

// StaticAuth sends a fixed Authorization header value
type StaticAuth string

func (a StaticAuth) Authorize(req *http.Request) error {
	req.Header.Set("Authorization", string(a))
	return nil
}

// JWTAuth signs a short-lived bearer JWT per request, in the format the
// Coinbase developer platform facilitator expects.
type JWTAuth struct {
	keyName    string
	privateKey any
	ttl        time.Duration
	now        func() time.Time
}

type requestClaims struct {
	*jwt.Claims
	URI string `json:"uri"`
}

// NewJWTAuth parses a PEM encoded ECDSA or Ed25519 key
func NewJWTAuth(keyName, keySecret string) (*JWTAuth, error) {
	if keyName == "" {
		return nil, fmt.Errorf("api key name must not be empty")
	}

	block, _ := pem.Decode([]byte(keySecret))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block: invalid PEM format")
	}

	privateKey, err := x509.ParseECPrivateKey(block.Bytes)
	var key any = privateKey
	if err != nil {
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
	}

	switch key.(type) {
	case *ecdsa.PrivateKey, crypto.Signer:
	default:
		return nil, fmt.Errorf("unsupported private key type: must be ECDSA or Ed25519")
	}

	return &JWTAuth{keyName: keyName, privateKey: key, ttl: 2 * time.Minute, now: time.Now}, nil
}

// Authorize sets a Bearer token bound to the request's method, host and path
func (a *JWTAuth) Authorize(req *http.Request) error {
	token, err := a.token(req.Method, req.URL.Host, req.URL.Path)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (a *JWTAuth) token(method, host, path string) (string, error) {
	alg := jose.EdDSA
	if _, ok := a.privateKey.(*ecdsa.PrivateKey); ok {
		alg = jose.ES256
	}

	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: alg, Key: a.privateKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", a.keyName),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create JWT signer: %w", err)
	}

	now := a.now()
	claims := &requestClaims{
		Claims: &jwt.Claims{
			Subject:   a.keyName,
			Issuer:    "coinbase-cloud",
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(a.ttl)),
		},
		URI: fmt.Sprintf("%s %s%s", method, host, path),
	}

	token, err := jwt.Signed(sig).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize JWT: %w", err)
	}
	return token, nil
}
