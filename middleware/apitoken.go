package middleware

// Sealed API tokens for RPC endpoints.
//
// A token is a CBOR-encoded claims record sealed with an AEAD under a
// keyed codec. Tokens are minted out of band (provisioning, CLI) and
// presented by clients as a Bearer credential; the processor unseals and
// validates them per request. Key IDs allow rotation: new tokens are
// minted under the current key while older keys keep verifying.

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/mnehpets/xmlserve/endpoint"
	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrTokenFormat  = errors.New("invalid api token format")
	ErrTokenInvalid = errors.New("invalid api token")
	ErrTokenExpired = errors.New("api token expired")
	ErrTokenConfig  = errors.New("invalid api token configuration")
)

// maxTokenLen bounds the amount of attacker-controlled data we will
// decode/allocate for a presented token.
const maxTokenLen = 8192

// tokenAAD binds sealed tokens to their purpose so a ciphertext minted for
// another context never verifies here.
var tokenAAD = []byte("xmlserve/api-token")

// TokenClaims is the sealed token payload.
type TokenClaims struct {
	// Subject identifies the caller.
	Subject string `cbor:"1,keyasint"`
	// Expires is the absolute expiry time. Zero means no expiry.
	Expires time.Time `cbor:"2,keyasint,omitempty"`
	// Scopes optionally restricts what the token may call.
	Scopes []string `cbor:"3,keyasint,omitempty"`
}

// TokenCodec mints and verifies sealed API tokens.
type TokenCodec struct {
	// KeyID selects the key used for minting. All keys verify.
	KeyID string
	Keys  map[string][]byte

	// NewAEAD constructs the AEAD used to seal/open tokens.
	// Defaults to chacha20poly1305.NewX.
	NewAEAD func(key []byte) (cipher.AEAD, error)
}

// NewTokenCodec creates a codec, validating every key against the AEAD
// constructor.
func NewTokenCodec(keyID string, keys map[string][]byte) (*TokenCodec, error) {
	if keys == nil {
		return nil, errors.New("keys must not be nil")
	}
	if _, ok := keys[keyID]; !ok {
		return nil, errors.New("keyID not found in keys")
	}
	for id, k := range keys {
		if _, err := chacha20poly1305.NewX(k); err != nil {
			return nil, fmt.Errorf("invalid key %s: %w", id, err)
		}
	}
	return &TokenCodec{
		KeyID:   keyID,
		Keys:    keys,
		NewAEAD: chacha20poly1305.NewX,
	}, nil
}

func (tc *TokenCodec) aead(key []byte) (cipher.AEAD, error) {
	newAEAD := tc.NewAEAD
	if newAEAD == nil {
		newAEAD = chacha20poly1305.NewX
	}
	return newAEAD(key)
}

// Mint seals claims into a token string of the form "<keyID>.<base64url>".
func (tc *TokenCodec) Mint(claims TokenClaims) (string, error) {
	if tc == nil {
		return "", ErrTokenConfig
	}
	key, ok := tc.Keys[tc.KeyID]
	if !ok {
		return "", ErrTokenConfig
	}
	aead, err := tc.aead(key)
	if err != nil {
		return "", err
	}

	plain, err := cbor.Marshal(claims)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, plain, tokenAAD)
	return tc.KeyID + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Verify unseals a token and checks its expiry.
func (tc *TokenCodec) Verify(token string) (*TokenClaims, error) {
	if tc == nil {
		return nil, ErrTokenConfig
	}
	if len(token) == 0 || len(token) > maxTokenLen {
		return nil, ErrTokenFormat
	}
	keyID, encB64, ok := strings.Cut(token, ".")
	if !ok || keyID == "" || encB64 == "" {
		return nil, ErrTokenFormat
	}
	key, ok := tc.Keys[keyID]
	if !ok {
		return nil, ErrTokenInvalid
	}
	aead, err := tc.aead(key)
	if err != nil {
		return nil, err
	}
	sealed, err := base64.RawURLEncoding.DecodeString(encB64)
	if err != nil {
		return nil, ErrTokenFormat
	}
	if len(sealed) < aead.NonceSize() {
		return nil, ErrTokenFormat
	}
	plain, err := aead.Open(nil, sealed[:aead.NonceSize()], sealed[aead.NonceSize():], tokenAAD)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	var claims TokenClaims
	if err := cbor.Unmarshal(plain, &claims); err != nil {
		return nil, ErrTokenInvalid
	}
	if !claims.Expires.IsZero() && time.Now().After(claims.Expires) {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}

// APITokenProcessor authenticates requests carrying a sealed API token in
// the Authorization header ("Bearer <token>").
//
// On success the claims are exposed through the request context; on
// failure the chain stops with a 401.
type APITokenProcessor struct {
	Codec *TokenCodec
}

// Process implements endpoint.Processor.
func (p *APITokenProcessor) Process(w http.ResponseWriter, r *http.Request, next func(w http.ResponseWriter, r *http.Request) error) error {
	if p.Codec == nil {
		return endpoint.Error(http.StatusInternalServerError, "", ErrTokenConfig)
	}
	raw, ok := bearerToken(r)
	if !ok {
		return endpoint.Error(http.StatusUnauthorized, "missing credentials", nil)
	}
	claims, err := p.Codec.Verify(raw)
	if err != nil {
		return endpoint.Error(http.StatusUnauthorized, "invalid credentials", err)
	}
	ctx := context.WithValue(r.Context(), claimsKey{}, claims)
	return next(w, r.WithContext(ctx))
}

// bearerToken extracts a Bearer credential from the Authorization header.
func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

type claimsKey struct{}
type subjectKey struct{}

// ClaimsFromContext returns the sealed-token claims attached by
// APITokenProcessor.
func ClaimsFromContext(ctx context.Context) (*TokenClaims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*TokenClaims)
	return c, ok
}

// SubjectFromContext returns the authenticated subject attached by either
// auth processor.
func SubjectFromContext(ctx context.Context) (string, bool) {
	if c, ok := ctx.Value(claimsKey{}).(*TokenClaims); ok {
		return c.Subject, true
	}
	s, ok := ctx.Value(subjectKey{}).(string)
	return s, ok
}

var _ endpoint.Processor = (*APITokenProcessor)(nil)
