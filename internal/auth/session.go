// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/hitline/internal/models"
	"golang.org/x/crypto/blake2b"
)

// SessionClaims identifies the session a token was minted for.
type SessionClaims struct {
	Role     models.Role `json:"role"`
	RoomCode string      `json:"room"`
	PlayerID string      `json:"pid,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies session tokens with an ed25519 key pair.
// Tokens carry no exp claim; their lifetime is bound to the room's session index.
type Issuer struct {
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey
}

// NewIssuer generates a fresh ed25519 key pair at runtime.
func NewIssuer() (*Issuer, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return &Issuer{privateKey: priv, publicKey: pub}, nil
}

// NewIssuerFromPath reads ed25519 private/public keys from file.
func NewIssuerFromPath(privatePath, publicPath string) (*Issuer, error) {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("invalid ed25519 key sizes (%d, %d)", len(privateKeyData), len(publicKeyData))
	}
	return &Issuer{
		privateKey: ed25519.PrivateKey(privateKeyData),
		publicKey:  ed25519.PublicKey(publicKeyData),
	}, nil
}

// NewSessionToken mints a signed token for a host or player session.
// The jti is random so two sessions never share a token.
func (i *Issuer) NewSessionToken(role models.Role, roomCode, playerID string) (string, error) {
	claims := SessionClaims{
		Role:     role,
		RoomCode: roomCode,
		PlayerID: playerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID: uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(i.privateKey)
}

// Parse verifies a token string and returns its claims.
func (i *Issuer) Parse(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	t, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// VerifySession checks the token signature and that it was minted for role.
func (i *Issuer) VerifySession(token string, role models.Role) error {
	claims, err := i.Parse(token)
	if err != nil {
		return err
	}
	if claims.Role != role {
		return fmt.Errorf("token minted for %q, not %q", claims.Role, role)
	}
	return nil
}

// Fingerprint returns a short, stable digest of a token that is safe to log.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
