package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadPairingCode = errors.New("invalid pairing code")
	ErrInvalidToken   = errors.New("invalid token")
)

// Pairer exchanges the venue's shared pairing code for a per-device channel
// token. The pairing code is stored bcrypt-hashed so a leaked relay config
// does not hand out the code itself.
type Pairer struct {
	codeHash  []byte
	jwtSecret []byte
	tokenTTL  time.Duration
}

func NewPairer(pairingCodeHash, jwtSecret string, tokenTTL time.Duration) *Pairer {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Pairer{
		codeHash:  []byte(pairingCodeHash),
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
	}
}

// HashPairingCode is used at provisioning time to produce the hash the relay
// is configured with.
func HashPairingCode(code string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash pairing code: %w", err)
	}
	return string(hash), nil
}

// Pair validates the pairing code and issues a channel-scoped token.
func (p *Pairer) Pair(code, channel, deviceID string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(p.codeHash, []byte(code)); err != nil {
		return "", ErrBadPairingCode
	}

	claims := jwt.MapClaims{
		"channel":   channel,
		"device_id": deviceID,
		"iat":       time.Now().Unix(),
		"exp":       time.Now().Add(p.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(p.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token and returns the channel it is scoped to.
func (p *Pairer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return p.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	channel, _ := claims["channel"].(string)
	if channel == "" {
		return "", ErrInvalidToken
	}
	return channel, nil
}
