package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var b64 = base64.RawURLEncoding

// ErrInvalidToken covers malformed, mis-signed and expired bearer tokens.
var ErrInvalidToken = errors.New("invalid token")

// Issue signs a compact HS256 bearer token identifying a ledger account.
func Issue(account string, secret []byte, ttl time.Duration) (string, error) {
	if account == "" {
		return "", fmt.Errorf("account is required")
	}
	claims := map[string]any{
		"sub": account,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	return signHS256(claims, secret)
}

// Verify checks the token signature and expiry and returns the account it
// identifies.
func Verify(tok string, secret []byte) (string, error) {
	claims, err := parseHS256(tok, secret)
	if err != nil {
		return "", err
	}
	exp, ok := claims["exp"].(float64)
	if !ok || time.Now().Unix() > int64(exp) {
		return "", fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	account, ok := claims["sub"].(string)
	if !ok || account == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return account, nil
}

func signHS256(claims map[string]any, secret []byte) (string, error) {
	header := map[string]string{"alg": "HS256", "typ": "JWT"}
	h, err := json.Marshal(header)
	if err != nil {
		return "", err
	}
	c, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := b64.EncodeToString(h) + "." + b64.EncodeToString(c)
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(unsigned))
	return unsigned + "." + b64.EncodeToString(mac.Sum(nil)), nil
}

func parseHS256(tok string, secret []byte) (map[string]any, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: bad format", ErrInvalidToken)
	}
	sig, err := b64.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("%w: bad signature encoding", ErrInvalidToken)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(parts[0] + "." + parts[1]))
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	}
	payload, err := b64.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: bad payload encoding", ErrInvalidToken)
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: bad claims json", ErrInvalidToken)
	}
	return claims, nil
}
