package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/sha3"
)

const sessionNonceBytes = 16

// NewSessionToken derives an opaque session key from the current time, the owner and a random
// nonce. Only the digest is kept, so the token cannot be reversed to its inputs.
func NewSessionToken(userID string) (string, error) {
	nonce := make([]byte, sessionNonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("read session nonce: %w", err)
	}
	h := sha3.New224()
	h.Write([]byte(strconv.FormatInt(time.Now().UTC().UnixNano(), 10)))
	h.Write([]byte(userID))
	h.Write(nonce)
	return hex.EncodeToString(h.Sum(nil)), nil
}
