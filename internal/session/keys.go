package session

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	hashKeySize  = 64
	blockKeySize = 32
)

// DeriveKeys expands one secret into the hash and block keys used to sign and
// encrypt the browser-session cookie. An empty secret yields random keys, so
// sessions do not survive a restart.
func DeriveKeys(secret string) (hashKey, blockKey []byte, err error) {
	var source io.Reader
	if secret == "" {
		source = rand.Reader
	} else {
		source = hkdf.New(sha256.New, []byte(secret), []byte("motioncourse-session"), []byte("cookie keys"))
	}

	hashKey = make([]byte, hashKeySize)
	if _, err := io.ReadFull(source, hashKey); err != nil {
		return nil, nil, fmt.Errorf("derive hash key: %w", err)
	}
	blockKey = make([]byte, blockKeySize)
	if _, err := io.ReadFull(source, blockKey); err != nil {
		return nil, nil, fmt.Errorf("derive block key: %w", err)
	}
	return hashKey, blockKey, nil
}
