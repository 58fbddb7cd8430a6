package core

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/joseph-ayodele/people-extractor/internal/entity"
)

// ContentHash is the hex sha256 of text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NewBatchID builds "<hash[:8]><random[:8]>" and appends "-<userID>" for
// user scopes. r defaults to crypto/rand.
func NewBatchID(contentHash string, scope entity.Scope, r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	var suffix [4]byte
	if _, err := io.ReadFull(r, suffix[:]); err != nil {
		return "", err
	}

	prefix := contentHash
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	id := prefix + hex.EncodeToString(suffix[:])
	if !scope.IsShared() {
		id += "-" + scope.UserID
	}
	return id, nil
}
