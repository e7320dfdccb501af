// Package cursor implements the sealed-cursor scheme that lets an untrusted
// script hold iteration state without being able to forge or tamper with
// it. Cursors are serialised by the provider; this package binds the
// serialised form to the current request with an HMAC.
package cursor

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/R3E-Network/query_layer/infrastructure/errors"
)

// keySize is the per-request HMAC key length in bytes.
const keySize = 32

// Sealed is the only cursor representation the script ever sees: the
// provider-serialised cursor plus a hex HMAC-SHA-256 of it under the
// request key.
type Sealed struct {
	Data string `json:"data"`
	Sig  string `json:"sig"`
}

// Authenticator seals and opens cursors under a key generated at engine
// construction. The key never leaves the host and dies with the request.
type Authenticator struct {
	key []byte
}

// NewAuthenticator generates a fresh random key.
func NewAuthenticator() (*Authenticator, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Internal("generate request key", err)
	}
	return &Authenticator{key: key}, nil
}

func (a *Authenticator) mac(data string) []byte {
	h := hmac.New(sha256.New, a.key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// Seal signs the serialised cursor.
func (a *Authenticator) Seal(data string) Sealed {
	return Sealed{
		Data: data,
		Sig:  hex.EncodeToString(a.mac(data)),
	}
}

// Open verifies the signature in constant time and returns the serialised
// cursor. A signature that does not verify fails with the invalid-cursor
// service error.
func (a *Authenticator) Open(s Sealed) (string, error) {
	sig, err := hex.DecodeString(s.Sig)
	if err != nil {
		return "", errors.InvalidCursor()
	}
	if !hmac.Equal(sig, a.mac(s.Data)) {
		return "", errors.InvalidCursor()
	}
	return s.Data, nil
}
