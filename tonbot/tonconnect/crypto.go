package tonconnect

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

const nonceSize = 24

// SessionKeys is the X25519 keypair of one bridge session.
// The hex public key doubles as the bridge client id.
type SessionKeys struct {
	Public  [32]byte
	Private [32]byte
}

// NewSessionKeys generates a fresh keypair.
func NewSessionKeys() (*SessionKeys, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("tonconnect: generate keys: %w", err)
	}
	return &SessionKeys{Public: *pub, Private: *priv}, nil
}

// SessionKeysFromHex restores a keypair persisted with PrivateHex.
func SessionKeysFromHex(privHex string) (*SessionKeys, error) {
	priv, err := parseKey(privHex)
	if err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("tonconnect: derive public key: %w", err)
	}
	k := &SessionKeys{Private: priv}
	copy(k.Public[:], pub)
	return k, nil
}

// ID returns the bridge client id.
func (k *SessionKeys) ID() string { return hex.EncodeToString(k.Public[:]) }

// PrivateHex returns the private key for persistence.
func (k *SessionKeys) PrivateHex() string { return hex.EncodeToString(k.Private[:]) }

// Seal encrypts msg for peer and prefixes the random nonce.
func (k *SessionKeys) Seal(msg []byte, peer [32]byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("tonconnect: nonce: %w", err)
	}
	return box.Seal(nonce[:], msg, &nonce, &peer, &k.Private), nil
}

// Open decrypts a nonce-prefixed box sent by peer.
func (k *SessionKeys) Open(sealed []byte, peer [32]byte) ([]byte, error) {
	if len(sealed) < nonceSize+box.Overhead {
		return nil, errors.New("tonconnect: sealed message too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	out, ok := box.Open(nil, sealed[nonceSize:], &nonce, &peer, &k.Private)
	if !ok {
		return nil, errors.New("tonconnect: cannot decrypt message")
	}
	return out, nil
}

func parseKey(s string) ([32]byte, error) {
	var key [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("tonconnect: key %q: %w", s, err)
	}
	if len(b) != len(key) {
		return key, fmt.Errorf("tonconnect: key %q: want 32 bytes, got %d", s, len(b))
	}
	copy(key[:], b)
	return key, nil
}
