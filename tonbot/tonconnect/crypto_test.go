package tonconnect

import (
	"bytes"
	"testing"
)

func TestSessionKeysRoundTrip(t *testing.T) {
	alice, err := NewSessionKeys()
	if err != nil {
		t.Fatalf("NewSessionKeys: %v", err)
	}
	bob, err := NewSessionKeys()
	if err != nil {
		t.Fatalf("NewSessionKeys: %v", err)
	}
	sealed, err := alice.Seal([]byte("hello"), bob.Public)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	got, err := bob.Open(sealed, alice.Public)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("Open = %q", got)
	}
	if _, err := bob.Open(sealed[:10], alice.Public); err == nil {
		t.Fatal("short message should fail")
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := bob.Open(sealed, alice.Public); err == nil {
		t.Fatal("tampered message should fail")
	}
}

func TestSessionKeysFromHex(t *testing.T) {
	k, err := NewSessionKeys()
	if err != nil {
		t.Fatalf("NewSessionKeys: %v", err)
	}
	restored, err := SessionKeysFromHex(k.PrivateHex())
	if err != nil {
		t.Fatalf("SessionKeysFromHex: %v", err)
	}
	if restored.ID() != k.ID() {
		t.Fatalf("restored id %s, want %s", restored.ID(), k.ID())
	}
	if len(k.ID()) != 64 {
		t.Fatalf("client id length = %d, want 64", len(k.ID()))
	}
	if _, err := SessionKeysFromHex("zz"); err == nil {
		t.Fatal("invalid hex should fail")
	}
}
