// Package address checks the structural shape of TON addresses typed into the
// chat and renders raw wallet addresses in their user-friendly form.
package address

import (
	"fmt"
	"regexp"
	"strings"

	tonaddress "github.com/xssnick/tonutils-go/address"
)

var urlSafeBase64 = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Rules configures structural validation. Nothing is checked on-chain.
type Rules struct {
	Length   int
	Prefixes []string
}

// Valid reports whether s uses the URL-safe base64 alphabet, has exactly
// Length characters and starts with one of the allowed two-character prefixes.
func (r Rules) Valid(s string) bool {
	if len(s) != r.Length || !urlSafeBase64.MatchString(s) {
		return false
	}
	for _, p := range r.Prefixes {
		if len(p) == 2 && s[:2] == p {
			return true
		}
	}
	return false
}

// Friendly converts a raw "workchain:hex" address, or re-encodes an already
// friendly one, into the non-bounceable user-friendly form.
func Friendly(raw string, testnet bool) (string, error) {
	raw = strings.TrimSpace(raw)
	var (
		addr *tonaddress.Address
		err  error
	)
	if strings.Contains(raw, ":") {
		addr, err = tonaddress.ParseRawAddr(raw)
	} else {
		addr, err = tonaddress.ParseAddr(raw)
	}
	if err != nil {
		return "", fmt.Errorf("address: parse %q: %w", raw, err)
	}
	addr.SetBounce(false)
	addr.SetTestnetOnly(testnet)
	return addr.String(), nil
}

// FriendlyOrRaw is Friendly with a fallback to the input for display paths.
func FriendlyOrRaw(raw string, testnet bool) string {
	if s, err := Friendly(raw, testnet); err == nil {
		return s
	}
	return raw
}
