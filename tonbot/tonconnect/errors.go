package tonconnect

import (
	"errors"
	"fmt"
)

// Wallet error codes defined by the TON Connect protocol.
const (
	CodeUnknown            = 0
	CodeBadRequest         = 1
	CodeUnknownApp         = 100
	CodeUserRejected       = 300
	CodeMethodNotSupported = 400
)

var (
	// ErrNotConnected is returned by operations that need a connected wallet.
	ErrNotConnected = errors.New("tonconnect: wallet not connected")
	// ErrUserRejected matches a WalletError with CodeUserRejected.
	ErrUserRejected = errors.New("tonconnect: user rejected the request")
	// ErrAlreadyConnected is returned by Connect while a wallet is connected.
	ErrAlreadyConnected = errors.New("tonconnect: wallet already connected")
	// ErrNoBridge means no wallet in the list offers an HTTP bridge.
	ErrNoBridge = errors.New("tonconnect: no http bridge available")
)

// WalletError is an error payload returned by the wallet.
type WalletError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *WalletError) Error() string {
	return fmt.Sprintf("tonconnect: wallet error %d: %s", e.Code, e.Message)
}

// Is lets errors.Is(err, ErrUserRejected) match rejection codes.
func (e *WalletError) Is(target error) bool {
	return target == ErrUserRejected && e.Code == CodeUserRejected
}

// HTTPError reports a non-2xx bridge response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("tonconnect: bridge http %d: %s", e.StatusCode, e.Body)
}
