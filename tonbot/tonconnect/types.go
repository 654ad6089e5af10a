// Package tonconnect is a TON Connect v2 client speaking the HTTP bridge
// protocol: session keys, encrypted bridge messages over SSE, connect links
// and the public wallets directory. Signing happens in the wallet app.
package tonconnect

const (
	// ChainMainnet is the TON Connect network id of the main network.
	ChainMainnet = "-239"
	// ChainTestnet is the TON Connect network id of the test network.
	ChainTestnet = "-3"

	protocolVersion = 2
)

// Device describes the wallet application that answered a connect request.
type Device struct {
	Platform           string `json:"platform"`
	AppName            string `json:"appName"`
	AppVersion         string `json:"appVersion"`
	MaxProtocolVersion int    `json:"maxProtocolVersion"`
}

// Account is the ton_addr item of a connect event.
type Account struct {
	Address         string `json:"address"`
	Chain           string `json:"network"`
	PublicKey       string `json:"publicKey,omitempty"`
	WalletStateInit string `json:"walletStateInit,omitempty"`
}

// Wallet is a connected wallet.
type Wallet struct {
	Device  Device  `json:"device"`
	Account Account `json:"account"`
}

// Testnet reports whether the account lives on the test network.
func (w *Wallet) Testnet() bool {
	return w != nil && w.Account.Chain == ChainTestnet
}

// WalletInfo is one entry of the wallets directory.
type WalletInfo struct {
	AppName       string   `json:"app_name"`
	Name          string   `json:"name"`
	ImageURL      string   `json:"image,omitempty"`
	AboutURL      string   `json:"about_url,omitempty"`
	UniversalLink string   `json:"universal_url,omitempty"`
	BridgeURL     string   `json:"bridge_url,omitempty"`
	Platforms     []string `json:"platforms,omitempty"`
}

// Message is a single outgoing transfer of a transaction request.
type Message struct {
	Address   string `json:"address"`
	Amount    string `json:"amount"`
	Payload   string `json:"payload,omitempty"`
	StateInit string `json:"stateInit,omitempty"`
}

// Transaction is the sendTransaction request body.
// ValidUntil is a unix timestamp in seconds.
type Transaction struct {
	ValidUntil int64     `json:"valid_until"`
	Network    string    `json:"network,omitempty"`
	From       string    `json:"from,omitempty"`
	Messages   []Message `json:"messages"`
}

// SendTransactionResult carries the signed external message.
type SendTransactionResult struct {
	BOC string
}
