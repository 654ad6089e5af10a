package tonconnect

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
)

const (
	universalScheme = "tc://"
	openLinkBase    = "https://ton-connect.github.io/open-tc"
)

// ConnectItem requests a piece of data from the wallet on connect.
type ConnectItem struct {
	Name string `json:"name"`
}

// ConnectRequest is the "r" parameter of a connect link.
type ConnectRequest struct {
	ManifestURL string        `json:"manifestUrl"`
	Items       []ConnectItem `json:"items"`
}

// connectLink builds base?v=2&id=<client id>&r=<request>&ret=none.
// Parameter order is kept as wallets print it back.
func connectLink(base, clientID string, req ConnectRequest) (string, error) {
	r, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(base)
	if strings.Contains(base, "?") {
		b.WriteByte('&')
	} else {
		b.WriteByte('?')
	}
	b.WriteString("v=" + strconv.Itoa(protocolVersion))
	b.WriteString("&id=" + url.QueryEscape(clientID))
	b.WriteString("&r=" + url.QueryEscape(string(r)))
	b.WriteString("&ret=none")
	return b.String(), nil
}

// IsTelegramURL reports whether link opens inside Telegram.
func IsTelegramURL(link string) bool {
	u, err := url.Parse(link)
	if err != nil || link == "" {
		return false
	}
	return u.Scheme == "tg" || strings.EqualFold(u.Hostname(), "t.me")
}

// ConvertToUniversalLink moves the query of a tc:// connect link onto a
// wallet universal link. Telegram wallets receive it packed into a single
// startattach parameter.
func ConvertToUniversalLink(link, universalLink string) string {
	_, query, _ := strings.Cut(link, "?")
	u, err := url.Parse(universalLink)
	if err != nil {
		return link
	}
	if IsTelegramURL(universalLink) {
		appendQuery(u, "startattach", "tonconnect-"+EncodeTelegramParams(query))
		return u.String()
	}
	u.RawQuery = query
	return u.String()
}

// AddReturnStrategy appends ret=<strategy> to a Telegram link and folds that
// last parameter into the preceding one using Telegram's parameter encoding.
func AddReturnStrategy(link, strategy string) string {
	u, err := url.Parse(link)
	if err != nil || strategy == "" {
		return link
	}
	appendQuery(u, "ret", strategy)
	out := u.String()
	i := strings.LastIndex(out, "&")
	if i < 0 {
		return out
	}
	return out[:i] + "-" + EncodeTelegramParams(out[i+1:])
}

// WalletDeepLink is the link used to bring the wallet to the front after a
// request was sent. Telegram wallets are opened through startattach.
func WalletDeepLink(universalLink, botLink string) string {
	if !IsTelegramURL(universalLink) {
		return universalLink
	}
	u, err := url.Parse(universalLink)
	if err != nil {
		return universalLink
	}
	appendQuery(u, "startattach", "tonconnect")
	return AddReturnStrategy(u.String(), botLink)
}

// OpenLinkURL wraps a connect link into the public redirect page.
func OpenLinkURL(link string) string {
	return openLinkBase + "?connect=" + url.QueryEscape(link)
}

// EncodeTelegramParams applies the replacement chain Telegram requires for
// startattach payloads. The order of replacements matters.
func EncodeTelegramParams(params string) string {
	r := strings.NewReplacer
	params = r(".", "%2E").Replace(params)
	params = r("-", "%2D").Replace(params)
	params = r("_", "%5F").Replace(params)
	params = r("&", "-").Replace(params)
	params = r("=", "__").Replace(params)
	return r("%", "--").Replace(params)
}

// appendQuery adds a parameter without reordering the existing query.
func appendQuery(u *url.URL, key, value string) {
	pair := url.QueryEscape(key) + "=" + url.QueryEscape(value)
	if u.RawQuery == "" {
		u.RawQuery = pair
		return
	}
	u.RawQuery += "&" + pair
}
