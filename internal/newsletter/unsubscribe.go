package newsletter

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
)

// Token is the unsubscribe token for addr: hex HMAC-SHA256 of the
// lower-cased address.
func Token(secret, addr string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.ToLower(strings.TrimSpace(addr))))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyToken reports whether token was issued for addr. An empty secret
// never verifies.
func VerifyToken(secret, addr, token string) bool {
	if secret == "" || token == "" {
		return false
	}
	want := Token(secret, addr)
	return hmac.Equal([]byte(want), []byte(strings.ToLower(token)))
}

// UnsubscribeURL is the one-click link for addr, or "" when no public URL
// or secret is configured.
func (c *Composer) UnsubscribeURL(addr string) string {
	if c.cfg.PublicURL == "" || c.cfg.UnsubscribeSecret == "" {
		return ""
	}
	return c.cfg.PublicURL + "/v1/newsletter/unsubscribe/" +
		url.PathEscape(strings.ToLower(addr)) + "/" + Token(c.cfg.UnsubscribeSecret, addr)
}

// VerifyUnsubscribe checks token against the configured secret.
func (c *Composer) VerifyUnsubscribe(addr, token string) bool {
	return VerifyToken(c.cfg.UnsubscribeSecret, addr, token)
}
