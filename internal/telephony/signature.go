package telephony

import (
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // the provider signs callbacks with HMAC-SHA1
	"encoding/base64"
	"net/url"
	"sort"
	"strings"
)

// SignatureHeader carries the provider's callback signature.
const SignatureHeader = "X-Twilio-Signature"

// Verifier checks callback signatures against the account auth token.
type Verifier struct {
	authToken string
}

// NewVerifier creates a verifier for authToken.
func NewVerifier(authToken string) *Verifier {
	return &Verifier{authToken: authToken}
}

// Configured reports whether a secret is available.
func (v *Verifier) Configured() bool {
	return v != nil && v.authToken != ""
}

// Sign computes the signature for a request to fullURL with form params.
// The payload is the URL followed by every key and value, keys sorted,
// values of a repeated key sorted, with no separators.
func (v *Verifier) Sign(fullURL string, params url.Values) string {
	var b strings.Builder
	b.WriteString(fullURL)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		values := append([]string(nil), params[k]...)
		sort.Strings(values)
		for _, val := range values {
			b.WriteString(k)
			b.WriteString(val)
		}
	}

	mac := hmac.New(sha1.New, []byte(v.authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the expected signature in
// constant time. It is false when no secret or no signature is present.
func (v *Verifier) Verify(fullURL, signature string, params url.Values) bool {
	if !v.Configured() || signature == "" {
		return false
	}
	expected := v.Sign(fullURL, params)
	return hmac.Equal([]byte(expected), []byte(signature))
}
