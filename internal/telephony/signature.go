package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"dialer-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Twilio-Signature"

// ComputeSignature returns the base64 HMAC-SHA1 of url followed by every
// POST parameter name and value, names in sorted order.
func ComputeSignature(authToken, rawURL string, params url.Values) string {
	var b strings.Builder
	b.WriteString(rawURL)

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, v := range params[k] {
			b.WriteString(k)
			b.WriteString(v)
		}
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ValidateSignature compares signature against the expected value in constant time.
func ValidateSignature(authToken, signature, rawURL string, params url.Values) bool {
	if authToken == "" || signature == "" {
		return false
	}
	expected := ComputeSignature(authToken, rawURL, params)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// SignatureOptions configures RequireTwilioSignature.
type SignatureOptions struct {
	AuthToken string

	// PublicBaseURL is the scheme+host the provider was told to call.
	// The request path and query are appended to it, so proxies that rewrite Host do not break validation.
	PublicBaseURL string

	// Disabled skips validation. Only local environments may set it.
	Disabled bool

	// OnReject is called for every rejected request (audit, metrics).
	OnReject func(c *gin.Context)
}

// RequireTwilioSignature rejects provider webhooks whose signature does not match with 403.
func RequireTwilioSignature(opts SignatureOptions) gin.HandlerFunc {
	base := strings.TrimRight(opts.PublicBaseURL, "/")
	return func(c *gin.Context) {
		// Handlers read PostForm whether or not validation runs.
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}
		if opts.Disabled {
			c.Next()
			return
		}

		fullURL := base + c.Request.URL.RequestURI()
		sig := c.GetHeader(signatureHeader)
		if !ValidateSignature(opts.AuthToken, sig, fullURL, c.Request.PostForm) {
			logger.FromGin(c).Warn("twilio signature mismatch",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
				"has_signature", sig != "",
			)
			if opts.OnReject != nil {
				opts.OnReject(c)
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}
