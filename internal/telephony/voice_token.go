package telephony

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VoiceTokenIssuer mints access tokens that let a browser client register
// with the voice SDK under a given identity.
type VoiceTokenIssuer struct {
	AccountSID  string
	APIKey      string
	APISecret   string
	TwimlAppSID string
	TTL         time.Duration

	Now func() time.Time
}

// VoiceToken is what the browser needs to register its device.
type VoiceToken struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type voiceGrant struct {
	Incoming struct {
		Allow bool `json:"allow"`
	} `json:"incoming"`
	Outgoing struct {
		ApplicationSID string `json:"application_sid"`
	} `json:"outgoing"`
}

type voiceGrants struct {
	Identity string     `json:"identity"`
	Voice    voiceGrant `json:"voice"`
}

type voiceClaims struct {
	jwt.RegisteredClaims
	Grants voiceGrants `json:"grants"`
}

// Issue signs a token for identity. Incoming calls are allowed and outgoing
// calls run through the configured TwiML application.
func (i VoiceTokenIssuer) Issue(identity string) (VoiceToken, error) {
	if identity == "" {
		return VoiceToken{}, errors.New("telephony: identity required")
	}
	if i.AccountSID == "" || i.APIKey == "" || i.APISecret == "" {
		return VoiceToken{}, errors.New("telephony: voice token credentials missing")
	}
	now := time.Now
	if i.Now != nil {
		now = i.Now
	}
	ttl := i.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	issuedAt := now().UTC().Truncate(time.Second)
	exp := issuedAt.Add(ttl)

	claims := voiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        fmt.Sprintf("%s-%d", i.APIKey, issuedAt.Unix()),
			Issuer:    i.APIKey,
			Subject:   i.AccountSID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	claims.Grants.Identity = identity
	claims.Grants.Voice.Incoming.Allow = true
	claims.Grants.Voice.Outgoing.ApplicationSID = i.TwimlAppSID

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok.Header["cty"] = "twilio-fpa;v=1"
	signed, err := tok.SignedString([]byte(i.APISecret))
	if err != nil {
		return VoiceToken{}, err
	}
	return VoiceToken{Token: signed, Identity: identity, ExpiresAt: exp}, nil
}
