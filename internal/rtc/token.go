package rtc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ZEGOCLOUD/zego_server_assistant/token/go/src/token04"
	"go.uber.org/zap"
)

// DefaultTokenTTL is the token lifetime used when callers pass ttlSeconds <= 0.
const DefaultTokenTTL = 4 * time.Hour

// expirySkew is subtracted from the expiry when checking staleness so cached
// tokens are refreshed before they actually lapse.
const expirySkew = 60 * time.Second

// Token is a signed conferencing token with its expiry instant.
type Token struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is expired with a safety skew. A nil token
// counts as expired.
func (t *Token) Expired(now time.Time) bool {
	if t == nil {
		return true
	}
	return now.After(t.ExpiresAt.Add(-expirySkew))
}

// roomPayload is the ZEGOCLOUD token04 room payload.
type roomPayload struct {
	RoomID       string      `json:"RoomId"`
	Privilege    map[int]int `json:"Privilege"`
	StreamIDList []string    `json:"StreamIdList,omitempty"`
}

// Issuer signs channel tokens with the platform credentials. When the server
// secret is absent the issuer returns a nil token — callers treat that as
// "proceed without a token" (sandbox mode), never as an error.
type Issuer struct {
	appID        uint32
	serverSecret string
	logger       *zap.Logger
}

// NewIssuer creates a token issuer. serverSecret may be empty (sandbox mode).
func NewIssuer(appID uint32, serverSecret string, logger *zap.Logger) *Issuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{appID: appID, serverSecret: serverSecret, logger: logger}
}

// AppID returns the platform application id.
func (i *Issuer) AppID() uint32 { return i.appID }

// Issue signs a publish-capable token for the given channel and identity.
// uid 0 issues a channel-wide token not bound to a single participant.
// Both host and participant tokens can publish — everyone can speak.
func (i *Issuer) Issue(channelName string, uid int32, role Role, ttlSeconds int64) (*Token, error) {
	if i.serverSecret == "" {
		i.logger.Warn("conferencing secret not configured, issuing nil token",
			zap.String("channel", channelName))
		return nil, nil
	}
	if len(i.serverSecret) != 32 {
		return nil, fmt.Errorf("rtc: server secret must be 32 characters")
	}
	if ttlSeconds <= 0 {
		ttlSeconds = int64(DefaultTokenTTL / time.Second)
	}

	payload := roomPayload{
		RoomID: channelName,
		Privilege: map[int]int{
			token04.PrivilegeKeyLogin:   token04.PrivilegeEnable,
			token04.PrivilegeKeyPublish: token04.PrivilegeEnable,
		},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("rtc: marshal payload: %w", err)
	}

	userID := strconv.FormatInt(int64(uid), 10)
	value, err := token04.GenerateToken04(i.appID, userID, i.serverSecret, ttlSeconds, string(payloadJSON))
	if err != nil {
		return nil, fmt.Errorf("rtc: sign token: %w", err)
	}
	return &Token{
		Value:     value,
		ExpiresAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second),
	}, nil
}
