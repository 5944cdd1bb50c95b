package domain

import "time"

// Setting is one stored configuration document. Value is sealed
// ciphertext; the store layer never sees plaintext.
type Setting struct {
	Key         string    `json:"key"`
	Value       string    `json:"-"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Well-known settings keys. Chat-service keys equal
// Platform.SettingsKey() for the respective platform.
const (
	SettingSystem        = "system"
	SettingSecurityOnion = "SECURITY_ONION"
)

// SystemSettings controls runtime behavior of the bot itself.
type SystemSettings struct {
	DebugLogging bool `json:"debugLogging"`
}

// SecurityOnionSettings configures the SIEM connection.
type SecurityOnionSettings struct {
	APIURL       string `json:"apiUrl"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
	PollInterval int    `json:"pollInterval"` // seconds between alert polls
	VerifySSL    bool   `json:"verifySSL"`
}

// ChatServiceSettings is the union shape of the per-platform settings
// documents. Which fields apply depends on the platform: Discord,
// Slack and Telegram use BotToken, Matrix uses the homeserver fields.
type ChatServiceSettings struct {
	Enabled            bool   `json:"enabled"`
	BotToken           string `json:"botToken,omitempty"`
	AppToken           string `json:"appToken,omitempty"`      // slack socket mode
	SigningSecret      string `json:"signingSecret,omitempty"` // slack
	HomeserverURL      string `json:"homeserverUrl,omitempty"` // matrix
	UserID             string `json:"userId,omitempty"`        // matrix
	AccessToken        string `json:"accessToken,omitempty"`   // matrix
	DeviceID           string `json:"deviceId,omitempty"`      // matrix
	CommandPrefix      string `json:"commandPrefix"`
	RequireApproval    bool   `json:"requireApproval"`
	AlertNotifications bool   `json:"alertNotifications"`
	AlertChannel       string `json:"alertChannel,omitempty"`
	AlertRoom          string `json:"alertRoom,omitempty"` // matrix
}

// AlertTarget returns the channel or room alert notifications go to.
func (s ChatServiceSettings) AlertTarget() string {
	if s.AlertRoom != "" {
		return s.AlertRoom
	}
	return s.AlertChannel
}
