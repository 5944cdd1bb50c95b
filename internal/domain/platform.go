package domain

import (
	"fmt"
	"strings"
)

// Platform identifies a chat transport.
type Platform string

const (
	PlatformDiscord  Platform = "discord"
	PlatformSlack    Platform = "slack"
	PlatformMatrix   Platform = "matrix"
	PlatformTelegram Platform = "telegram"
	PlatformTeams    Platform = "teams"
	PlatformWeb      Platform = "web"
)

// ChatPlatforms lists the transports commands can arrive from, in the
// order they appear in settings and status output.
var ChatPlatforms = []Platform{
	PlatformSlack,
	PlatformTeams,
	PlatformMatrix,
	PlatformDiscord,
	PlatformTelegram,
}

// ParsePlatform normalizes a transport name. All internal code sees the
// typed value; raw strings stop at the ingress boundary.
func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case PlatformDiscord, PlatformSlack, PlatformMatrix, PlatformTelegram, PlatformTeams, PlatformWeb:
		return p, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// SettingsKey returns the settings-store key for the platform.
func (p Platform) SettingsKey() string {
	return strings.ToUpper(string(p))
}
