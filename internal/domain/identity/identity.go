// Package identity parses platform identity tokens and matches them against
// a configured player.
package identity

import (
	"fmt"
	"strings"
)

// Platform is the account platform a player plays on.
type Platform string

// Supported platforms.
const (
	Steam Platform = "steam"
	Epic  Platform = "epic"
)

// tokenParts is the number of '|' separated segments in a valid token.
const tokenParts = 3

// ParsePlatform normalises s into a Platform.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(s))) {
	case Steam:
		return Steam, nil
	case Epic:
		return Epic, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
	}
}

// Label is the platform segment expected in a token, compared case-insensitively.
func (p Platform) Label() string {
	return string(p)
}

// Title is the display form used in names, e.g. "Steam".
func (p Platform) Title() string {
	if p == "" {
		return ""
	}
	return strings.ToUpper(string(p[:1])) + string(p[1:])
}

// Identity is the (platform, id) pair an engine accepts documents for.
type Identity struct {
	Platform Platform
	ID       string
}

func (i Identity) String() string {
	return string(i.Platform) + "_" + i.ID
}

// Extract returns the id segment of token when its platform segment matches
// expected. Tokens look like "Steam|76561198000000000|0"; the suffix is
// ignored and the id is returned exactly as received.
func Extract(token string, expected Platform) (string, bool) {
	if token == "" {
		return "", false
	}
	parts := strings.Split(token, "|")
	if len(parts) != tokenParts {
		return "", false
	}
	if !strings.EqualFold(parts[0], expected.Label()) {
		return "", false
	}
	return parts[1], true
}

// Matches reports whether token identifies exactly this identity.
func (i Identity) Matches(token string) bool {
	id, ok := Extract(token, i.Platform)
	return ok && id == i.ID
}

// TokenPlatform returns the platform segment of token, or "" when the token
// is malformed. It never exposes the account id, so it is safe to log.
func TokenPlatform(token string) string {
	parts := strings.Split(token, "|")
	if len(parts) != tokenParts {
		return ""
	}
	return parts[0]
}
