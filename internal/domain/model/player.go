package model

import "github.com/okian/rocketstat/internal/domain/identity"

// PlayerRecord is one configured player. It is fixed for the lifetime of the
// engine built from it.
type PlayerRecord struct {
	EntryID  string            `json:"entry_id"`
	Name     string            `json:"name"`
	Username string            `json:"username"`
	Platform identity.Platform `json:"platform"`
	UUID     string            `json:"uuid"`
}

// Identity returns the identity documents must carry to be accepted.
func (r PlayerRecord) Identity() identity.Identity {
	return identity.Identity{Platform: r.Platform, ID: r.UUID}
}

// UniqueID is "<platform>_<uuid>"; two records with the same value describe
// the same player.
func (r PlayerRecord) UniqueID() string {
	return r.Identity().String()
}

// DeviceName is the display name shared by all views of this player.
func (r PlayerRecord) DeviceName() string {
	return "Rocket League Assistant - " + r.Username + " (" + r.Platform.Title() + ")"
}
