// Package catalog holds the static playlist and rank tier tables.
package catalog

// Playlist keys as they appear in telemetry.
const (
	SoloDuel    = "Solo_Duel"
	Doubles     = "Doubles"
	Standard    = "Standard"
	Hoops       = "Hoops"
	Rumble      = "Rumble"
	Dropshot    = "Dropshot"
	SnowDay     = "Snow_Day"
	Tournaments = "Tournaments"
)

// Playlist pairs a telemetry key with its display label.
type Playlist struct {
	Key   string
	Label string
}

var playlists = [...]Playlist{
	{SoloDuel, "1v1"},
	{Doubles, "2v2"},
	{Standard, "3v3"},
	{Hoops, "Hoops"},
	{Rumble, "Rumble"},
	{Dropshot, "Dropshot"},
	{SnowDay, "Snow Day"},
	{Tournaments, "Tournaments"},
}

var tiers = [...]string{
	"Unranked",
	"Bronze I", "Bronze II", "Bronze III",
	"Silver I", "Silver II", "Silver III",
	"Gold I", "Gold II", "Gold III",
	"Platinum I", "Platinum II", "Platinum III",
	"Diamond I", "Diamond II", "Diamond III",
	"Champion I", "Champion II", "Champion III",
	"Grand Champion I", "Grand Champion II", "Grand Champion III",
	"Supersonic Legend",
}

// MaxTier is the highest tier index.
const MaxTier = len(tiers) - 1

// Playlists returns the catalog in display order. The slice is a copy.
func Playlists() []Playlist {
	out := make([]Playlist, len(playlists))
	copy(out, playlists[:])
	return out
}

// PlaylistLabel returns the display label for key.
func PlaylistLabel(key string) (string, bool) {
	for _, p := range playlists {
		if p.Key == key {
			return p.Label, true
		}
	}
	return "", false
}

// PlaylistLabelOr returns the label for key, or key itself when unknown.
func PlaylistLabelOr(key string) string {
	if label, ok := PlaylistLabel(key); ok {
		return label
	}
	return key
}

// TierLabel returns the display label for a tier index in [0, MaxTier].
func TierLabel(tier int) (string, bool) {
	if tier < 0 || tier > MaxTier {
		return "", false
	}
	return tiers[tier], true
}
