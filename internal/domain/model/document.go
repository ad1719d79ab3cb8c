// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"math"

	"github.com/mitchellh/copystructure"
)

// Top-level and nested keys of a telemetry document.
const (
	KeyData            = "data"
	KeyTeamData        = "TeamData"
	KeyMMRData         = "MMRData"
	KeyPlayerData      = "player_data"
	KeyUID             = "uid"
	KeyRanks           = "ranks"
	KeyCurrentPlaylist = "current_playlist"
	KeyPlayersTeam     = "PlayersTeam"
	KeyOtherTeam       = "OtherTeam"
)

// Document is the last-known telemetry payload for one player. It is an
// untyped JSON object; accessors below never fail on missing sections.
type Document map[string]any

// Clone returns a deep copy of d. A nil document clones to nil.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	c, err := copystructure.Copy(map[string]any(d))
	if err != nil {
		// copystructure only fails on types JSON cannot produce; fall back to
		// a JSON round trip which yields the same shape for JSON input.
		return cloneJSON(d)
	}
	return Document(c.(map[string]any))
}

func cloneJSON(d Document) Document {
	b, err := json.Marshal(d)
	if err != nil {
		return Document{}
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return Document{}
	}
	return out
}

// IsEmpty reports whether the document holds nothing.
func (d Document) IsEmpty() bool {
	return len(d) == 0
}

// Section returns the object found by walking keys, or an empty map.
func (d Document) Section(keys ...string) map[string]any {
	cur := map[string]any(d)
	for _, k := range keys {
		next, ok := cur[k].(map[string]any)
		if !ok {
			return map[string]any{}
		}
		cur = next
	}
	if cur == nil {
		return map[string]any{}
	}
	return cur
}

// IdentityToken returns MMRData.player_data.uid, or "" when absent.
func (d Document) IdentityToken() string {
	uid, _ := d.Section(KeyMMRData, KeyPlayerData)[KeyUID].(string)
	return uid
}

// RankData returns the MMRData section.
func (d Document) RankData() map[string]any {
	return d.Section(KeyMMRData)
}

// PlayerData returns MMRData.player_data.
func (d Document) PlayerData() map[string]any {
	return d.Section(KeyMMRData, KeyPlayerData)
}

// CurrentPlaylist returns MMRData.current_playlist.
func (d Document) CurrentPlaylist() map[string]any {
	return d.Section(KeyMMRData, KeyCurrentPlaylist)
}

// Ranks returns MMRData.ranks keyed by playlist.
func (d Document) Ranks() map[string]any {
	return d.Section(KeyMMRData, KeyRanks)
}

// TeamOutcome returns the TeamData section.
func (d Document) TeamOutcome() map[string]any {
	return d.Section(KeyTeamData)
}

// Number converts a JSON-decoded numeric value to float64.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
