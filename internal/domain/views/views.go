// Package views projects an engine's document into named, read-only values.
package views

import (
	"github.com/okian/rocketstat/internal/domain/catalog"
	"github.com/okian/rocketstat/internal/domain/model"
)

// State classes.
const (
	ClassMeasurement     = "measurement"
	ClassTotalIncreasing = "total_increasing"
)

// Match results.
const (
	ResultWin  = "Win"
	ResultLoss = "Loss"
	ResultTie  = "Tie"
)

// Team keys inside TeamData.
const (
	keyScore = "score"
	keyColor = "color"
)

type projection func(doc model.Document) (value any, attrs map[string]any)

// View is one projection bound to a player and a fixed selector.
type View struct {
	UniqueID   string
	Name       string
	Icon       string
	StateClass string
	Playlist   string
	Attribute  string

	device  string
	project projection
}

// State is the evaluated value of a view.
type State struct {
	UniqueID   string         `json:"unique_id"`
	Name       string         `json:"name"`
	Device     string         `json:"device"`
	Icon       string         `json:"icon"`
	StateClass string         `json:"state_class,omitempty"`
	Value      any            `json:"value"`
	Attributes map[string]any `json:"attributes"`
}

// Evaluate computes the view's state from doc. A nil doc yields an empty state.
func (v *View) Evaluate(doc model.Document) State {
	value, attrs := v.project(doc)
	if attrs == nil {
		attrs = map[string]any{}
	}
	return State{
		UniqueID:   v.UniqueID,
		Name:       v.Name,
		Device:     v.device,
		Icon:       v.Icon,
		StateClass: v.StateClass,
		Value:      value,
		Attributes: attrs,
	}
}

type rankAttribute struct {
	key, label, icon, class string
}

var rankAttributes = [...]rankAttribute{
	{"mmr", "MMR", "mdi:trophy", ClassMeasurement},
	{"tier", "Tier", "mdi:medal", ""},
	{"division", "Division", "mdi:numeric", ""},
	{"matches_played", "Matches Played", "mdi:counter", ClassTotalIncreasing},
	{"rank_name", "Rank", "mdi:crown", ""},
}

// Build returns every view for rec in a stable order: the rank views of each
// catalog playlist, then the current-match views.
func Build(rec model.PlayerRecord) []*View {
	device := rec.DeviceName()
	playlists := catalog.Playlists()
	out := make([]*View, 0, len(playlists)*len(rankAttributes)+4)

	for _, p := range playlists {
		for _, a := range rankAttributes {
			out = append(out, &View{
				UniqueID:   rec.EntryID + "_" + p.Key + "_" + a.key,
				Name:       rec.Username + " " + p.Label + " " + a.label,
				Icon:       a.icon,
				StateClass: a.class,
				Playlist:   p.Key,
				Attribute:  a.key,
				device:     device,
				project:    rankProjection(rec, p, a.key),
			})
		}
	}

	out = append(out,
		&View{
			UniqueID: rec.EntryID + "_current_playlist",
			Name:     rec.Username + " Current Playlist",
			Icon:     "mdi:gamepad-variant",
			device:   device,
			project:  currentPlaylistProjection(rec),
		},
		&View{
			UniqueID: rec.EntryID + "_match_result",
			Name:     rec.Username + " Last Match Result",
			Icon:     "mdi:soccer",
			device:   device,
			project:  matchResultProjection(rec),
		},
		&View{
			UniqueID:   rec.EntryID + "_team_score",
			Name:       rec.Username + " Team Score",
			Icon:       "mdi:counter",
			StateClass: ClassMeasurement,
			device:     device,
			project:    scoreProjection(model.KeyPlayersTeam),
		},
		&View{
			UniqueID:   rec.EntryID + "_opponent_score",
			Name:       rec.Username + " Opponent Score",
			Icon:       "mdi:counter",
			StateClass: ClassMeasurement,
			device:     device,
			project:    scoreProjection(model.KeyOtherTeam),
		},
	)
	return out
}

func rankProjection(rec model.PlayerRecord, p catalog.Playlist, attr string) projection {
	return func(doc model.Document) (any, map[string]any) {
		ranks := doc.Ranks()
		entry, ok := ranks[p.Key].(map[string]any)
		if !ok {
			return nil, nil
		}
		synced, _ := entry["is_synced"].(bool)
		attrs := map[string]any{
			"playlist":              p.Key,
			"playlist_display_name": p.Label,
			"is_synced":             synced,
			"platform":              string(rec.Platform),
			"uuid":                  rec.UUID,
		}
		if attr == "tier" {
			if n, ok := model.Number(entry["tier"]); ok {
				if label, ok := catalog.TierLabel(int(n)); ok {
					attrs["tier_name"] = label
				}
			}
		}
		return entry[attr], attrs
	}
}

func currentPlaylistProjection(rec model.PlayerRecord) projection {
	return func(doc model.Document) (any, map[string]any) {
		current := doc.CurrentPlaylist()
		attrs := map[string]any{
			"playlist_id":    current["id"],
			"mmr":            current["mmr"],
			"tier":           current["tier"],
			"division":       current["division"],
			"rank_name":      current["rank_name"],
			"matches_played": current["matches_played"],
			"is_synced":      current["is_synced"],
			"platform":       string(rec.Platform),
			"uuid":           rec.UUID,
		}
		name, _ := current["name"].(string)
		if name == "" {
			return nil, attrs
		}
		return catalog.PlaylistLabelOr(name), attrs
	}
}

func team(doc model.Document, key string) map[string]any {
	t, _ := doc.TeamOutcome()[key].(map[string]any)
	return t
}

// score returns a team's score, treating a missing or non-numeric one as 0.
func score(t map[string]any) float64 {
	n, _ := model.Number(t[keyScore])
	return n
}

// MatchResult compares the two team scores of a TeamData section. It returns
// "" when the section is empty.
func MatchResult(teamData map[string]any) string {
	if len(teamData) == 0 {
		return ""
	}
	players, _ := teamData[model.KeyPlayersTeam].(map[string]any)
	other, _ := teamData[model.KeyOtherTeam].(map[string]any)
	switch mine, theirs := score(players), score(other); {
	case mine > theirs:
		return ResultWin
	case mine < theirs:
		return ResultLoss
	default:
		return ResultTie
	}
}

func matchResultProjection(rec model.PlayerRecord) projection {
	return func(doc model.Document) (any, map[string]any) {
		result := MatchResult(doc.TeamOutcome())
		if result == "" {
			return nil, nil
		}
		players := team(doc, model.KeyPlayersTeam)
		other := team(doc, model.KeyOtherTeam)
		return result, map[string]any{
			"player_team_score": players[keyScore],
			"other_team_score":  other[keyScore],
			"player_team_color": players[keyColor],
			"other_team_color":  other[keyColor],
			"platform":          string(rec.Platform),
			"uuid":              rec.UUID,
		}
	}
}

func scoreProjection(side string) projection {
	return func(doc model.Document) (any, map[string]any) {
		if len(doc.TeamOutcome()) == 0 {
			return nil, nil
		}
		return team(doc, side)[keyScore], nil
	}
}
