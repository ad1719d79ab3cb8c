package simulator

import (
	"fmt"
	"math/rand/v2"
	"strconv"

	"github.com/okian/rocketstat/internal/domain/catalog"
	"github.com/okian/rocketstat/internal/domain/model"
)

// Rating model constants.
const (
	startMMRMin   = 200
	startMMRRange = 1000
	mmrSwingMin   = 7
	mmrSwingRange = 6
	mmrPerTier    = 75
	divisions     = 4
	maxGoals      = 6
	winChance     = 0.5
)

type rating struct {
	mmr     float64
	matches int
}

type playerState struct {
	rec     model.PlayerRecord
	ratings map[string]*rating
}

// Generator produces a sequence of match documents per player. Ratings move
// with every match so consecutive documents differ the way real ones do.
type Generator struct {
	rng     *rand.Rand
	players []*playerState
}

// NewGenerator seeds a generator for players.
func NewGenerator(seed uint64, players []model.PlayerRecord) *Generator {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	g := &Generator{rng: rng}
	for _, rec := range players {
		ps := &playerState{rec: rec, ratings: map[string]*rating{}}
		for _, p := range catalog.Playlists() {
			ps.ratings[p.Key] = &rating{
				mmr:     float64(startMMRMin + rng.IntN(startMMRRange)),
				matches: rng.IntN(200),
			}
		}
		g.players = append(g.players, ps)
	}
	return g
}

// Token returns the identity token the game reports for rec.
func Token(rec model.PlayerRecord) string {
	return rec.Platform.Title() + "|" + rec.UUID + "|0"
}

// Next plays one match for the player at index i and returns the resulting
// document.
func (g *Generator) Next(i int) model.Document {
	ps := g.players[i]
	playlists := catalog.Playlists()
	current := playlists[g.rng.IntN(len(playlists))].Key

	mine, theirs := g.score()
	r := ps.ratings[current]
	swing := float64(mmrSwingMin + g.rng.IntN(mmrSwingRange))
	switch {
	case mine > theirs:
		r.mmr += swing
	case mine < theirs:
		r.mmr -= swing
	}
	if r.mmr < 0 {
		r.mmr = 0
	}
	r.matches++

	ranks := make(map[string]any, len(playlists))
	for _, p := range playlists {
		ranks[p.Key] = rankEntry(ps.ratings[p.Key])
	}
	cur := rankEntry(r)
	cur["name"] = current
	cur["id"] = playlistID(current)

	return model.Document{
		model.KeyData: fmt.Sprintf("match-%d", r.matches),
		model.KeyTeamData: map[string]any{
			model.KeyPlayersTeam: map[string]any{"score": mine, "color": "#1873FF"},
			model.KeyOtherTeam:   map[string]any{"score": theirs, "color": "#C26418"},
		},
		model.KeyMMRData: map[string]any{
			model.KeyPlayerData: map[string]any{
				model.KeyUID: Token(ps.rec),
				"name":       ps.rec.Username,
			},
			model.KeyRanks:           ranks,
			model.KeyCurrentPlaylist: cur,
		},
	}
}

// Stray returns a document whose identity belongs to nobody configured.
func (g *Generator) Stray() model.Document {
	doc := g.Next(g.rng.IntN(len(g.players)))
	mmr := doc.Section(model.KeyMMRData)
	mmr[model.KeyPlayerData] = map[string]any{
		model.KeyUID: "Steam|" + strconv.FormatUint(g.rng.Uint64(), 10) + "|0",
		"name":       "stranger",
	}
	return doc
}

func (g *Generator) score() (int, int) {
	mine := g.rng.IntN(maxGoals)
	theirs := g.rng.IntN(maxGoals)
	if mine == theirs && g.rng.Float64() < winChance {
		mine++
	}
	return mine, theirs
}

func rankEntry(r *rating) map[string]any {
	tier := int(r.mmr) / mmrPerTier
	if tier > catalog.MaxTier {
		tier = catalog.MaxTier
	}
	name, _ := catalog.TierLabel(tier)
	division := (int(r.mmr) % mmrPerTier) * divisions / mmrPerTier
	return map[string]any{
		"mmr":            r.mmr,
		"tier":           tier,
		"division":       division,
		"matches_played": r.matches,
		"rank_name":      name,
		"is_synced":      true,
	}
}

func playlistID(key string) int {
	for i, p := range catalog.Playlists() {
		if p.Key == key {
			return i + 1
		}
	}
	return 0
}
