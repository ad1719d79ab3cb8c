package simulator

import (
	"context"
	"net/http"

	"github.com/okian/rocketstat/internal/domain/model"
	"github.com/okian/rocketstat/internal/domain/views"
	"github.com/okian/rocketstat/pkg/logger"
)

// verify compares each player's score views with the last document the
// player accepted. Players that accepted nothing are skipped.
func verify(ctx context.Context, client *HTTPClient, baseURL string, players []model.PlayerRecord, last []model.Document, stats *Stats) {
	log := logger.Get().Named("simulator")
	for i, rec := range players {
		doc := last[i]
		if doc == nil {
			continue
		}
		mine := doc.Section(model.KeyTeamData, model.KeyPlayersTeam)
		theirs := doc.Section(model.KeyTeamData, model.KeyOtherTeam)
		want := map[string]any{
			rec.EntryID + "_team_score":     number(mine["score"]),
			rec.EntryID + "_opponent_score": number(theirs["score"]),
			rec.EntryID + "_match_result":   views.MatchResult(doc.TeamOutcome()),
		}

		for id, expected := range want {
			var state views.State
			status, err := client.GetJSON(ctx, baseURL+"/players/"+rec.EntryID+"/sensors/"+id, &state)
			if err != nil || status != http.StatusOK {
				log.Warn(ctx, "view lookup failed", logger.String("view", id), logger.Int("status", status), logger.Error(err))
				stats.Mismatch++
				continue
			}
			got := state.Value
			if f, ok := model.Number(got); ok {
				got = f
			}
			if got != expected {
				log.Warn(ctx, "view mismatch", logger.String("view", id), logger.Any("want", expected), logger.Any("got", state.Value))
				stats.Mismatch++
				continue
			}
			stats.Verified++
		}
	}
}

func number(v any) any {
	if f, ok := model.Number(v); ok {
		return f
	}
	return v
}
