package config

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/rocketstat/internal/domain/identity"
	"github.com/okian/rocketstat/internal/domain/model"
)

// entryNamespace seeds derived entry ids so the same player always gets the
// same id, and therefore the same persisted slot, across restarts.
var entryNamespace = uuid.MustParse("b4d31e16-3d68-401e-849f-669d682441ec")

// EntryIDFor derives the entry id of a player without a configured one.
func EntryIDFor(platform identity.Platform, id string) string {
	return uuid.NewSHA1(entryNamespace, []byte(string(platform)+"_"+id)).String()
}

// Record converts p into a player record, deriving the entry id when unset.
func (p PlayerConfig) Record() (model.PlayerRecord, error) {
	platform, err := identity.ParsePlatform(p.Platform)
	if err != nil {
		return model.PlayerRecord{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	rec := model.PlayerRecord{
		EntryID:  p.EntryID,
		Name:     p.Name,
		Username: p.Username,
		Platform: platform,
		UUID:     p.UUID,
	}
	if rec.EntryID == "" {
		rec.EntryID = EntryIDFor(platform, p.UUID)
	}
	if rec.Name == "" {
		rec.Name = rec.Username
	}
	return rec, nil
}

// Records converts every configured player. The same player (platform and
// uuid) or the same entry id may appear only once.
func (c *Config) Records() ([]model.PlayerRecord, error) {
	out := make([]model.PlayerRecord, 0, len(c.Players))
	byUnique := make(map[string]int, len(c.Players))
	byEntry := make(map[string]int, len(c.Players))

	for i, p := range c.Players {
		rec, err := p.Record()
		if err != nil {
			return nil, fmt.Errorf("players[%d]: %w", i, err)
		}
		if j, dup := byUnique[rec.UniqueID()]; dup {
			return nil, fmt.Errorf("%w: players[%d] duplicates players[%d] (%s)", ErrInvalidConfig, i, j, rec.UniqueID())
		}
		if j, dup := byEntry[rec.EntryID]; dup {
			return nil, fmt.Errorf("%w: players[%d] reuses entry_id of players[%d]", ErrInvalidConfig, i, j)
		}
		byUnique[rec.UniqueID()] = i
		byEntry[rec.EntryID] = i
		out = append(out, rec)
	}
	return out, nil
}
