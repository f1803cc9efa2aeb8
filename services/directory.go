package services

import (
	"fmt"

	"battle-event-system/models"

	"gorm.io/gorm"
)

// BattleAttributes are the external user attributes the scoring formula needs.
type BattleAttributes struct {
	Level   int
	Balance float64
}

// UserDirectory supplies the read-only attribute snapshot fetched once at
// simulation start. It must not be consulted mid-simulation.
type UserDirectory interface {
	BattleAttributes(userIDs []string) (map[string]BattleAttributes, error)
}

// MirrorDirectory reads attributes from the locally synced fighter_mirrors
// table (populated by the fighter sync worker). Users the worker has not seen
// yet fall back to level 1 with an empty balance.
type MirrorDirectory struct {
	DB *gorm.DB
}

func NewMirrorDirectory(db *gorm.DB) *MirrorDirectory {
	return &MirrorDirectory{DB: db}
}

func (d *MirrorDirectory) BattleAttributes(userIDs []string) (map[string]BattleAttributes, error) {
	var mirrors []models.FighterMirror
	if err := d.DB.Where("external_user_id IN ?", userIDs).Find(&mirrors).Error; err != nil {
		return nil, fmt.Errorf("failed to load fighter attributes: %w", err)
	}

	attrs := make(map[string]BattleAttributes, len(userIDs))
	for _, id := range userIDs {
		attrs[id] = BattleAttributes{Level: 1}
	}
	for _, m := range mirrors {
		attrs[m.ExternalUserID] = BattleAttributes{Level: m.Level, Balance: m.Balance}
	}
	return attrs, nil
}
