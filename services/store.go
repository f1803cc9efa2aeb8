package services

import (
	"errors"

	"battle-event-system/models"

	"gorm.io/gorm"
)

// BattleStore archives terminal battles. The live battle exists only in the
// registry; nothing is written until a battle reaches finished or cancelled.
type BattleStore interface {
	SaveTerminalBattle(b *models.Battle, participants []models.Participant, rewards []models.RewardEntry) error
	UpdateArchiveURL(battleID, url string) error
	FindBattle(battleID string) (*models.Battle, error)
	ListBattles(limit int) ([]models.Battle, error)
}

// GormBattleStore persists archives to Postgres.
type GormBattleStore struct {
	DB *gorm.DB
}

func NewGormBattleStore(db *gorm.DB) *GormBattleStore {
	return &GormBattleStore{DB: db}
}

func (s *GormBattleStore) SaveTerminalBattle(b *models.Battle, participants []models.Participant, rewards []models.RewardEntry) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Participants", "Rewards").Create(b).Error; err != nil {
			return err
		}
		if len(participants) > 0 {
			if err := tx.Create(&participants).Error; err != nil {
				return err
			}
		}
		if len(rewards) > 0 {
			if err := tx.Create(&rewards).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *GormBattleStore) UpdateArchiveURL(battleID, url string) error {
	return s.DB.Model(&models.Battle{}).
		Where("id = ?", battleID).
		Update("archive_url", url).Error
}

func (s *GormBattleStore) FindBattle(battleID string) (*models.Battle, error) {
	var battle models.Battle
	err := s.DB.
		Preload("Participants", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		Preload("Rewards", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		}).
		First(&battle, "id = ?", battleID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrBattleNotFound
	}
	if err != nil {
		return nil, err
	}
	return &battle, nil
}

func (s *GormBattleStore) ListBattles(limit int) ([]models.Battle, error) {
	var battles []models.Battle
	q := s.DB.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&battles).Error; err != nil {
		return nil, err
	}
	return battles, nil
}
