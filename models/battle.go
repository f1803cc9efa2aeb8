package models

import (
	"time"
)

// BattleStatus is the lifecycle state of a battle.
type BattleStatus string

const (
	BattleStatusRegistration BattleStatus = "registration"
	BattleStatusStarting     BattleStatus = "starting"
	BattleStatusActive       BattleStatus = "active"
	BattleStatusFinished     BattleStatus = "finished"
	BattleStatusCancelled    BattleStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible from the status.
func (s BattleStatus) Terminal() bool {
	return s == BattleStatusFinished || s == BattleStatusCancelled
}

// CancelReason explains why a battle ended in cancelled state.
type CancelReason string

const (
	CancelReasonForced           CancelReason = "forced"
	CancelReasonNotEnoughPlayers CancelReason = "not_enough_players"
	CancelReasonInternalError    CancelReason = "internal_error"
)

// Battle is one registration → simulation → resolution lifecycle.
// Only terminal battles are persisted; the live battle is owned by the registry.
type Battle struct {
	ID                   string       `json:"id" gorm:"primaryKey"`
	Name                 string       `json:"name"`
	Status               BattleStatus `json:"status" gorm:"type:varchar(16);index"`
	CancelReason         CancelReason `json:"cancel_reason,omitempty" gorm:"type:varchar(32)"`
	MaxPlayers           int          `json:"max_players"` // organizer hint, joins are not hard-capped
	RegistrationDeadline time.Time    `json:"registration_deadline"`
	CreatedAt            time.Time    `json:"created_at" gorm:"autoCreateTime"`
	StartedAt            *time.Time   `json:"started_at,omitempty"`
	EndedAt              *time.Time   `json:"ended_at,omitempty"`
	WinnerID             string       `json:"winner_id,omitempty" gorm:"index"`
	ArchiveURL           string       `json:"archive_url,omitempty"` // R2 combat log location

	// Relationships
	Participants []Participant `json:"participants,omitempty" gorm:"foreignKey:BattleID"`
	Rewards      []RewardEntry `json:"rewards,omitempty" gorm:"foreignKey:BattleID"`
}

// Participant is a user's membership record within one battle.
// (BattleID, UserID) is unique; Position is written once, on finish.
type Participant struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	BattleID   string    `json:"battle_id" gorm:"not null;index:idx_battle_user,unique"`
	UserID     string    `json:"user_id" gorm:"not null;index:idx_battle_user,unique"`
	JoinedAt   time.Time `json:"joined_at"`
	Eliminated bool      `json:"eliminated" gorm:"default:false"`
	Revived    bool      `json:"revived" gorm:"default:false"`
	Score      float64   `json:"score"`
	Position   int       `json:"position"` // 1-based final rank, 0 = unranked
}

// CombatEventKind discriminates the simulated occurrences during an active battle.
type CombatEventKind string

const (
	CombatEventCombat     CombatEventKind = "combat"
	CombatEventApocalypse CombatEventKind = "apocalypse"
	CombatEventRevival    CombatEventKind = "revival"
	CombatEventBoost      CombatEventKind = "boost"
)

// CombatEvent is one simulated occurrence. Events are ephemeral: they are
// streamed to listeners and archived as JSON, never stored relationally.
type CombatEvent struct {
	Kind          CombatEventKind `json:"kind"`
	AffectedUsers []string        `json:"affected_users"`
	NarrativeSlot int             `json:"narrative_slot"` // index into the presentation layer's flavor-text pool
	Timestamp     time.Time       `json:"timestamp"`
}

// RewardEntry is a payout instruction tied to a participant's final rank.
// Zero-amount entries are emitted for ranks beyond the payout table so
// downstream consumers can still record participation.
type RewardEntry struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	BattleID  string    `json:"battle_id" gorm:"not null;index"`
	UserID    string    `json:"user_id" gorm:"not null;index"`
	Position  int       `json:"position"`
	Amount    float64   `json:"amount"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BattleView is the read model returned by the status endpoint.
type BattleView struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Status           BattleStatus `json:"status"`
	CancelReason     CancelReason `json:"cancel_reason,omitempty"`
	ParticipantCount int          `json:"participant_count"`
	Deadline         *time.Time   `json:"deadline,omitempty"`
	WinnerID         string       `json:"winner_id,omitempty"`
}
