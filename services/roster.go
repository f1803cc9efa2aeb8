package services

import (
	"time"

	"battle-event-system/models"

	"github.com/google/uuid"
)

// Roster holds the ordered, unique participant set of a single battle.
// Insertion order is join order and is used only for display. The roster is
// not internally locked: every mutation and the closing read go through the
// battle service mutex, which is what guarantees that a join racing the
// registration-close transition either lands before the close or is rejected.
type Roster struct {
	entries []models.Participant
	index   map[string]int
	open    bool
}

func NewRoster() *Roster {
	return &Roster{
		index: make(map[string]int),
		open:  true,
	}
}

// Add appends a participant. It fails with ErrRegistrationClosed once the
// roster has been closed and with ErrAlreadyJoined on a duplicate user.
func (r *Roster) Add(battleID, userID string, joinedAt time.Time) (models.Participant, error) {
	if !r.open {
		return models.Participant{}, ErrRegistrationClosed
	}
	if _, dup := r.index[userID]; dup {
		return models.Participant{}, ErrAlreadyJoined
	}

	p := models.Participant{
		ID:       uuid.NewString(),
		BattleID: battleID,
		UserID:   userID,
		JoinedAt: joinedAt,
	}
	r.index[userID] = len(r.entries)
	r.entries = append(r.entries, p)
	return p, nil
}

func (r *Roster) Size() int {
	return len(r.entries)
}

func (r *Roster) Contains(userID string) bool {
	_, ok := r.index[userID]
	return ok
}

// Close freezes the roster and returns the final participant list. Joins
// arriving after Close (even in the same instant) are rejected.
func (r *Roster) Close() []models.Participant {
	r.open = false
	return r.Participants()
}

// Participants returns a copy of the roster in join order.
func (r *Roster) Participants() []models.Participant {
	out := make([]models.Participant, len(r.entries))
	copy(out, r.entries)
	return out
}

// UserIDs returns the participant user ids in join order.
func (r *Roster) UserIDs() []string {
	ids := make([]string, len(r.entries))
	for i, p := range r.entries {
		ids[i] = p.UserID
	}
	return ids
}
