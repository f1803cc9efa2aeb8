package services

import (
	"sync"
	"time"

	"battle-event-system/models"
)

const (
	// JoinCooldown is the global per-user window between battle joins,
	// independent of which battle was joined.
	JoinCooldown = 5 * time.Minute

	// terminalRetention keeps just-ended battles readable from memory before
	// status lookups fall through to the archive store.
	terminalRetention = 30 * time.Minute
)

// battleState is the live, mutable record of one battle. All field mutations
// are serialized by the battle service mutex; the registry only tracks which
// state is live and who joined recently.
type battleState struct {
	battle models.Battle
	roster *Roster
	events []models.CombatEvent

	// epoch invalidates in-flight timers and simulations. Every terminal
	// transition bumps it; a timer fire or simulation commit carrying a stale
	// epoch is a no-op.
	epoch int

	cancelTimer func()
	releasedAt  time.Time
}

// BattleRegistry is the single source of truth for which battle is live.
// One instance is built in main and injected everywhere; there is no
// package-level battle state. It also owns the global join-cooldown table.
type BattleRegistry struct {
	mu        sync.Mutex
	live      *battleState
	recent    map[string]*battleState
	lastJoins map[string]time.Time
}

func NewBattleRegistry() *BattleRegistry {
	return &BattleRegistry{
		recent:    make(map[string]*battleState),
		lastJoins: make(map[string]time.Time),
	}
}

// Allocate installs st as the live battle. Fails with ErrBattleConflict while
// another non-terminal battle exists; this is the process-wide single-battle
// invariant.
func (r *BattleRegistry) Allocate(st *battleState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live != nil && !r.live.battle.Status.Terminal() {
		return ErrBattleConflict
	}
	r.live = st
	return nil
}

// Live returns the current live battle state, or nil.
func (r *BattleRegistry) Live() *battleState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// Find returns the live battle if it has the given id, or nil.
func (r *BattleRegistry) Find(battleID string) *battleState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live != nil && r.live.battle.ID == battleID {
		return r.live
	}
	return nil
}

// Recent returns a terminal battle still inside the retention window.
func (r *BattleRegistry) Recent(battleID string, now time.Time) *battleState {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prune(now)
	return r.recent[battleID]
}

// Release moves the live battle into the retention map once it is terminal.
func (r *BattleRegistry) Release(battleID string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.live == nil || r.live.battle.ID != battleID {
		return
	}
	r.live.releasedAt = now
	r.recent[battleID] = r.live
	r.live = nil
	r.prune(now)
}

func (r *BattleRegistry) prune(now time.Time) {
	for id, st := range r.recent {
		if now.Sub(st.releasedAt) > terminalRetention {
			delete(r.recent, id)
		}
	}
}

// RecordJoin stamps the user's global cooldown.
func (r *BattleRegistry) RecordJoin(userID string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastJoins[userID] = at
}

// CooldownRemaining reports how long until the user may join again; zero or
// negative means the user is clear.
func (r *BattleRegistry) CooldownRemaining(userID string, now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.lastJoins[userID]
	if !ok {
		return 0
	}
	return JoinCooldown - now.Sub(last)
}
