package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"battle-event-system/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

// DefaultStartingCountdown is the presentation pause between the roster
// closing and the simulation running.
const DefaultStartingCountdown = 5 * time.Second

const rewardReason = "battle_reward"

// CombatEventListener receives each combat event as it is committed. This is
// a one-way notification for narration layers, never a control point.
type CombatEventListener func(battleID string, ev models.CombatEvent)

// ArchiveFunc uploads a finished battle's combat log and returns its public
// URL. A nil func disables archival.
type ArchiveFunc func(key string, data []byte) (string, error)

// BattleService drives the battle lifecycle: it owns every state transition
// of the live battle and serializes all mutations behind one mutex. Timers
// and the simulation carry an epoch stamp so a fire or commit that raced a
// force-end is silently dropped.
type BattleService struct {
	mu        sync.Mutex
	registry  *BattleRegistry
	store     BattleStore
	directory UserDirectory
	ledger    AccountLedger
	sched     DeadlineScheduler
	clock     Clock

	archive   ArchiveFunc
	newRNG    func() *rand.Rand
	listeners []CombatEventListener

	// StartingCountdown is the starting → active delay. Shorten it in tests.
	StartingCountdown time.Duration
}

func NewBattleService(
	registry *BattleRegistry,
	store BattleStore,
	directory UserDirectory,
	ledger AccountLedger,
	sched DeadlineScheduler,
	clock Clock,
) *BattleService {
	return &BattleService{
		registry:  registry,
		store:     store,
		directory: directory,
		ledger:    ledger,
		sched:     sched,
		clock:     clock,
		newRNG: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
		StartingCountdown: DefaultStartingCountdown,
	}
}

// SetArchiver wires combat-log archival (R2 in production).
func (s *BattleService) SetArchiver(fn ArchiveFunc) {
	s.archive = fn
}

// SetRandSource overrides the per-battle random source factory.
func (s *BattleService) SetRandSource(fn func() *rand.Rand) {
	s.newRNG = fn
}

// AddCombatEventListener registers a narration listener. Listeners are called
// in event order, outside the service mutex.
func (s *BattleService) AddCombatEventListener(l CombatEventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// CreateBattle opens a registration window. Only one non-terminal battle may
// exist process-wide; a second create fails with ErrBattleConflict.
func (s *BattleService) CreateBattle(name string, maxPlayers, registrationMinutes int) (models.BattleView, error) {
	if maxPlayers < 2 || maxPlayers > 20 {
		return models.BattleView{}, fmt.Errorf("%w: max_players must be between 2 and 20", ErrInvalidArgument)
	}
	if registrationMinutes < 1 || registrationMinutes > 30 {
		return models.BattleView{}, fmt.Errorf("%w: registration_minutes must be between 1 and 30", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if name == "" {
		name = "Battle Royale " + now.Format("2006-01-02")
	}

	st := &battleState{
		battle: models.Battle{
			ID:                   uuid.NewString(),
			Name:                 name,
			Status:               models.BattleStatusRegistration,
			MaxPlayers:           maxPlayers,
			RegistrationDeadline: now.Add(time.Duration(registrationMinutes) * time.Minute),
			CreatedAt:            now,
		},
		roster: NewRoster(),
	}

	if err := s.registry.Allocate(st); err != nil {
		return models.BattleView{}, err
	}

	battleID := st.battle.ID
	epoch := st.epoch
	st.cancelTimer = s.sched.After(time.Duration(registrationMinutes)*time.Minute, func() {
		s.onRegistrationDeadline(battleID, epoch)
	})

	log.Printf("⚔️  Battle %s created (%q, max %d players, closes %s)",
		battleID, name, maxPlayers, st.battle.RegistrationDeadline.Format(time.RFC3339))
	return viewOf(st), nil
}

// JoinBattle adds a user to the live battle's roster and returns the new
// roster size. Duplicate joins beat the cooldown check so a double-click on
// the same battle reads as "already joined", not "on cooldown".
func (s *BattleService) JoinBattle(battleID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.registry.Find(battleID)
	if st == nil {
		return 0, ErrBattleNotFound
	}
	if st.battle.Status != models.BattleStatusRegistration {
		return 0, ErrRegistrationClosed
	}
	if st.roster.Contains(userID) {
		return 0, ErrAlreadyJoined
	}

	now := s.clock.Now()
	if rem := s.registry.CooldownRemaining(userID, now); rem > 0 {
		return 0, fmt.Errorf("%w: %s left", ErrCooldownActive, rem.Round(time.Second))
	}

	if _, err := st.roster.Add(battleID, userID, now); err != nil {
		return 0, err
	}
	s.registry.RecordJoin(userID, now)

	log.Printf("🙋 User %s joined battle %s (%d registered)", userID, battleID, st.roster.Size())
	return st.roster.Size(), nil
}

// Status reports the battle view for any known id: the live battle, a
// recently ended one, or an archived one.
func (s *BattleService) Status(battleID string) (models.BattleView, error) {
	s.mu.Lock()
	if st := s.registry.Find(battleID); st != nil {
		defer s.mu.Unlock()
		return viewOf(st), nil
	}
	if st := s.registry.Recent(battleID, s.clock.Now()); st != nil {
		defer s.mu.Unlock()
		return viewOf(st), nil
	}
	s.mu.Unlock()

	battle, err := s.store.FindBattle(battleID)
	if err != nil {
		return models.BattleView{}, err
	}
	return archivedView(battle), nil
}

// ActiveBattle returns the live battle view, if any.
func (s *BattleService) ActiveBattle() (models.BattleView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.registry.Live()
	if st == nil || st.battle.Status.Terminal() {
		return models.BattleView{}, false
	}
	return viewOf(st), true
}

// Events returns the combat events committed so far plus the battle status,
// for the narration feed. cursor skips events already consumed.
func (s *BattleService) Events(battleID string, cursor int) ([]models.CombatEvent, models.BattleStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.registry.Find(battleID)
	if st == nil {
		st = s.registry.Recent(battleID, s.clock.Now())
	}
	if st == nil {
		return nil, "", ErrBattleNotFound
	}
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(st.events) {
		cursor = len(st.events)
	}
	out := make([]models.CombatEvent, len(st.events)-cursor)
	copy(out, st.events[cursor:])
	return out, st.battle.Status, nil
}

// ForceEnd cancels the battle from any non-terminal state: it disarms pending
// timers, invalidates any in-flight simulation, and archives the battle as
// cancelled. Calling it on an already-ended battle is a no-op that returns
// the terminal view.
func (s *BattleService) ForceEnd(battleID string) (models.BattleView, error) {
	s.mu.Lock()

	st := s.registry.Find(battleID)
	if st == nil {
		if st = s.registry.Recent(battleID, s.clock.Now()); st != nil {
			defer s.mu.Unlock()
			return viewOf(st), nil
		}
		s.mu.Unlock()
		battle, err := s.store.FindBattle(battleID)
		if err != nil {
			return models.BattleView{}, err
		}
		return archivedView(battle), nil
	}
	defer s.mu.Unlock()

	if st.battle.Status.Terminal() {
		return viewOf(st), nil
	}

	s.cancelLocked(st, models.CancelReasonForced)
	log.Printf("🛑 Battle %s force-ended by organizer", battleID)
	return viewOf(st), nil
}

// cancelLocked moves the battle to cancelled. Caller holds s.mu.
// No entry fee is charged on join, so there is nothing to reverse on the
// ledger; fee-bearing deployments would refund committed fees here.
func (s *BattleService) cancelLocked(st *battleState, reason models.CancelReason) {
	if st.cancelTimer != nil {
		st.cancelTimer()
		st.cancelTimer = nil
	}
	st.epoch++
	st.roster.Close()

	now := s.clock.Now()
	st.battle.Status = models.BattleStatusCancelled
	st.battle.CancelReason = reason
	st.battle.EndedAt = &now

	battle := st.battle
	participants := st.roster.Participants()
	if err := s.store.SaveTerminalBattle(&battle, participants, nil); err != nil {
		log.Printf("❌ Failed to archive cancelled battle %s: %v", battle.ID, err)
	}
	s.registry.Release(battle.ID, now)
}

// onRegistrationDeadline fires when the registration window closes. A stale
// epoch means the battle was force-ended first and the fire is dropped.
func (s *BattleService) onRegistrationDeadline(battleID string, epoch int) {
	s.mu.Lock()

	st := s.registry.Find(battleID)
	if st == nil || st.epoch != epoch || st.battle.Status != models.BattleStatusRegistration {
		s.mu.Unlock()
		return
	}
	st.cancelTimer = nil

	final := st.roster.Close()
	if len(final) < 2 {
		log.Printf("😴 Battle %s closed with %d participant(s), cancelling", battleID, len(final))
		s.cancelLocked(st, models.CancelReasonNotEnoughPlayers)
		s.mu.Unlock()
		return
	}

	st.battle.Status = models.BattleStatusStarting
	st.cancelTimer = s.sched.After(s.StartingCountdown, func() {
		s.onCountdownElapsed(battleID, epoch)
	})
	log.Printf("🏁 Battle %s registration closed with %d fighters, starting in %s",
		battleID, len(final), s.StartingCountdown)
	s.mu.Unlock()
}

// onCountdownElapsed moves starting → active and runs the simulation. The
// attribute fetch and the simulation itself run outside the mutex; the
// result is only committed if the battle is still active with the same epoch.
func (s *BattleService) onCountdownElapsed(battleID string, epoch int) {
	s.mu.Lock()
	st := s.registry.Find(battleID)
	if st == nil || st.epoch != epoch || st.battle.Status != models.BattleStatusStarting {
		s.mu.Unlock()
		return
	}
	st.cancelTimer = nil

	now := s.clock.Now()
	st.battle.Status = models.BattleStatusActive
	st.battle.StartedAt = &now
	participants := st.roster.Participants()
	s.mu.Unlock()

	log.Printf("💥 Battle %s is live with %d fighters", battleID, len(participants))
	s.runSimulation(battleID, epoch, participants)
}

func (s *BattleService) runSimulation(battleID string, epoch int, participants []models.Participant) {
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = p.UserID
	}

	attrs, err := s.directory.BattleAttributes(ids)
	if err != nil {
		log.Printf("❌ Attribute snapshot failed for battle %s: %v", battleID, err)
		s.failBattle(battleID, epoch)
		return
	}

	fighters := make([]FighterSnapshot, len(participants))
	for i, p := range participants {
		a := attrs[p.UserID]
		fighters[i] = FighterSnapshot{UserID: p.UserID, Level: a.Level, Balance: a.Balance}
	}

	sim := NewCombatSimulator(s.newRNG())
	result := sim.Run(fighters, s.clock.Now())

	s.commitResult(battleID, epoch, result)
}

// failBattle cancels a battle after an internal fault. The process survives;
// only this battle dies, and no rewards are emitted.
func (s *BattleService) failBattle(battleID string, epoch int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.registry.Find(battleID)
	if st == nil || st.epoch != epoch || st.battle.Status.Terminal() {
		return
	}
	s.cancelLocked(st, models.CancelReasonInternalError)
}

// commitResult applies the simulation outcome. If a force-end landed while
// the simulation ran, the epoch no longer matches and the result is dropped.
func (s *BattleService) commitResult(battleID string, epoch int, result SimulationResult) {
	s.mu.Lock()

	st := s.registry.Find(battleID)
	if st == nil || st.epoch != epoch || st.battle.Status != models.BattleStatusActive {
		s.mu.Unlock()
		log.Printf("🗑️  Discarding simulation result for battle %s (cancelled mid-run)", battleID)
		return
	}

	st.events = append(st.events, result.Events...)

	byUser := make(map[string]RankedFighter, len(result.Ranking))
	for _, f := range result.Ranking {
		byUser[f.UserID] = f
	}
	participants := st.roster.Participants()
	for i := range participants {
		f := byUser[participants[i].UserID]
		participants[i].Eliminated = f.Eliminated
		participants[i].Revived = f.Revived
		participants[i].Score = f.Score
		participants[i].Position = f.Position
	}

	now := s.clock.Now()
	st.battle.Status = models.BattleStatusFinished
	st.battle.EndedAt = &now
	st.battle.WinnerID = result.Ranking[0].UserID

	rewards := ComputeRewards(battleID, result.Ranking)
	battle := st.battle
	listeners := make([]CombatEventListener, len(s.listeners))
	copy(listeners, s.listeners)

	if err := s.store.SaveTerminalBattle(&battle, participants, rewards); err != nil {
		log.Printf("❌ Failed to archive finished battle %s: %v", battleID, err)
	}
	s.registry.Release(battleID, now)
	s.mu.Unlock()

	log.Printf("🏆 Battle %s finished, winner %s (%d fighters, %d events)",
		battleID, battle.WinnerID, len(participants), len(result.Events))

	for _, l := range listeners {
		for _, ev := range result.Events {
			l(battleID, ev)
		}
	}

	s.payRewards(battleID, rewards)
	s.archiveCombatLog(&battle, result)
}

func (s *BattleService) payRewards(battleID string, rewards []models.RewardEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, entry := range rewards {
		if entry.Amount <= 0 {
			continue
		}
		if err := s.ledger.Credit(ctx, entry.UserID, entry.Amount, rewardReason); err != nil {
			log.Printf("❌ Failed to credit %s with %.0f tokens for battle %s: %v",
				entry.UserID, entry.Amount, battleID, err)
		}
	}
}

func (s *BattleService) archiveCombatLog(battle *models.Battle, result SimulationResult) {
	if s.archive == nil {
		return
	}

	payload, err := json.MarshalIndent(map[string]any{
		"battle":  battle,
		"events":  result.Events,
		"ranking": result.Ranking,
	}, "", "  ")
	if err != nil {
		log.Printf("❌ Failed to encode combat log for battle %s: %v", battle.ID, err)
		return
	}

	key := fmt.Sprintf("battles/%s-%s.json", slug.Make(battle.Name), battle.ID)
	url, err := s.archive(key, payload)
	if err != nil {
		log.Printf("❌ Failed to upload combat log for battle %s: %v", battle.ID, err)
		return
	}
	if err := s.store.UpdateArchiveURL(battle.ID, url); err != nil {
		log.Printf("❌ Failed to record archive URL for battle %s: %v", battle.ID, err)
		return
	}
	log.Printf("🗄️  Combat log for battle %s archived at %s", battle.ID, url)
}

func viewOf(st *battleState) models.BattleView {
	view := models.BattleView{
		ID:               st.battle.ID,
		Name:             st.battle.Name,
		Status:           st.battle.Status,
		CancelReason:     st.battle.CancelReason,
		ParticipantCount: st.roster.Size(),
		WinnerID:         st.battle.WinnerID,
	}
	if st.battle.Status == models.BattleStatusRegistration {
		deadline := st.battle.RegistrationDeadline
		view.Deadline = &deadline
	}
	return view
}

func archivedView(b *models.Battle) models.BattleView {
	return models.BattleView{
		ID:               b.ID,
		Name:             b.Name,
		Status:           b.Status,
		CancelReason:     b.CancelReason,
		ParticipantCount: len(b.Participants),
		WinnerID:         b.WinnerID,
	}
}
