package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"battle-event-system/models"
)

// --- test fakes ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type manualTask struct {
	delay     time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

// manualScheduler records armed timers; tests fire them explicitly.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*manualTask
}

func (m *manualScheduler) After(d time.Duration, fn func()) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	task := &manualTask{delay: d, fn: fn}
	m.tasks = append(m.tasks, task)
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		task.cancelled = true
	}
}

// fire runs task i unless it was cancelled.
func (m *manualScheduler) fire(i int) {
	m.mu.Lock()
	if i >= len(m.tasks) {
		m.mu.Unlock()
		return
	}
	task := m.tasks[i]
	m.mu.Unlock()
	if task.cancelled || task.fired {
		return
	}
	task.fired = true
	task.fn()
}

// fireForced runs task i even if cancelled, modelling a timer backend that
// lost the cancellation race. The orchestrator's epoch guard must absorb it.
func (m *manualScheduler) fireForced(i int) {
	m.mu.Lock()
	task := m.tasks[i]
	m.mu.Unlock()
	task.fn()
}

func (m *manualScheduler) taskCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

type memoryStore struct {
	mu           sync.Mutex
	battles      map[string]models.Battle
	participants map[string][]models.Participant
	rewards      map[string][]models.RewardEntry
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		battles:      make(map[string]models.Battle),
		participants: make(map[string][]models.Participant),
		rewards:      make(map[string][]models.RewardEntry),
	}
}

func (s *memoryStore) SaveTerminalBattle(b *models.Battle, participants []models.Participant, rewards []models.RewardEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.battles[b.ID] = *b
	s.participants[b.ID] = participants
	s.rewards[b.ID] = rewards
	return nil
}

func (s *memoryStore) UpdateArchiveURL(battleID, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[battleID]
	if !ok {
		return ErrBattleNotFound
	}
	b.ArchiveURL = url
	s.battles[battleID] = b
	return nil
}

func (s *memoryStore) FindBattle(battleID string) (*models.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.battles[battleID]
	if !ok {
		return nil, ErrBattleNotFound
	}
	b.Participants = s.participants[battleID]
	b.Rewards = s.rewards[battleID]
	return &b, nil
}

func (s *memoryStore) ListBattles(limit int) ([]models.Battle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Battle
	for _, b := range s.battles {
		out = append(out, b)
	}
	return out, nil
}

func (s *memoryStore) savedRewards(battleID string) []models.RewardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rewards[battleID]
}

type creditCall struct {
	userID string
	amount float64
	reason string
}

type fakeLedger struct {
	mu      sync.Mutex
	credits []creditCall
}

func (l *fakeLedger) Credit(ctx context.Context, userID string, amount float64, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credits = append(l.credits, creditCall{userID, amount, reason})
	return nil
}

func (l *fakeLedger) calls() []creditCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]creditCall(nil), l.credits...)
}

type stubDirectory struct {
	err error
}

func (d *stubDirectory) BattleAttributes(userIDs []string) (map[string]BattleAttributes, error) {
	if d.err != nil {
		return nil, d.err
	}
	attrs := make(map[string]BattleAttributes, len(userIDs))
	for i, id := range userIDs {
		attrs[id] = BattleAttributes{Level: 2 + i, Balance: float64(100 * i)}
	}
	return attrs, nil
}

type testRig struct {
	svc    *BattleService
	sched  *manualScheduler
	clock  *fakeClock
	store  *memoryStore
	ledger *fakeLedger
	dir    *stubDirectory
}

func newTestRig() *testRig {
	rig := &testRig{
		sched:  &manualScheduler{},
		clock:  newFakeClock(),
		store:  newMemoryStore(),
		ledger: &fakeLedger{},
		dir:    &stubDirectory{},
	}
	rig.svc = NewBattleService(NewBattleRegistry(), rig.store, rig.dir, rig.ledger, rig.sched, rig.clock)
	return rig
}

// --- tests ---

func TestCreateBattleValidatesRanges(t *testing.T) {
	rig := newTestRig()

	cases := []struct {
		maxPlayers, minutes int
	}{
		{1, 5}, {21, 5}, {5, 0}, {5, 31},
	}
	for _, tc := range cases {
		_, err := rig.svc.CreateBattle("", tc.maxPlayers, tc.minutes)
		if !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("CreateBattle(%d, %d) = %v, want ErrInvalidArgument", tc.maxPlayers, tc.minutes, err)
		}
	}
}

func TestCreateBattleConflict(t *testing.T) {
	rig := newTestRig()

	if _, err := rig.svc.CreateBattle("first", 5, 5); err != nil {
		t.Fatal(err)
	}
	_, err := rig.svc.CreateBattle("second", 5, 5)
	if !errors.Is(err, ErrBattleConflict) {
		t.Fatalf("got %v, want ErrBattleConflict", err)
	}
}

// Scenario: registration closes with no participants → auto-cancel.
func TestDeadlineWithoutParticipantsCancels(t *testing.T) {
	rig := newTestRig()

	view, err := rig.svc.CreateBattle("ghost town", 5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if view.Status != models.BattleStatusRegistration {
		t.Fatalf("status %s after create", view.Status)
	}
	if view.Deadline == nil {
		t.Fatal("registration view missing deadline")
	}

	rig.sched.fire(0)

	got, err := rig.svc.Status(view.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.BattleStatusCancelled {
		t.Fatalf("status %s, want cancelled", got.Status)
	}
	if got.CancelReason != models.CancelReasonNotEnoughPlayers {
		t.Fatalf("cancel reason %s", got.CancelReason)
	}
	if len(rig.ledger.calls()) != 0 {
		t.Fatal("cancelled battle credited the ledger")
	}
}

// Scenario: two joins, deadline, countdown → finished battle with rewards
// 100 and 50, winner matching rank 1.
func TestFullLifecycleTwoPlayers(t *testing.T) {
	rig := newTestRig()

	var streamed []models.CombatEvent
	rig.svc.AddCombatEventListener(func(battleID string, ev models.CombatEvent) {
		streamed = append(streamed, ev)
	})

	view, err := rig.svc.CreateBattle("friday brawl", 5, 1)
	if err != nil {
		t.Fatal(err)
	}

	for i, user := range []string{"alice", "bob"} {
		count, err := rig.svc.JoinBattle(view.ID, user)
		if err != nil {
			t.Fatalf("join %s: %v", user, err)
		}
		if count != i+1 {
			t.Fatalf("roster count %d after %s", count, user)
		}
	}

	rig.sched.fire(0) // registration deadline

	mid, err := rig.svc.Status(view.ID)
	if err != nil {
		t.Fatal(err)
	}
	if mid.Status != models.BattleStatusStarting {
		t.Fatalf("status %s after deadline, want starting", mid.Status)
	}

	rig.sched.fire(1) // starting countdown → simulation

	got, err := rig.svc.Status(view.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.BattleStatusFinished {
		t.Fatalf("status %s, want finished", got.Status)
	}
	if got.WinnerID != "alice" && got.WinnerID != "bob" {
		t.Fatalf("winner %q", got.WinnerID)
	}

	rewards := rig.store.savedRewards(view.ID)
	if len(rewards) != 2 {
		t.Fatalf("%d reward entries, want 2", len(rewards))
	}
	if rewards[0].Position != 1 || rewards[0].Amount != 100 {
		t.Fatalf("rank 1 entry %+v", rewards[0])
	}
	if rewards[1].Position != 2 || rewards[1].Amount != 50 {
		t.Fatalf("rank 2 entry %+v", rewards[1])
	}
	if rewards[0].UserID != got.WinnerID {
		t.Fatalf("winner %q but rank 1 reward went to %q", got.WinnerID, rewards[0].UserID)
	}

	credits := rig.ledger.calls()
	if len(credits) != 2 {
		t.Fatalf("%d ledger credits, want 2", len(credits))
	}
	for _, c := range credits {
		if c.reason != rewardReason {
			t.Errorf("credit reason %q", c.reason)
		}
	}

	events, status, err := rig.svc.Events(view.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if status != models.BattleStatusFinished {
		t.Fatalf("events status %s", status)
	}
	if len(events) < 1 || len(events) > 3 {
		t.Fatalf("%d events recorded", len(events))
	}
	if len(streamed) != len(events) {
		t.Fatalf("listener saw %d events, log has %d", len(streamed), len(events))
	}
}

func TestJoinUnknownBattle(t *testing.T) {
	rig := newTestRig()
	rig.svc.CreateBattle("brawl", 5, 1)

	_, err := rig.svc.JoinBattle("no-such-id", "alice")
	if !errors.Is(err, ErrBattleNotFound) {
		t.Fatalf("got %v, want ErrBattleNotFound", err)
	}
}

func TestJoinAfterRegistrationClosed(t *testing.T) {
	rig := newTestRig()

	view, _ := rig.svc.CreateBattle("brawl", 5, 1)
	rig.svc.JoinBattle(view.ID, "alice")
	rig.svc.JoinBattle(view.ID, "bob")
	rig.sched.fire(0) // now starting

	_, err := rig.svc.JoinBattle(view.ID, "carol")
	if !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("got %v, want ErrRegistrationClosed", err)
	}

	got, _ := rig.svc.Status(view.ID)
	if got.ParticipantCount != 2 {
		t.Fatalf("roster grew outside registration: %d", got.ParticipantCount)
	}
}

// Scenario: double join by the same user. Exactly one success and one
// "already joined", never a cooldown error for the same battle.
func TestDoubleJoinSameUser(t *testing.T) {
	rig := newTestRig()
	view, _ := rig.svc.CreateBattle("brawl", 5, 1)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rig.svc.JoinBattle(view.ID, "alice")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, dup int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyJoined):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != 1 {
		t.Fatalf("ok=%d dup=%d, want exactly one of each", ok, dup)
	}
}

// Scenario: joining a second battle within five minutes of the first join
// hits the global cooldown.
func TestJoinCooldownAcrossBattles(t *testing.T) {
	rig := newTestRig()

	first, _ := rig.svc.CreateBattle("first", 5, 1)
	if _, err := rig.svc.JoinBattle(first.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	rig.svc.ForceEnd(first.ID)

	rig.clock.Advance(time.Minute)
	second, err := rig.svc.CreateBattle("second", 5, 1)
	if err != nil {
		t.Fatal(err)
	}

	_, err = rig.svc.JoinBattle(second.ID, "alice")
	if !errors.Is(err, ErrCooldownActive) {
		t.Fatalf("got %v, want ErrCooldownActive", err)
	}

	rig.clock.Advance(JoinCooldown)
	if _, err := rig.svc.JoinBattle(second.ID, "alice"); err != nil {
		t.Fatalf("join after cooldown: %v", err)
	}
}

func TestForceEndIdempotent(t *testing.T) {
	rig := newTestRig()

	view, _ := rig.svc.CreateBattle("brawl", 5, 1)
	rig.svc.JoinBattle(view.ID, "alice")

	first, err := rig.svc.ForceEnd(view.ID)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != models.BattleStatusCancelled || first.CancelReason != models.CancelReasonForced {
		t.Fatalf("first force end view %+v", first)
	}

	second, err := rig.svc.ForceEnd(view.ID)
	if err != nil {
		t.Fatalf("second force end errored: %v", err)
	}
	if second != first {
		t.Fatalf("second force end view %+v differs from first %+v", second, first)
	}
}

// A deadline timer whose cancellation raced the force-end must not resurrect
// the battle: the epoch guard absorbs the orphaned fire.
func TestOrphanedDeadlineFireIsNoOp(t *testing.T) {
	rig := newTestRig()

	view, _ := rig.svc.CreateBattle("brawl", 5, 1)
	rig.svc.JoinBattle(view.ID, "alice")
	rig.svc.JoinBattle(view.ID, "bob")
	rig.svc.ForceEnd(view.ID)

	rig.sched.fireForced(0)

	got, _ := rig.svc.Status(view.ID)
	if got.Status != models.BattleStatusCancelled {
		t.Fatalf("orphaned fire changed status to %s", got.Status)
	}
	if rig.sched.taskCount() != 1 {
		t.Fatalf("orphaned fire armed a new timer (%d tasks)", rig.sched.taskCount())
	}
}

func TestForceEndDuringCountdown(t *testing.T) {
	rig := newTestRig()

	view, _ := rig.svc.CreateBattle("brawl", 5, 1)
	rig.svc.JoinBattle(view.ID, "alice")
	rig.svc.JoinBattle(view.ID, "bob")
	rig.sched.fire(0) // starting

	got, err := rig.svc.ForceEnd(view.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.BattleStatusCancelled {
		t.Fatalf("status %s", got.Status)
	}

	rig.sched.fireForced(1) // orphaned countdown

	after, _ := rig.svc.Status(view.ID)
	if after.Status != models.BattleStatusCancelled {
		t.Fatalf("orphaned countdown moved battle to %s", after.Status)
	}
	if len(rig.store.savedRewards(view.ID)) != 0 {
		t.Fatal("cancelled battle produced rewards")
	}
	if len(rig.ledger.calls()) != 0 {
		t.Fatal("cancelled battle credited the ledger")
	}
}

// An attribute snapshot failure kills only this battle: cancelled with an
// internal-error reason, no rewards, process alive.
func TestAttributeFetchFailureCancelsBattle(t *testing.T) {
	rig := newTestRig()
	rig.dir.err = fmt.Errorf("economy service unreachable")

	view, _ := rig.svc.CreateBattle("brawl", 5, 1)
	rig.svc.JoinBattle(view.ID, "alice")
	rig.svc.JoinBattle(view.ID, "bob")
	rig.sched.fire(0)
	rig.sched.fire(1)

	got, err := rig.svc.Status(view.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.BattleStatusCancelled {
		t.Fatalf("status %s, want cancelled", got.Status)
	}
	if got.CancelReason != models.CancelReasonInternalError {
		t.Fatalf("cancel reason %s", got.CancelReason)
	}
	if len(rig.ledger.calls()) != 0 {
		t.Fatal("failed battle credited the ledger")
	}
}

func TestEventsCursor(t *testing.T) {
	rig := newTestRig()

	view, _ := rig.svc.CreateBattle("brawl", 5, 1)
	rig.svc.JoinBattle(view.ID, "alice")
	rig.svc.JoinBattle(view.ID, "bob")
	rig.sched.fire(0)
	rig.sched.fire(1)

	all, _, err := rig.svc.Events(view.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	rest, _, err := rig.svc.Events(view.ID, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rest) != len(all)-1 {
		t.Fatalf("cursor 1 returned %d events, log has %d", len(rest), len(all))
	}

	past, _, err := rig.svc.Events(view.ID, len(all)+10)
	if err != nil {
		t.Fatal(err)
	}
	if len(past) != 0 {
		t.Fatalf("out-of-range cursor returned %d events", len(past))
	}
}

func TestActiveBattle(t *testing.T) {
	rig := newTestRig()

	if _, ok := rig.svc.ActiveBattle(); ok {
		t.Fatal("active battle reported before create")
	}

	view, _ := rig.svc.CreateBattle("brawl", 5, 1)
	got, ok := rig.svc.ActiveBattle()
	if !ok || got.ID != view.ID {
		t.Fatalf("active battle %+v ok=%v", got, ok)
	}

	rig.svc.ForceEnd(view.ID)
	if _, ok := rig.svc.ActiveBattle(); ok {
		t.Fatal("active battle reported after force end")
	}
}

func TestStatusFallsBackToArchive(t *testing.T) {
	rig := newTestRig()

	rig.store.SaveTerminalBattle(&models.Battle{
		ID:       "archived-1",
		Name:     "old brawl",
		Status:   models.BattleStatusFinished,
		WinnerID: "carol",
	}, []models.Participant{{UserID: "carol", Position: 1}, {UserID: "dave", Position: 2}}, nil)

	got, err := rig.svc.Status("archived-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.BattleStatusFinished || got.WinnerID != "carol" || got.ParticipantCount != 2 {
		t.Fatalf("archived view %+v", got)
	}

	if _, err := rig.svc.Status("never-existed"); !errors.Is(err, ErrBattleNotFound) {
		t.Fatalf("got %v, want ErrBattleNotFound", err)
	}
}
