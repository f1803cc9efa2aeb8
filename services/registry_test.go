package services

import (
	"errors"
	"testing"
	"time"

	"battle-event-system/models"
)

func newState(id string, status models.BattleStatus) *battleState {
	return &battleState{
		battle: models.Battle{ID: id, Status: status},
		roster: NewRoster(),
	}
}

func TestRegistrySingleLiveBattle(t *testing.T) {
	reg := NewBattleRegistry()

	if err := reg.Allocate(newState("b1", models.BattleStatusRegistration)); err != nil {
		t.Fatal(err)
	}
	err := reg.Allocate(newState("b2", models.BattleStatusRegistration))
	if !errors.Is(err, ErrBattleConflict) {
		t.Fatalf("got %v, want ErrBattleConflict", err)
	}
	if reg.Live().battle.ID != "b1" {
		t.Fatal("conflicting allocate replaced the live battle")
	}
}

func TestRegistryAllocateAfterRelease(t *testing.T) {
	reg := NewBattleRegistry()
	now := time.Now()

	st := newState("b1", models.BattleStatusRegistration)
	if err := reg.Allocate(st); err != nil {
		t.Fatal(err)
	}
	st.battle.Status = models.BattleStatusCancelled
	reg.Release("b1", now)

	if err := reg.Allocate(newState("b2", models.BattleStatusRegistration)); err != nil {
		t.Fatalf("allocate after release: %v", err)
	}
	if reg.Recent("b1", now) == nil {
		t.Fatal("released battle not retained")
	}
	if reg.Find("b1") != nil {
		t.Fatal("released battle still reported live")
	}
}

func TestRegistryRetentionExpires(t *testing.T) {
	reg := NewBattleRegistry()
	now := time.Now()

	st := newState("b1", models.BattleStatusFinished)
	reg.Allocate(st)
	reg.Release("b1", now)

	if reg.Recent("b1", now.Add(terminalRetention-time.Minute)) == nil {
		t.Fatal("battle pruned inside retention window")
	}
	if reg.Recent("b1", now.Add(terminalRetention+time.Minute)) != nil {
		t.Fatal("battle retained past retention window")
	}
}

func TestRegistryCooldown(t *testing.T) {
	reg := NewBattleRegistry()
	now := time.Now()

	if rem := reg.CooldownRemaining("u1", now); rem > 0 {
		t.Fatalf("fresh user has cooldown %s", rem)
	}

	reg.RecordJoin("u1", now)
	if rem := reg.CooldownRemaining("u1", now.Add(time.Minute)); rem != JoinCooldown-time.Minute {
		t.Fatalf("cooldown remaining %s", rem)
	}
	if rem := reg.CooldownRemaining("u1", now.Add(JoinCooldown)); rem > 0 {
		t.Fatalf("cooldown %s after full window", rem)
	}
	if rem := reg.CooldownRemaining("u2", now); rem > 0 {
		t.Fatal("cooldown leaked to another user")
	}
}
