package services

import (
	"errors"
	"testing"
	"time"
)

func TestRosterAddKeepsJoinOrder(t *testing.T) {
	r := NewRoster()
	now := time.Now()

	for _, id := range []string{"c", "a", "b"} {
		if _, err := r.Add("battle-1", id, now); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	got := r.UserIDs()
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("join order %v, want %v", got, want)
		}
	}
	if r.Size() != 3 {
		t.Fatalf("size %d, want 3", r.Size())
	}
}

func TestRosterRejectsDuplicate(t *testing.T) {
	r := NewRoster()
	now := time.Now()

	if _, err := r.Add("battle-1", "a", now); err != nil {
		t.Fatal(err)
	}
	_, err := r.Add("battle-1", "a", now)
	if !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("got %v, want ErrAlreadyJoined", err)
	}
	if r.Size() != 1 {
		t.Fatalf("duplicate changed roster size to %d", r.Size())
	}
}

func TestRosterRejectsJoinAfterClose(t *testing.T) {
	r := NewRoster()
	now := time.Now()
	r.Add("battle-1", "a", now)
	r.Add("battle-1", "b", now)

	final := r.Close()
	if len(final) != 2 {
		t.Fatalf("final roster size %d", len(final))
	}

	_, err := r.Add("battle-1", "c", now)
	if !errors.Is(err, ErrRegistrationClosed) {
		t.Fatalf("got %v, want ErrRegistrationClosed", err)
	}
	if r.Size() != 2 {
		t.Fatal("closed roster grew")
	}
}

func TestRosterParticipantsReturnsCopy(t *testing.T) {
	r := NewRoster()
	r.Add("battle-1", "a", time.Now())

	snapshot := r.Participants()
	snapshot[0].UserID = "tampered"

	if r.Participants()[0].UserID != "a" {
		t.Fatal("snapshot mutation leaked into roster")
	}
}
