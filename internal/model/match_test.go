package model

import (
	"errors"
	"testing"
	"time"
)

func TestNewMatchOrdersPairAndSetsExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	m := NewMatch("'zed", "amy", 6.8, nil, now, 0)

	if m.CandidateA != "amy" || m.CandidateB != "zed" {
		t.Fatalf("expected ordered normalized pair, got %s/%s", m.CandidateA, m.CandidateB)
	}
	if m.Status != MatchStatusPending {
		t.Fatalf("expected pending, got %s", m.Status)
	}
	if !m.ExpiresAt.Equal(now.Add(7 * 24 * time.Hour)) {
		t.Fatalf("unexpected expiry %v", m.ExpiresAt)
	}
	if m.ID == "" {
		t.Fatalf("expected id to be generated")
	}
}

func TestApplyActionTransitions(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name    string
		actions [][2]string
		want    MatchStatus
	}{
		{name: "one like stays pending", actions: [][2]string{{"a", "liked"}}, want: MatchStatusPending},
		{name: "both like", actions: [][2]string{{"a", "liked"}, {"b", "liked"}}, want: MatchStatusMutualLike},
		{name: "pass declines", actions: [][2]string{{"b", "passed"}}, want: MatchStatusDeclined},
		{name: "like then pass", actions: [][2]string{{"a", "liked"}, {"b", "passed"}}, want: MatchStatusDeclined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewMatch("a", "b", 1, nil, now, 0)
			for _, act := range tt.actions {
				if err := m.ApplyAction(act[0], Action(act[1]), now); err != nil {
					t.Fatalf("ApplyAction error: %v", err)
				}
			}
			if m.Status != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, m.Status)
			}
		})
	}
}

func TestApplyActionRejectsClosedAndStrangers(t *testing.T) {
	t.Parallel()

	now := time.Now()
	m := NewMatch("a", "b", 1, nil, now, 0)
	if err := m.ApplyAction("c", ActionLiked, now); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("expected ErrNotParticipant, got %v", err)
	}
	if err := m.ApplyAction("a", Action("maybe"), now); !errors.Is(err, ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
	if err := m.ApplyAction("'a", ActionPassed, now); err != nil {
		t.Fatalf("expected legacy id to be accepted, got %v", err)
	}
	if err := m.ApplyAction("b", ActionLiked, now); !errors.Is(err, ErrMatchClosed) {
		t.Fatalf("expected ErrMatchClosed, got %v", err)
	}
}

func TestExpireIsIdempotent(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMatch("a", "b", 1, nil, created, time.Hour)

	if m.Expire(created.Add(30 * time.Minute)) {
		t.Fatalf("expected match not yet expired")
	}
	if !m.Expire(created.Add(2 * time.Hour)) {
		t.Fatalf("expected match to expire")
	}
	if m.Expire(created.Add(3 * time.Hour)) {
		t.Fatalf("expected second expire to be a no-op")
	}

	resolved := NewMatch("a", "c", 1, nil, created, time.Hour)
	resolved.Status = MatchStatusMutualLike
	if resolved.Expire(created.Add(2 * time.Hour)) {
		t.Fatalf("resolved matches must not expire")
	}
}

func TestCandidateNormalizeAndPreferences(t *testing.T) {
	t.Parallel()

	c := Candidate{ID: "'u1", PreviousMatches: []string{"'u2", "u3", "'"}, PreferredAgeMin: 20, PreferredAgeMax: 30, PreferredGender: "Female"}
	c.Normalize()

	if c.ID != "u1" {
		t.Fatalf("expected normalized id, got %s", c.ID)
	}
	if len(c.PreviousMatches) != 2 || !c.HasMatched("u2") || !c.HasMatched("'u3") {
		t.Fatalf("unexpected previous matches %v", c.PreviousMatches)
	}
	if !c.AcceptsAge(20) || !c.AcceptsAge(30) || c.AcceptsAge(31) {
		t.Fatalf("age range bounds not inclusive")
	}
	if !c.AcceptsGender("female") || c.AcceptsGender("male") || c.AcceptsGender("") {
		t.Fatalf("gender preference not enforced")
	}

	open := Candidate{PreferredAgeMin: 18}
	if !open.AcceptsAge(80) || !open.AcceptsGender("male") {
		t.Fatalf("expected zero max and empty preference to be unbounded")
	}
}
