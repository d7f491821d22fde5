package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"buddy-match/internal/candidate"
	"buddy-match/internal/model"
)

func candidateRequest(id string, age *int) candidate.Request {
	return candidate.Request{
		ID:        id,
		Name:      "Traveler " + id,
		Age:       age,
		Country:   "Vietnam",
		Region:    "Hanoi",
		Interests: []string{"hiking", "food"},
	}
}

func TestGenerateCandidatesAreValid(t *testing.T) {
	t.Parallel()

	reqs := generateCandidates(40, rand.New(rand.NewPCG(7, 7)))
	if len(reqs) != 40 {
		t.Fatalf("expected 40 candidates, got %d", len(reqs))
	}
	seen := make(map[string]bool)
	for _, req := range reqs {
		if seen[req.ID] {
			t.Fatalf("duplicate id %s", req.ID)
		}
		seen[req.ID] = true
		if req.PreferredAgeMin > req.PreferredAgeMax {
			t.Fatalf("invalid age range %+v", req)
		}
		if req.Country == "" || req.Name == "" || len(req.Interests) == 0 {
			t.Fatalf("incomplete candidate %+v", req)
		}
	}
}

func TestSeedCandidatesStopsOnError(t *testing.T) {
	t.Parallel()

	svc := &stubUpserter{failAt: 2}
	reqs := []candidate.Request{candidateRequest("a", nil), candidateRequest("b", nil), candidateRequest("c", nil)}

	created, err := seedCandidates(context.Background(), svc, reqs)
	if err == nil {
		t.Fatalf("expected error")
	}
	if created != 2 {
		t.Fatalf("expected 2 created before failure, got %d", created)
	}
}

type stubUpserter struct {
	calls  int
	failAt int
}

func (s *stubUpserter) Upsert(ctx context.Context, req candidate.Request) (model.Candidate, error) {
	if s.calls == s.failAt {
		return model.Candidate{}, errors.New("boom")
	}
	s.calls++
	return model.Candidate{ID: req.ID}, nil
}
