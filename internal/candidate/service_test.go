package candidate

import (
	"context"
	"errors"
	"testing"
	"time"

	"buddy-match/internal/model"
	"buddy-match/internal/storage"

	"gorm.io/datatypes"
)

func intPtr(v int) *int { return &v }

func TestServiceValidatesAndUpserts(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	svc := NewService(store)

	c, err := svc.Upsert(context.Background(), Request{
		ID:              "'u1",
		Name:            " Alice ",
		Email:           "alice@example.com",
		Age:             intPtr(28),
		Country:         "Vietnam",
		Region:          "Hanoi",
		Interests:       []string{"Hiking", " hiking", "", "food"},
		PreferredGender: "ANY",
		PreviousMatches: []string{"'u9"},
	})
	if err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if store.upserts != 1 {
		t.Fatalf("expected one upsert, got %d", store.upserts)
	}
	if c.ID != "u1" || c.Name != "Alice" {
		t.Fatalf("unexpected identity: %+v", c)
	}
	if !c.Active {
		t.Fatalf("expected candidate active by default")
	}
	if len(c.Interests) != 2 {
		t.Fatalf("expected deduped interests, got %v", c.Interests)
	}
	if len(c.PreviousMatches) != 1 || c.PreviousMatches[0] != "u9" {
		t.Fatalf("expected normalized previous matches, got %v", c.PreviousMatches)
	}
	if c.PreferredGender != model.PreferAny {
		t.Fatalf("expected preferred gender any, got %q", c.PreferredGender)
	}
}

func TestServiceRejectsInvalidInput(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	svc := NewService(store)

	cases := []Request{
		{Name: "A", Country: "VN"},
		{ID: "'", Name: "A", Country: "VN"},
		{ID: "u1", Country: "VN"},
		{ID: "u1", Name: "A"},
		{ID: "u1", Name: "A", Country: "VN", Email: "nope"},
		{ID: "u1", Name: "A", Country: "VN", Age: intPtr(0)},
		{ID: "u1", Name: "A", Country: "VN", PreferredAgeMin: 40, PreferredAgeMax: 30},
		{ID: "u1", Name: "A", Country: "VN", PreferredAgeMin: -1},
		{ID: "u1", Name: "A", Country: "VN", PreferredGender: "robot"},
		{ID: "u1", Name: "A", Country: "VN", PreviousMatches: []string{"'u1"}},
	}
	for i, req := range cases {
		if _, err := svc.Upsert(context.Background(), req); !errors.Is(err, ErrInvalid) {
			t.Fatalf("case %d expected ErrInvalid, got %v", i, err)
		}
	}
	if store.upserts != 0 {
		t.Fatalf("expected store not called on invalid input")
	}
}

func TestServicePreservesMatchHistory(t *testing.T) {
	t.Parallel()

	last := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	store := newStubStore()
	store.items["u1"] = model.Candidate{
		ID:              "u1",
		PreviousMatches: datatypes.JSONSlice[string]{"u2"},
		LastMatchTime:   &last,
		TotalMatches:    3,
	}
	svc := NewService(store)

	c, err := svc.Upsert(context.Background(), Request{ID: "u1", Name: "A", Country: "VN", PreviousMatches: []string{"u3", "'u2"}})
	if err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if c.TotalMatches != 3 || c.LastMatchTime == nil || !c.LastMatchTime.Equal(last) {
		t.Fatalf("expected match state preserved, got %+v", c)
	}
	if len(c.PreviousMatches) != 2 || c.PreviousMatches[0] != "u2" || c.PreviousMatches[1] != "u3" {
		t.Fatalf("expected merged history [u2 u3], got %v", c.PreviousMatches)
	}
}

func TestServicePropagatesStoreError(t *testing.T) {
	t.Parallel()

	store := newStubStore()
	store.getErr = errors.New("boom")
	svc := NewService(store)

	if _, err := svc.Upsert(context.Background(), Request{ID: "u1", Name: "A", Country: "VN"}); err == nil {
		t.Fatalf("expected error when lookup fails")
	}

	store.getErr = nil
	store.upsertErr = errors.New("disk full")
	if _, err := svc.Upsert(context.Background(), Request{ID: "u1", Name: "A", Country: "VN"}); err == nil {
		t.Fatalf("expected error when upsert fails")
	}
}

type stubStore struct {
	items     map[string]model.Candidate
	upserts   int
	getErr    error
	upsertErr error
}

func newStubStore() *stubStore {
	return &stubStore{items: make(map[string]model.Candidate)}
}

func (s *stubStore) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	c, ok := s.items[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (s *stubStore) UpsertCandidate(ctx context.Context, c *model.Candidate) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts++
	s.items[c.ID] = *c
	return nil
}
