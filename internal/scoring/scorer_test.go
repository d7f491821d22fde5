package scoring

import (
	"testing"

	"buddy-match/internal/model"
)

func intPtr(v int) *int { return &v }

func TestScoreSameRegionSharedInterestCloseAge(t *testing.T) {
	t.Parallel()

	x := model.Candidate{ID: "x", Country: "Vietnam", Region: "Da Nang", Interests: []string{"Travel", "Art"}, Age: intPtr(25)}
	y := model.Candidate{ID: "y", Country: "Vietnam", Region: "Da Nang", Interests: []string{"Travel", "Music"}, Age: intPtr(26)}

	total, factors := Score(x, y)
	if total != 6.8 {
		t.Fatalf("expected total 6.8, got %v", total)
	}

	want := []model.Factor{
		{Name: FactorRegion, Contribution: 4.0},
		{Name: FactorInterests, Contribution: 1.0},
		{Name: FactorAge, Contribution: 1.8},
	}
	if len(factors) != len(want) {
		t.Fatalf("expected %d factors, got %+v", len(want), factors)
	}
	for i := range want {
		if factors[i] != want[i] {
			t.Fatalf("factor %d: expected %+v, got %+v", i, want[i], factors[i])
		}
	}
}

func TestScoreLocationTiers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b model.Candidate
		want float64
	}{
		{
			name: "same region",
			a:    model.Candidate{Country: "VN", Region: "Hue"},
			b:    model.Candidate{Country: "VN", Region: "Hue"},
			want: 4.0,
		},
		{
			name: "same country different region",
			a:    model.Candidate{Country: "VN", Region: "Hue"},
			b:    model.Candidate{Country: "VN", Region: "Hanoi"},
			want: 2.0,
		},
		{
			name: "same country empty regions",
			a:    model.Candidate{Country: "VN"},
			b:    model.Candidate{Country: "VN"},
			want: 2.0,
		},
		{
			name: "different country",
			a:    model.Candidate{Country: "VN", Region: "Hue"},
			b:    model.Candidate{Country: "TH", Region: "Phuket"},
			want: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			total, factors := Score(tt.a, tt.b)
			if total != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, total)
			}
			if len(factors) != 1 || factors[0].Name != FactorRegion {
				t.Fatalf("expected only region factor, got %+v", factors)
			}
		})
	}
}

func TestScoreIsCommutativeAndDeterministic(t *testing.T) {
	t.Parallel()

	a := model.Candidate{
		Country:      "VN",
		Region:       "Hue",
		Interests:    []string{"food", "art", "music"},
		Hobbies:      []string{"hiking", "chess"},
		Destinations: []string{"Sapa", "Hoi An"},
		Age:          intPtr(31),
	}
	b := model.Candidate{
		Country:      "VN",
		Region:       "Hanoi",
		Interests:    []string{"Music", "food"},
		Hobbies:      []string{"chess"},
		Destinations: []string{"hoi an", "Sapa", "Ha Long"},
		Age:          intPtr(44),
	}

	ab, fab := Score(a, b)
	ba, fba := Score(b, a)
	if ab != ba {
		t.Fatalf("expected commutative score, got %v vs %v", ab, ba)
	}
	if len(fab) != len(fba) {
		t.Fatalf("expected same factor count, got %d vs %d", len(fab), len(fba))
	}
	// region 2 + interests 2 + hobbies 0.5 + destinations 1 + age 0 (diff 13)
	if ab != 5.5 {
		t.Fatalf("expected 5.5, got %v", ab)
	}
	again, _ := Score(a, b)
	if again != ab {
		t.Fatalf("expected deterministic score")
	}
}

func TestScoreOmitsAgeWhenUnknown(t *testing.T) {
	t.Parallel()

	a := model.Candidate{Country: "VN", Age: intPtr(30)}
	b := model.Candidate{Country: "VN"}

	_, factors := Score(a, b)
	for _, f := range factors {
		if f.Name == FactorAge {
			t.Fatalf("age factor must be omitted when an age is missing")
		}
	}
}

func TestHundredths(t *testing.T) {
	t.Parallel()

	if Hundredths(0.1+0.2) != Hundredths(0.3) {
		t.Fatalf("expected float noise to collapse to the same hundredth")
	}
}
