package main

import (
	"context"
	"fmt"
	"math/rand/v2"

	"buddy-match/internal/candidate"
	"buddy-match/internal/model"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	seedCount int
	seedValue uint64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert synthetic candidates for local testing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		deps, cleanup, err := buildApp(cfg, logger)
		defer cleanup()
		if err != nil {
			return err
		}

		rng := rand.New(rand.NewPCG(seedValue, seedValue^0x9e3779b97f4a7c15))
		created, err := seedCandidates(cmd.Context(), deps.candidates, generateCandidates(seedCount, rng))
		logger.Info("seeded candidates", zap.Int("created", created))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d candidates\n", created)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	seedCmd.Flags().IntVarP(&seedCount, "count", "n", 50, "number of candidates to create")
	seedCmd.Flags().Uint64Var(&seedValue, "seed", 1, "random seed")
}

type candidateUpserter interface {
	Upsert(ctx context.Context, req candidate.Request) (model.Candidate, error)
}

var seedLocations = []struct {
	country string
	regions []string
}{
	{"Vietnam", []string{"Hanoi", "Ho Chi Minh City", "Da Nang"}},
	{"Japan", []string{"Tokyo", "Osaka", "Kyoto"}},
	{"Thailand", []string{"Bangkok", "Chiang Mai"}},
	{"Singapore", []string{""}},
}

var (
	seedInterests    = []string{"hiking", "food", "photography", "museums", "beaches", "nightlife", "music", "history"}
	seedHobbies      = []string{"reading", "cycling", "cooking", "surfing", "yoga", "gaming", "painting"}
	seedTraits       = []string{"outgoing", "calm", "curious", "organized", "spontaneous"}
	seedDestinations = []string{"Bali", "Seoul", "Lisbon", "Kyoto", "Hoi An", "Reykjavik", "Cusco"}
	seedNames        = []string{"An", "Binh", "Chi", "Dung", "Hana", "Kenji", "Mai", "Nam", "Ploy", "Somchai", "Yuki", "Wei"}
)

// generateCandidates 生成随机候选人，同一 rng 种子输出可复现（ID 除外）。
func generateCandidates(n int, rng *rand.Rand) []candidate.Request {
	out := make([]candidate.Request, 0, n)
	for i := 0; i < n; i++ {
		loc := seedLocations[rng.IntN(len(seedLocations))]
		age := 20 + rng.IntN(25)
		gender := "female"
		if rng.IntN(2) == 0 {
			gender = "male"
		}
		prefs := []string{"any", "any", "male", "female"}
		out = append(out, candidate.Request{
			ID:                uuid.NewString(),
			Name:              fmt.Sprintf("%s %d", seedNames[rng.IntN(len(seedNames))], i+1),
			Age:               &age,
			Gender:            gender,
			Country:           loc.country,
			Region:            loc.regions[rng.IntN(len(loc.regions))],
			Interests:         pick(rng, seedInterests, 1+rng.IntN(4)),
			Hobbies:           pick(rng, seedHobbies, rng.IntN(3)),
			PersonalityTraits: pick(rng, seedTraits, 1+rng.IntN(2)),
			Destinations:      pick(rng, seedDestinations, rng.IntN(3)),
			PreferredAgeMin:   max(18, age-10),
			PreferredAgeMax:   age + 10,
			PreferredGender:   prefs[rng.IntN(len(prefs))],
		})
	}
	return out
}

func pick(rng *rand.Rand, from []string, n int) []string {
	n = min(n, len(from))
	idx := rng.Perm(len(from))[:n]
	out := make([]string, 0, n)
	for _, i := range idx {
		out = append(out, from[i])
	}
	return out
}

// seedCandidates 逐条写入，遇到错误立即返回已写入条数。
func seedCandidates(ctx context.Context, svc candidateUpserter, reqs []candidate.Request) (int, error) {
	created := 0
	for _, req := range reqs {
		if _, err := svc.Upsert(ctx, req); err != nil {
			return created, fmt.Errorf("seed candidate %s: %w", req.ID, err)
		}
		created++
	}
	return created, nil
}
