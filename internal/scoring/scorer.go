package scoring

import (
	"math"
	"strings"

	"buddy-match/internal/model"
)

// 因子名称，顺序即输出顺序。
const (
	FactorRegion       = "region"
	FactorInterests    = "interests"
	FactorHobbies      = "hobbies"
	FactorDestinations = "destinations"
	FactorAge          = "age"
)

const (
	sameRegionWeight   = 4.0
	sameCountryWeight  = 2.0
	otherCountryWeight = 0.5
	interestWeight     = 1.0
	hobbyWeight        = 0.5
	destinationWeight  = 0.5
	ageBase            = 2.0
	ageStep            = 5.0
)

// Score 计算两位候选人的兼容度，结果与参数顺序无关。
// 每项贡献保留两位小数，总分为各项之和再取两位小数。
func Score(a, b model.Candidate) (float64, []model.Factor) {
	factors := make([]model.Factor, 0, 5)
	factors = append(factors, model.Factor{Name: FactorRegion, Contribution: round2(locationScore(a, b))})

	if n := overlap(a.Interests, b.Interests); n > 0 {
		factors = append(factors, model.Factor{Name: FactorInterests, Contribution: round2(interestWeight * float64(n))})
	}
	if n := overlap(a.Hobbies, b.Hobbies); n > 0 {
		factors = append(factors, model.Factor{Name: FactorHobbies, Contribution: round2(hobbyWeight * float64(n))})
	}
	if n := overlap(a.Destinations, b.Destinations); n > 0 {
		factors = append(factors, model.Factor{Name: FactorDestinations, Contribution: round2(destinationWeight * float64(n))})
	}
	if a.Age != nil && b.Age != nil {
		diff := math.Abs(float64(*a.Age - *b.Age))
		factors = append(factors, model.Factor{Name: FactorAge, Contribution: round2(math.Max(0, ageBase-diff/ageStep))})
	}

	var total float64
	for _, f := range factors {
		total += f.Contribution
	}
	return round2(total), factors
}

// Hundredths 将分数换算为整数百分位，排序与阈值比较都基于它。
func Hundredths(score float64) int64 {
	return int64(math.Round(score * 100))
}

func locationScore(a, b model.Candidate) float64 {
	regionA, regionB := strings.TrimSpace(a.Region), strings.TrimSpace(b.Region)
	if regionA != "" && strings.EqualFold(regionA, regionB) {
		return sameRegionWeight
	}
	if strings.EqualFold(strings.TrimSpace(a.Country), strings.TrimSpace(b.Country)) {
		return sameCountryWeight
	}
	return otherCountryWeight
}

func overlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		if key := setKey(v); key != "" {
			set[key] = struct{}{}
		}
	}
	seen := make(map[string]struct{}, len(b))
	n := 0
	for _, v := range b {
		key := setKey(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := set[key]; ok {
			n++
		}
	}
	return n
}

func setKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
