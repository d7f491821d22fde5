// Package pairing 实现按分数降序的贪心一对一配对。
//
// 结果不是全局最优：先枚举所有可用的候选对并打分，按分数降序（同分按发现顺序）
// 依次分配未被占用的双方，低于阈值后停止扫描。
package pairing

import (
	"sort"

	"buddy-match/internal/model"
	"buddy-match/internal/scoring"
)

// ScoreFunc 计算一对候选人的兼容度。
type ScoreFunc func(a, b model.Candidate) (float64, []model.Factor)

// FilterFunc 判断一对候选人能否参与配对。
type FilterFunc func(a, b model.Candidate) bool

// Pair 表示一个被接受的配对。
type Pair struct {
	A       model.Candidate
	B       model.Candidate
	Score   float64
	Factors []model.Factor
}

// Engine 组合打分与可行性过滤。
type Engine struct {
	score  ScoreFunc
	usable FilterFunc
}

// NewEngine 使用默认的打分与过滤规则。
func NewEngine() *Engine {
	return &Engine{score: scoring.Score, usable: scoring.Usable}
}

type scoredPair struct {
	a, b      int
	hundredth int64
	score     float64
	factors   []model.Factor
}

// Pair 返回 candidateID → partnerID 的双向映射。
func (e *Engine) Pair(candidates []model.Candidate, minScore float64) map[string]string {
	assigned := make(map[string]string)
	for _, p := range e.Match(candidates, minScore) {
		assigned[p.A.ID] = p.B.ID
		assigned[p.B.ID] = p.A.ID
	}
	return assigned
}

// Match 返回被接受的配对列表，每个无序对只出现一次，按接受顺序排列。
func (e *Engine) Match(candidates []model.Candidate, minScore float64) []Pair {
	pool := prepare(candidates)
	if len(pool) < 2 {
		return nil
	}

	pairs := make([]scoredPair, 0, len(pool)*(len(pool)-1)/2)
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			if !e.usable(pool[i], pool[j]) {
				continue
			}
			score, factors := e.score(pool[i], pool[j])
			pairs = append(pairs, scoredPair{a: i, b: j, hundredth: scoring.Hundredths(score), score: score, factors: factors})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].hundredth > pairs[j].hundredth
	})

	threshold := scoring.Hundredths(minScore)
	taken := make([]bool, len(pool))
	var accepted []Pair
	for _, p := range pairs {
		if p.hundredth < threshold {
			break
		}
		if taken[p.a] || taken[p.b] {
			continue
		}
		taken[p.a], taken[p.b] = true, true
		accepted = append(accepted, Pair{A: pool[p.a], B: pool[p.b], Score: p.score, Factors: p.factors})
	}
	return accepted
}

// prepare 规范化 ID、去重、剔除 skip，并按 ID 排序以固定发现顺序。
func prepare(candidates []model.Candidate) []model.Candidate {
	pool := make([]model.Candidate, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		c.Normalize()
		if c.ID == "" || c.Skip {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		pool = append(pool, c)
	}
	sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
	return pool
}
