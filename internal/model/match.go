package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MatchStatus 表示匹配记录的生命周期状态。
type MatchStatus string

const (
	MatchStatusPending    MatchStatus = "pending"
	MatchStatusMutualLike MatchStatus = "mutual_like"
	MatchStatusDeclined   MatchStatus = "declined"
	MatchStatusExpired    MatchStatus = "expired"
)

// Terminal 终态不再迁移。
func (s MatchStatus) Terminal() bool {
	return s == MatchStatusMutualLike || s == MatchStatusDeclined || s == MatchStatusExpired
}

// Action 表示单个候选人对匹配的操作。
type Action string

const (
	ActionNone   Action = ""
	ActionLiked  Action = "liked"
	ActionPassed Action = "passed"
)

// DefaultMatchTTL 匹配记录默认有效期。
const DefaultMatchTTL = 7 * 24 * time.Hour

var (
	ErrInvalidAction  = errors.New("invalid action")
	ErrMatchClosed    = errors.New("match is no longer pending")
	ErrNotParticipant = errors.New("candidate is not part of this match")
)

// Factor 记录单个评分因子的贡献。
type Factor struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
}

// Match 表示一次配对提议
// - CandidateA/CandidateB: 规范化后按字典序存储，(a,b) 唯一
// - ActionA/ActionB: 双方各自的 like/pass
// - ExpiresAt: 创建时间 + TTL，过期仍 pending 时由清理任务置为 expired
// - NotifiedA/NotifiedB: 各自是否已收到通知，双方都收到后 NotificationSent 为 true

type Match struct {
	ID               string                      `gorm:"primaryKey;size:36" json:"id"`
	CandidateA       string                      `gorm:"size:128;not null;uniqueIndex:idx_match_pair,priority:1" json:"candidate_a"`
	CandidateB       string                      `gorm:"size:128;not null;uniqueIndex:idx_match_pair,priority:2" json:"candidate_b"`
	Score            float64                     `json:"score"`
	Factors          datatypes.JSONSlice[Factor] `json:"factors"`
	Status           MatchStatus                 `gorm:"size:16;not null;index:idx_match_status_expires,priority:1" json:"status"`
	ActionA          Action                      `gorm:"size:16" json:"action_a"`
	ActionB          Action                      `gorm:"size:16" json:"action_b"`
	CreatedAt        time.Time                   `gorm:"index" json:"created_at"`
	ExpiresAt        time.Time                   `gorm:"index:idx_match_status_expires,priority:2" json:"expires_at"`
	LastActionAt     *time.Time                  `json:"last_action_at,omitempty"`
	NotifiedA        bool                        `json:"notified_a"`
	NotifiedB        bool                        `json:"notified_b"`
	NotificationSent bool                        `gorm:"index" json:"notification_sent"`
}

// NewMatch 创建一条 pending 状态的匹配记录，候选人 ID 按字典序固定顺序。
func NewMatch(a, b string, score float64, factors []Factor, now time.Time, ttl time.Duration) Match {
	a, b = OrderedPair(a, b)
	if ttl <= 0 {
		ttl = DefaultMatchTTL
	}
	if score < 0 {
		score = 0
	}
	return Match{
		ID:         uuid.NewString(),
		CandidateA: a,
		CandidateB: b,
		Score:      score,
		Factors:    datatypes.JSONSlice[Factor](factors),
		Status:     MatchStatusPending,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

// OrderedPair 规范化并按字典序返回一对 ID。
func OrderedPair(a, b string) (string, string) {
	a, b = NormalizeID(a), NormalizeID(b)
	if b < a {
		return b, a
	}
	return a, b
}

// Partner 返回 id 在本记录中的对方。
func (m Match) Partner(id string) (string, bool) {
	switch NormalizeID(id) {
	case m.CandidateA:
		return m.CandidateB, true
	case m.CandidateB:
		return m.CandidateA, true
	}
	return "", false
}

// ApplyAction 记录一方的操作并推进状态：双方 liked → mutual_like，任一方 passed → declined。
func (m *Match) ApplyAction(candidateID string, action Action, now time.Time) error {
	if action != ActionLiked && action != ActionPassed {
		return ErrInvalidAction
	}
	if m.Status != MatchStatusPending {
		return ErrMatchClosed
	}
	switch NormalizeID(candidateID) {
	case m.CandidateA:
		m.ActionA = action
	case m.CandidateB:
		m.ActionB = action
	default:
		return ErrNotParticipant
	}
	m.LastActionAt = &now

	switch {
	case m.ActionA == ActionPassed || m.ActionB == ActionPassed:
		m.Status = MatchStatusDeclined
	case m.ActionA == ActionLiked && m.ActionB == ActionLiked:
		m.Status = MatchStatusMutualLike
	}
	return nil
}

// Expire 对已过期的 pending 记录置为 expired，返回是否发生变化。
func (m *Match) Expire(now time.Time) bool {
	if m.Status != MatchStatusPending || now.Before(m.ExpiresAt) {
		return false
	}
	m.Status = MatchStatusExpired
	return true
}

// Notified 判断 candidateID 一方是否已收到通知。
func (m Match) Notified(candidateID string) bool {
	switch NormalizeID(candidateID) {
	case m.CandidateA:
		return m.NotifiedA
	case m.CandidateB:
		return m.NotifiedB
	}
	return false
}

// MarkNotified 记录一方已收到通知，双方都收到时置 NotificationSent。
func (m *Match) MarkNotified(candidateID string) error {
	switch NormalizeID(candidateID) {
	case m.CandidateA:
		m.NotifiedA = true
	case m.CandidateB:
		m.NotifiedB = true
	default:
		return ErrNotParticipant
	}
	m.NotificationSent = m.NotifiedA && m.NotifiedB
	return nil
}
