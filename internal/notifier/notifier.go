package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"buddy-match/internal/model"
	"buddy-match/internal/storage"

	"go.uber.org/zap"
)

// Message 表示发给单个候选人的通知内容。
type Message struct {
	MatchID string
	Subject string
	Body    string
}

// Notifier 向单个候选人投递通知，失败不影响匹配结果。
type Notifier interface {
	Notify(ctx context.Context, candidateID string, msg Message) error
}

// Store 通知所需的存储接口。
type Store interface {
	GetCandidate(ctx context.Context, id string) (*model.Candidate, error)
	MarkNotified(ctx context.Context, matchID, candidateID string) error
	ListMatches(ctx context.Context, query storage.MatchQuery) ([]model.Match, error)
}

// PendingBatch 单次补发积压通知的最大条数。
const PendingBatch = 200

// DispatchResult 汇总一次投递。
type DispatchResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Dispatcher 为匹配通知双方。每一方单独记录是否已送达，重试只补发未送达的一方。
type Dispatcher struct {
	store  Store
	notif  Notifier
	logger *zap.Logger
}

// NewDispatcher 创建 Dispatcher。
func NewDispatcher(store Store, n Notifier, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{store: store, notif: n, logger: logger}
}

// DispatchMatches 逐条投递，单条失败只记日志与计数。
func (d *Dispatcher) DispatchMatches(ctx context.Context, matches []model.Match) DispatchResult {
	var res DispatchResult
	if d == nil || d.notif == nil {
		return res
	}
	for _, m := range matches {
		if m.NotificationSent {
			continue
		}
		if err := d.dispatch(ctx, m); err != nil {
			res.Failed++
			d.logger.Warn("notify match failed", zap.String("match_id", m.ID), zap.Error(err))
			continue
		}
		res.Sent++
	}
	return res
}

// DispatchPending 补发仍为 pending 且尚未通知到双方的匹配，按创建时间从旧到新。
func (d *Dispatcher) DispatchPending(ctx context.Context) DispatchResult {
	if d == nil || d.notif == nil {
		return DispatchResult{}
	}
	backlog, err := d.store.ListMatches(ctx, storage.MatchQuery{
		Status:     model.MatchStatusPending,
		Unnotified: true,
		Limit:      PendingBatch,
	})
	if err != nil {
		d.logger.Warn("list unnotified matches failed", zap.Error(err))
		return DispatchResult{}
	}
	return d.DispatchMatches(ctx, backlog)
}

func (d *Dispatcher) dispatch(ctx context.Context, m model.Match) error {
	a, err := d.store.GetCandidate(ctx, m.CandidateA)
	if err != nil {
		return fmt.Errorf("load %s: %w", m.CandidateA, err)
	}
	b, err := d.store.GetCandidate(ctx, m.CandidateB)
	if err != nil {
		return fmt.Errorf("load %s: %w", m.CandidateB, err)
	}

	return errors.Join(
		d.notifySide(ctx, m, m.NotifiedA, *a, *b),
		d.notifySide(ctx, m, m.NotifiedB, *b, *a),
	)
}

func (d *Dispatcher) notifySide(ctx context.Context, m model.Match, done bool, to, partner model.Candidate) error {
	if done {
		return nil
	}
	if err := d.notif.Notify(ctx, to.ID, buildMessage(m, partner)); err != nil {
		return fmt.Errorf("notify %s: %w", to.ID, err)
	}
	return d.store.MarkNotified(ctx, m.ID, to.ID)
}

func buildMessage(m model.Match, partner model.Candidate) Message {
	name := strings.TrimSpace(partner.Name)
	if name == "" {
		name = partner.ID
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("You have a new travel buddy suggestion: %s\n", name))
	if partner.Region != "" {
		b.WriteString(fmt.Sprintf("Based in %s, %s\n", partner.Region, partner.Country))
	} else {
		b.WriteString(fmt.Sprintf("Based in %s\n", partner.Country))
	}
	b.WriteString(fmt.Sprintf("Compatibility score: %.2f\n", m.Score))
	for _, f := range m.Factors {
		b.WriteString(fmt.Sprintf("- %s: +%.2f\n", f.Name, f.Contribution))
	}
	b.WriteString(fmt.Sprintf("This suggestion expires on %s.\n", m.ExpiresAt.Format("2006-01-02")))
	return Message{MatchID: m.ID, Subject: "New travel buddy match", Body: b.String()}
}
