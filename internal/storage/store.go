package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"buddy-match/internal/model"

	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound 记录不存在。
var ErrNotFound = errors.New("record not found")

// Config 数据库配置，driver 支持 sqlite（默认）与 mysql。
type Config struct {
	Driver string `yaml:"driver" json:"driver"`
	Path   string `yaml:"path" json:"path"`
	DSN    string `yaml:"dsn" json:"dsn"`
}

// Store 封装候选人与匹配记录的持久化，单条记录的写入是原子的。
type Store struct {
	db *gorm.DB
}

// MatchQuery 描述匹配记录筛选条件。
type MatchQuery struct {
	Status model.MatchStatus
	Limit  int
	// Unnotified 仅返回尚未通知到双方的记录，按创建时间正序，便于补发积压通知。
	Unnotified bool
}

// Counts 汇总统计所需的计数。
type Counts struct {
	TotalCandidates  int64
	ActiveCandidates int64
	TotalMatches     int64
	PendingMatches   int64
	MatchesSince     int64
	AverageScore     float64
}

// NewStore 创建 SQLite Store 并自动迁移数据表。
func NewStore(dbPath string) (*Store, error) {
	return Open(Config{Driver: "sqlite", Path: dbPath})
}

// Open 按配置打开数据库并自动迁移。
func Open(cfg Config) (*Store, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = "matches.db"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
		dialector = sqlite.Open(path)
	case "mysql":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("mysql driver requires dsn")
		}
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}
	if err := db.AutoMigrate(&model.Candidate{}, &model.Match{}); err != nil {
		return nil, fmt.Errorf("auto migrate models: %w", err)
	}
	return &Store{db: db}, nil
}

// Close 关闭底层数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// UpsertCandidate 写入候选人，主键冲突时整体更新。
func (s *Store) UpsertCandidate(ctx context.Context, c *model.Candidate) error {
	c.Normalize()
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(c)
	if tx.Error != nil {
		return fmt.Errorf("upsert candidate %s: %w", c.ID, tx.Error)
	}
	return nil
}

// GetCandidate 根据 ID 获取候选人。
func (s *Store) GetCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	var c model.Candidate
	if err := s.db.WithContext(ctx).First(&c, "id = ?", model.NormalizeID(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get candidate: %w", err)
	}
	c.Normalize()
	return &c, nil
}

// ListEligibleCandidates 返回 active 且不在冷却期内的候选人，按 ID 升序。
func (s *Store) ListEligibleCandidates(ctx context.Context, cutoff time.Time) ([]model.Candidate, error) {
	var cands []model.Candidate
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Where("last_match_time IS NULL OR last_match_time < ?", cutoff.UTC()).
		Order("id ASC").
		Find(&cands).Error; err != nil {
		return nil, fmt.Errorf("list eligible candidates: %w", err)
	}
	for i := range cands {
		cands[i].Normalize()
	}
	return cands, nil
}

// CreateMatch 写入匹配记录，同一无序对重复写入会违反唯一索引。
func (s *Store) CreateMatch(ctx context.Context, m *model.Match) error {
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("create match %s/%s: %w", m.CandidateA, m.CandidateB, err)
	}
	return nil
}

// ApplyMatchToCandidate 在事务中追加历史匹配、刷新匹配时间并累加计数。
func (s *Store) ApplyMatchToCandidate(ctx context.Context, candidateID, partnerID string, at time.Time) error {
	candidateID, partnerID = model.NormalizeID(candidateID), model.NormalizeID(partnerID)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c model.Candidate
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, "id = ?", candidateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		c.Normalize()
		prev := c.PreviousMatches
		if !slices.Contains(prev, partnerID) {
			prev = append(prev, partnerID)
		}
		at := at.UTC()
		return tx.Model(&model.Candidate{}).Where("id = ?", candidateID).Updates(map[string]any{
			"previous_matches": datatypes.JSONSlice[string](prev),
			"last_match_time":  &at,
			"total_matches":    gorm.Expr("total_matches + ?", 1),
		}).Error
	})
	if err != nil {
		return fmt.Errorf("update candidate %s: %w", candidateID, err)
	}
	return nil
}

// GetMatch 根据 ID 获取匹配记录。
func (s *Store) GetMatch(ctx context.Context, id string) (*model.Match, error) {
	var m model.Match
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get match: %w", err)
	}
	return &m, nil
}

// ListMatches 返回按创建时间倒序的匹配记录。
func (s *Store) ListMatches(ctx context.Context, query MatchQuery) ([]model.Match, error) {
	limit := query.Limit
	if limit <= 0 {
		limit = 50
	}
	q := s.db.WithContext(ctx).Model(&model.Match{}).Limit(limit)
	if query.Unnotified {
		q = q.Where("notification_sent = ?", false).Order("created_at ASC")
	} else {
		q = q.Order("created_at DESC")
	}
	if query.Status != "" {
		q = q.Where("status = ?", query.Status)
	}
	var matches []model.Match
	if err := q.Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	return matches, nil
}

// RecordAction 在事务中记录一方的 like/pass 并推进状态。
func (s *Store) RecordAction(ctx context.Context, matchID, candidateID string, action model.Action, now time.Time) (*model.Match, error) {
	var out model.Match
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Match
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, "id = ?", matchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := m.ApplyAction(candidateID, action, now.UTC()); err != nil {
			return err
		}
		if err := tx.Model(&model.Match{}).Where("id = ?", m.ID).Updates(map[string]any{
			"action_a":       m.ActionA,
			"action_b":       m.ActionB,
			"status":         m.Status,
			"last_action_at": m.LastActionAt,
		}).Error; err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record action on match %s: %w", matchID, err)
	}
	return &out, nil
}

// ExpirePendingMatches 将已过期的 pending 记录置为 expired，返回本次受影响条数。
func (s *Store) ExpirePendingMatches(ctx context.Context, now time.Time) (int64, error) {
	tx := s.db.WithContext(ctx).Model(&model.Match{}).
		Where("status = ? AND expires_at <= ?", model.MatchStatusPending, now.UTC()).
		Update("status", model.MatchStatusExpired)
	if tx.Error != nil {
		return 0, fmt.Errorf("expire pending matches: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

// MarkNotified 在事务中记录一方已收到通知，双方都收到后置 notification_sent。
func (s *Store) MarkNotified(ctx context.Context, matchID, candidateID string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m model.Match
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&m, "id = ?", matchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := m.MarkNotified(candidateID); err != nil {
			return err
		}
		return tx.Model(&model.Match{}).Where("id = ?", m.ID).Updates(map[string]any{
			"notified_a":        m.NotifiedA,
			"notified_b":        m.NotifiedB,
			"notification_sent": m.NotificationSent,
		}).Error
	})
	if err != nil {
		return fmt.Errorf("mark notified on match %s: %w", matchID, err)
	}
	return nil
}

// Counts 返回候选人与匹配记录的统计。
func (s *Store) Counts(ctx context.Context, since time.Time) (Counts, error) {
	var c Counts
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.Candidate{}).Count(&c.TotalCandidates).Error; err != nil {
		return c, fmt.Errorf("count candidates: %w", err)
	}
	if err := db.Model(&model.Candidate{}).Where("active = ?", true).Count(&c.ActiveCandidates).Error; err != nil {
		return c, fmt.Errorf("count active candidates: %w", err)
	}
	if err := db.Model(&model.Match{}).Count(&c.TotalMatches).Error; err != nil {
		return c, fmt.Errorf("count matches: %w", err)
	}
	if err := db.Model(&model.Match{}).Where("status = ?", model.MatchStatusPending).Count(&c.PendingMatches).Error; err != nil {
		return c, fmt.Errorf("count pending matches: %w", err)
	}
	if err := db.Model(&model.Match{}).Where("created_at >= ?", since.UTC()).Count(&c.MatchesSince).Error; err != nil {
		return c, fmt.Errorf("count recent matches: %w", err)
	}
	var avg sql.NullFloat64
	if err := db.Model(&model.Match{}).Select("AVG(score)").Row().Scan(&avg); err != nil {
		return c, fmt.Errorf("average score: %w", err)
	}
	c.AverageScore = avg.Float64
	return c, nil
}
