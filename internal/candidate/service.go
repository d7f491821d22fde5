// Package candidate 负责候选人资料的校验与写入。
package candidate

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"

	"buddy-match/internal/model"
	"buddy-match/internal/storage"

	"gorm.io/datatypes"
)

// ErrInvalid 请求字段不合法。
var ErrInvalid = errors.New("invalid candidate")

// Store 定义持久化接口。
type Store interface {
	GetCandidate(ctx context.Context, id string) (*model.Candidate, error)
	UpsertCandidate(ctx context.Context, c *model.Candidate) error
}

// Request 表示资料写入请求，Active 为空时默认启用。
type Request struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Email             string   `json:"email"`
	Age               *int     `json:"age"`
	Gender            string   `json:"gender"`
	Country           string   `json:"country"`
	Region            string   `json:"region"`
	Interests         []string `json:"interests"`
	Hobbies           []string `json:"hobbies"`
	PersonalityTraits []string `json:"personality_traits"`
	Destinations      []string `json:"destinations"`
	Skip              bool     `json:"skip"`
	Active            *bool    `json:"active"`
	PreferredAgeMin   int      `json:"preferred_age_min"`
	PreferredAgeMax   int      `json:"preferred_age_max"`
	PreferredGender   string   `json:"preferred_gender"`
	PreviousMatches   []string `json:"previous_matches"`
}

// Service 校验资料并写入存储。
type Service struct {
	store Store
}

// NewService 创建候选人服务。
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Upsert 校验请求并写入；已存在的候选人保留匹配历史、最近匹配时间与累计次数。
func (s *Service) Upsert(ctx context.Context, req Request) (model.Candidate, error) {
	c, err := buildCandidate(req)
	if err != nil {
		return model.Candidate{}, err
	}

	existing, err := s.store.GetCandidate(ctx, c.ID)
	switch {
	case err == nil:
		c.PreviousMatches = mergeIDs(existing.PreviousMatches, c.PreviousMatches)
		c.LastMatchTime = existing.LastMatchTime
		c.TotalMatches = existing.TotalMatches
		c.CreatedAt = existing.CreatedAt
	case errors.Is(err, storage.ErrNotFound):
	default:
		return model.Candidate{}, fmt.Errorf("load candidate %s: %w", c.ID, err)
	}

	if err := s.store.UpsertCandidate(ctx, &c); err != nil {
		return model.Candidate{}, err
	}
	return c, nil
}

func buildCandidate(req Request) (model.Candidate, error) {
	id := model.NormalizeID(req.ID)
	if id == "" {
		return model.Candidate{}, fmt.Errorf("%w: id required", ErrInvalid)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return model.Candidate{}, fmt.Errorf("%w: name required", ErrInvalid)
	}
	country := strings.TrimSpace(req.Country)
	if country == "" {
		return model.Candidate{}, fmt.Errorf("%w: country required", ErrInvalid)
	}
	email := strings.TrimSpace(req.Email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return model.Candidate{}, fmt.Errorf("%w: email: %v", ErrInvalid, err)
		}
	}
	if req.Age != nil && *req.Age <= 0 {
		return model.Candidate{}, fmt.Errorf("%w: age must be positive", ErrInvalid)
	}
	if req.PreferredAgeMin < 0 || req.PreferredAgeMax < 0 {
		return model.Candidate{}, fmt.Errorf("%w: preferred age must not be negative", ErrInvalid)
	}
	if req.PreferredAgeMax != 0 && req.PreferredAgeMin > req.PreferredAgeMax {
		return model.Candidate{}, fmt.Errorf("%w: preferred_age_min %d exceeds preferred_age_max %d",
			ErrInvalid, req.PreferredAgeMin, req.PreferredAgeMax)
	}
	pref := model.PreferredGender(strings.ToLower(strings.TrimSpace(req.PreferredGender)))
	if pref == "" {
		pref = model.PreferAny
	}
	if !pref.Valid() {
		return model.Candidate{}, fmt.Errorf("%w: preferred_gender %q", ErrInvalid, req.PreferredGender)
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	c := model.Candidate{
		ID:                id,
		Name:              name,
		Email:             email,
		Age:               req.Age,
		Gender:            strings.ToLower(strings.TrimSpace(req.Gender)),
		Country:           country,
		Region:            strings.TrimSpace(req.Region),
		Interests:         cleanSet(req.Interests),
		Hobbies:           cleanSet(req.Hobbies),
		PersonalityTraits: cleanSet(req.PersonalityTraits),
		Destinations:      cleanSet(req.Destinations),
		Skip:              req.Skip,
		Active:            active,
		PreferredAgeMin:   req.PreferredAgeMin,
		PreferredAgeMax:   req.PreferredAgeMax,
		PreferredGender:   pref,
		PreviousMatches:   datatypes.JSONSlice[string](req.PreviousMatches),
	}
	c.Normalize()
	if slices.Contains(c.PreviousMatches, c.ID) {
		return model.Candidate{}, fmt.Errorf("%w: previous_matches contains the candidate itself", ErrInvalid)
	}
	return c, nil
}

// cleanSet 去空白、去重，保留首次出现的写法。
func cleanSet(values []string) datatypes.JSONSlice[string] {
	out := make(datatypes.JSONSlice[string], 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		key := strings.ToLower(trimmed)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

func mergeIDs(base, extra datatypes.JSONSlice[string]) datatypes.JSONSlice[string] {
	out := make(datatypes.JSONSlice[string], 0, len(base)+len(extra))
	for _, id := range append(slices.Clone(base), extra...) {
		id = model.NormalizeID(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
