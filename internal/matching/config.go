package matching

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"buddy-match/internal/model"
)

// Config 匹配阈值与分组配置。
type Config struct {
	MinScore       float64       `yaml:"min_score"`
	Cooldown       time.Duration `yaml:"cooldown"`
	SmallCountries []string      `yaml:"small_countries"`
	MatchTTL       time.Duration `yaml:"match_ttl"`
}

// ConfigUpdate 表示部分更新，nil 字段保持不变。时长使用 Go duration 字符串。
type ConfigUpdate struct {
	MinScore       *float64  `json:"min_score,omitempty"`
	Cooldown       *string   `json:"cooldown,omitempty"`
	SmallCountries *[]string `json:"small_countries,omitempty"`
	MatchTTL       *string   `json:"match_ttl,omitempty"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		MinScore: 3,
		Cooldown: 24 * time.Hour,
		MatchTTL: model.DefaultMatchTTL,
	}
}

// WithDefaults 为零值字段填充默认值。
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Cooldown == 0 {
		c.Cooldown = def.Cooldown
	}
	if c.MatchTTL == 0 {
		c.MatchTTL = def.MatchTTL
	}
	return c
}

// Validate 校验配置取值。
func (c Config) Validate() error {
	if c.MinScore < 0 {
		return fmt.Errorf("min_score must be >= 0, got %v", c.MinScore)
	}
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0, got %s", c.Cooldown)
	}
	if c.MatchTTL <= 0 {
		return fmt.Errorf("match_ttl must be positive, got %s", c.MatchTTL)
	}
	return nil
}

// Apply 合并部分更新并返回新配置。
func (c Config) Apply(u ConfigUpdate) (Config, error) {
	next := c
	next.SmallCountries = append([]string(nil), c.SmallCountries...)
	if u.MinScore != nil {
		next.MinScore = *u.MinScore
	}
	if u.Cooldown != nil {
		d, err := time.ParseDuration(strings.TrimSpace(*u.Cooldown))
		if err != nil {
			return c, fmt.Errorf("parse cooldown: %w", err)
		}
		next.Cooldown = d
	}
	if u.MatchTTL != nil {
		d, err := time.ParseDuration(strings.TrimSpace(*u.MatchTTL))
		if err != nil {
			return c, fmt.Errorf("parse match_ttl: %w", err)
		}
		next.MatchTTL = d
	}
	if u.SmallCountries != nil {
		next.SmallCountries = append([]string(nil), (*u.SmallCountries)...)
	}
	if err := next.Validate(); err != nil {
		return c, err
	}
	return next, nil
}

// MarshalJSON 时长以字符串输出。
func (c Config) MarshalJSON() ([]byte, error) {
	countries := c.SmallCountries
	if countries == nil {
		countries = []string{}
	}
	return json.Marshal(struct {
		MinScore       float64  `json:"min_score"`
		Cooldown       string   `json:"cooldown"`
		SmallCountries []string `json:"small_countries"`
		MatchTTL       string   `json:"match_ttl"`
	}{c.MinScore, c.Cooldown.String(), countries, c.MatchTTL.String()})
}

func (c Config) isSmallCountry(country string) bool {
	for _, sc := range c.SmallCountries {
		if strings.EqualFold(strings.TrimSpace(sc), country) {
			return true
		}
	}
	return false
}
