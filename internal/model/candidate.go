package model

import (
	"math"
	"strings"
	"time"

	"gorm.io/datatypes"
)

// PreferredGender 表示候选人期望的同伴性别。
type PreferredGender string

const (
	PreferMale   PreferredGender = "male"
	PreferFemale PreferredGender = "female"
	PreferAny    PreferredGender = "any"
)

// Valid 判断取值是否合法，空值视为 any。
func (g PreferredGender) Valid() bool {
	switch g {
	case PreferMale, PreferFemale, PreferAny, "":
		return true
	}
	return false
}

// Candidate 表示一个参与匹配的旅伴候选人
// - ID: 稳定标识，可能带有表格导入遗留的前导单引号，入库前需 NormalizeID
// - Interests/Hobbies/PersonalityTraits/Destinations: 无序集合，JSON 存储
// - PreviousMatches/LastMatchTime/TotalMatches: 匹配成功后由核心逻辑更新

type Candidate struct {
	ID                string                      `gorm:"primaryKey;size:128" json:"id"`
	Name              string                      `gorm:"size:255" json:"name"`
	Email             string                      `gorm:"size:255" json:"email,omitempty"`
	Age               *int                        `json:"age,omitempty"`
	Gender            string                      `gorm:"size:16" json:"gender,omitempty"`
	Country           string                      `gorm:"size:128;not null;index" json:"country"`
	Region            string                      `gorm:"size:128" json:"region,omitempty"`
	Interests         datatypes.JSONSlice[string] `json:"interests"`
	Hobbies           datatypes.JSONSlice[string] `json:"hobbies"`
	PersonalityTraits datatypes.JSONSlice[string] `json:"personality_traits"`
	Destinations      datatypes.JSONSlice[string] `json:"destinations"`
	Skip              bool                        `json:"skip"`
	Active            bool                        `gorm:"index" json:"active"`
	PreferredAgeMin   int                         `json:"preferred_age_min"`
	PreferredAgeMax   int                         `json:"preferred_age_max"`
	PreferredGender   PreferredGender             `gorm:"size:16" json:"preferred_gender"`
	PreviousMatches   datatypes.JSONSlice[string] `json:"previous_matches"`
	LastMatchTime     *time.Time                  `gorm:"index" json:"last_match_time,omitempty"`
	TotalMatches      int                         `json:"total_matches"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
}

// NormalizeID 去掉表格导出时残留的前导单引号与首尾空白。
func NormalizeID(id string) string {
	return strings.TrimLeft(strings.TrimSpace(id), "'")
}

// Normalize 将自身与历史匹配中的所有 ID 规范化。
func (c *Candidate) Normalize() {
	c.ID = NormalizeID(c.ID)
	if len(c.PreviousMatches) == 0 {
		return
	}
	ids := make(datatypes.JSONSlice[string], 0, len(c.PreviousMatches))
	for _, id := range c.PreviousMatches {
		if n := NormalizeID(id); n != "" {
			ids = append(ids, n)
		}
	}
	c.PreviousMatches = ids
}

// HasMatched 判断 id 是否出现在历史匹配中。
func (c Candidate) HasMatched(id string) bool {
	id = NormalizeID(id)
	for _, prev := range c.PreviousMatches {
		if NormalizeID(prev) == id {
			return true
		}
	}
	return false
}

// AcceptsAge 判断 age 是否落在期望年龄区间内，上限为 0 表示不限。
func (c Candidate) AcceptsAge(age int) bool {
	max := c.PreferredAgeMax
	if max == 0 {
		max = math.MaxInt
	}
	return age >= c.PreferredAgeMin && age <= max
}

// AcceptsGender 判断 gender 是否满足性别偏好。
func (c Candidate) AcceptsGender(gender string) bool {
	pref := PreferredGender(strings.ToLower(strings.TrimSpace(string(c.PreferredGender))))
	if pref == "" || pref == PreferAny {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(gender), string(pref))
}
