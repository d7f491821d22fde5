package matching

import (
	"sort"
	"strings"

	"buddy-match/internal/model"
)

// NoRegion 没有地区的候选人归入该分组。
const NoRegion = "no_region"

// group 表示一次配对轮次的候选人池。
type group struct {
	Country string
	Region  string
	Members []model.Candidate
}

func (g group) key() string {
	if g.Region == "" {
		return g.Country
	}
	return g.Country + "/" + g.Region
}

// partition 先按国家分组；小国豁免名单内的国家整体配对，其余再按地区拆分。
// 输出按国家、地区排序，保证轮次顺序稳定。
func partition(cands []model.Candidate, cfg Config) []group {
	byCountry := make(map[string][]model.Candidate)
	names := make(map[string]string)
	for _, c := range cands {
		country := strings.TrimSpace(c.Country)
		if country == "" {
			continue
		}
		key := strings.ToLower(country)
		if _, ok := names[key]; !ok {
			names[key] = country
		}
		byCountry[key] = append(byCountry[key], c)
	}

	countryKeys := make([]string, 0, len(byCountry))
	for k := range byCountry {
		countryKeys = append(countryKeys, k)
	}
	sort.Strings(countryKeys)

	var groups []group
	for _, ck := range countryKeys {
		country := names[ck]
		members := byCountry[ck]
		if cfg.isSmallCountry(country) {
			groups = append(groups, group{Country: country, Members: members})
			continue
		}

		// 地区同样忽略大小写，与评分时的地区比较保持一致，展示用首次出现的写法。
		byRegion := make(map[string][]model.Candidate)
		regionNames := make(map[string]string)
		for _, c := range members {
			region := strings.TrimSpace(c.Region)
			if region == "" {
				region = NoRegion
			}
			rk := strings.ToLower(region)
			if _, ok := regionNames[rk]; !ok {
				regionNames[rk] = region
			}
			byRegion[rk] = append(byRegion[rk], c)
		}
		regions := make([]string, 0, len(byRegion))
		for r := range byRegion {
			regions = append(regions, r)
		}
		sort.Strings(regions)
		for _, r := range regions {
			groups = append(groups, group{Country: country, Region: regionNames[r], Members: byRegion[r]})
		}
	}
	return groups
}
