package scoring

import "buddy-match/internal/model"

// IsFeasible 检查双方的硬性偏好是否对称满足。
func IsFeasible(a, b model.Candidate) bool {
	if a.Age != nil && b.Age != nil {
		if !b.AcceptsAge(*a.Age) || !a.AcceptsAge(*b.Age) {
			return false
		}
	}
	return a.AcceptsGender(b.Gender) && b.AcceptsGender(a.Gender)
}

// WasPreviouslyMatched 任一方的历史匹配包含对方即为 true。
func WasPreviouslyMatched(a, b model.Candidate) bool {
	return a.HasMatched(b.ID) || b.HasMatched(a.ID)
}

// Usable 判断一对候选人能否进入配对轮次。
func Usable(a, b model.Candidate) bool {
	if a.Skip || b.Skip {
		return false
	}
	if model.NormalizeID(a.ID) == model.NormalizeID(b.ID) {
		return false
	}
	return IsFeasible(a, b) && !WasPreviouslyMatched(a, b)
}
