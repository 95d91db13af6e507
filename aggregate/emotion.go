package aggregate

import (
	"math"
	"sort"

	"interview-room/entities"
)

type EmotionShare struct {
	Label   string  `json:"label"`
	Percent int     `json:"percent"`
	Share   float64 `json:"-"`
}

// EmotionProfile sums every answer's emotion distribution label by label,
// normalizes by the grand total and rounds each share to a whole percent.
// Rounding each label independently means the percentages may add up to
// 99 or 101. Answers without emotion data contribute nothing; when no answer
// has any, the profile is empty.
func EmotionProfile(answers []entities.Answer) []EmotionShare {
	totals := make(map[string]float64)
	var grand float64
	for _, a := range answers {
		for label, v := range a.EmotionDistribution {
			if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			totals[label] += v
			grand += v
		}
	}

	profile := make([]EmotionShare, 0, len(totals))
	if grand == 0 {
		return profile
	}
	for label, v := range totals {
		share := v / grand
		profile = append(profile, EmotionShare{
			Label:   label,
			Percent: int(math.Round(share * 100)),
			Share:   share,
		})
	}
	sort.Slice(profile, func(i, j int) bool {
		if profile[i].Share != profile[j].Share {
			return profile[i].Share > profile[j].Share
		}
		return profile[i].Label < profile[j].Label
	})
	return profile
}

// Dominant returns the label with the largest share, or "".
func Dominant(distribution map[string]float64) string {
	best, bestValue := "", 0.0
	for label, v := range distribution {
		if v > bestValue || (v == bestValue && v > 0 && label < best) {
			best, bestValue = label, v
		}
	}
	return best
}
