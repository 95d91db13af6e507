package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"interview-room/constant"
	"interview-room/entities"
)

type RosterSummary struct {
	Total       int      `json:"total"`
	Completed   int      `json:"completed"`
	Scored      int      `json:"scored"`
	Recommended int      `json:"recommended"`
	MeanScore   *float64 `json:"mean_score"`
}

// Summarize computes roster totals. The mean covers entries with a defined
// score only; entries without one are excluded rather than counted as zero.
func Summarize(entries []entities.CandidateRosterEntry) RosterSummary {
	var sum RosterSummary
	var total float64
	for _, e := range entries {
		sum.Total++
		if e.Status == constant.SessionStatusCompleted {
			sum.Completed++
		}
		if e.Category.Recommended() {
			sum.Recommended++
		}
		if e.FinalScore != nil {
			sum.Scored++
			total += *e.FinalScore
		}
	}
	if sum.Scored > 0 {
		mean := total / float64(sum.Scored)
		sum.MeanScore = &mean
	}
	return sum
}

// Filter keeps entries whose name, email or category contains query,
// ignoring case. An empty query keeps everything.
func Filter(entries []entities.CandidateRosterEntry, query string) []entities.CandidateRosterEntry {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]entities.CandidateRosterEntry, 0, len(entries))
	for _, e := range entries {
		if q == "" ||
			strings.Contains(strings.ToLower(e.CandidateName), q) ||
			strings.Contains(strings.ToLower(e.CandidateEmail), q) ||
			strings.Contains(strings.ToLower(string(e.Category)), q) {
			out = append(out, e)
		}
	}
	return out
}

type SortField string

const (
	SortByName        SortField = "name"
	SortByEmail       SortField = "email"
	SortByScore       SortField = "score"
	SortByCategory    SortField = "category"
	SortByStatus      SortField = "status"
	SortByStartedAt   SortField = "started_at"
	SortByAnswerCount SortField = "answer_count"
)

type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

func ParseSortField(s string) (SortField, error) {
	switch f := SortField(strings.ToLower(s)); f {
	case SortByName, SortByEmail, SortByScore, SortByCategory, SortByStatus, SortByStartedAt, SortByAnswerCount:
		return f, nil
	case "":
		return SortByStartedAt, nil
	}
	return "", fmt.Errorf("unknown sort field %q", s)
}

func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(s)); o {
	case Ascending, Descending:
		return o, nil
	case "":
		return Ascending, nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// Sort returns a copy of entries ordered by a single key. Equal keys keep
// their original relative order, so repeated sorts are stable. Entries
// without a score go last in either direction when sorting by score.
func Sort(entries []entities.CandidateRosterEntry, field SortField, order SortOrder) []entities.CandidateRosterEntry {
	out := append([]entities.CandidateRosterEntry(nil), entries...)
	desc := order == Descending

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if field == SortByScore {
			switch {
			case a.FinalScore == nil || b.FinalScore == nil:
				return a.FinalScore != nil && b.FinalScore == nil
			case desc:
				return *a.FinalScore > *b.FinalScore
			default:
				return *a.FinalScore < *b.FinalScore
			}
		}
		c := compare(a, b, field)
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

func compare(a, b entities.CandidateRosterEntry, field SortField) int {
	switch field {
	case SortByName:
		return strings.Compare(strings.ToLower(a.CandidateName), strings.ToLower(b.CandidateName))
	case SortByEmail:
		return strings.Compare(strings.ToLower(a.CandidateEmail), strings.ToLower(b.CandidateEmail))
	case SortByCategory:
		return strings.Compare(string(a.Category), string(b.Category))
	case SortByStatus:
		return a.Status.Rank() - b.Status.Rank()
	case SortByAnswerCount:
		return a.AnswerCount - b.AnswerCount
	default:
		return strings.Compare(a.StartedAt, b.StartedAt)
	}
}
