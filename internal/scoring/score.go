package scoring

import (
	"strings"

	"examguard/pkg/types"
)

// Score sums the points of every correctly answered question.
// When an index is answered more than once the first answer counts.
func Score(a *types.Assessment, answers []types.Answer) int {
	byIndex := make(map[int]string, len(answers))
	for _, ans := range answers {
		if _, seen := byIndex[ans.QuestionIndex]; !seen {
			byIndex[ans.QuestionIndex] = ans.Answer
		}
	}

	score := 0
	for i, q := range a.Questions {
		given, ok := byIndex[i]
		if !ok || given == "" || q.CorrectAnswer == "" {
			continue
		}
		if correct(q, given) {
			score += points(q)
		}
	}
	return score
}

func correct(q types.Question, given string) bool {
	switch q.Type {
	case types.QuestionMultipleChoice, types.QuestionTrueFalse:
		return given == q.CorrectAnswer
	case types.QuestionFillBlank:
		return strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(q.CorrectAnswer))
	default:
		// Essays are left for manual review
		return false
	}
}

func points(q types.Question) int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Redact returns a copy of the assessment safe to show candidates
func Redact(a *types.Assessment) *types.Assessment {
	out := *a
	out.Questions = make([]types.Question, len(a.Questions))
	for i, q := range a.Questions {
		q.CorrectAnswer = ""
		out.Questions[i] = q
	}
	return &out
}
