package app

import "llm-quiz-service/internal/domain"

// scoreQuestion applies the per-kind scoring policy:
//   - open: 1 per question at finalize, regardless of content
//     (completion credit)
//   - single-select: 1 when the submitted key equals the correct key
//   - multi-select: size of the intersection with the correct set, no
//     penalty for extra incorrect selections
func scoreQuestion(q domain.Question, answer domain.Answer) int {
	switch q.Kind {
	case domain.QuestionSingleSelect:
		if answer.Text != "" && answer.Text == q.Correct[0] {
			return 1
		}
		return 0
	case domain.QuestionMultiSelect:
		correct := make(map[string]struct{}, len(q.Correct))
		for _, key := range q.Correct {
			correct[key] = struct{}{}
		}
		score := 0
		seen := make(map[string]struct{}, len(answer.Keys))
		for _, key := range answer.Keys {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			if _, ok := correct[key]; ok {
				score++
			}
		}
		return score
	default:
		return 1
	}
}

// scoreLevel sums question scores; questions with no submitted answer score
// against the zero Answer.
func scoreLevel(level domain.QuizLevel, answers map[string]domain.Answer) int {
	total := 0
	for _, q := range level.Questions {
		total += scoreQuestion(q, answers[q.ID])
	}
	return total
}
