package app

import (
	"testing"

	"llm-quiz-service/internal/domain"
)

func multiQuestion(correct ...string) domain.Question {
	return domain.Question{
		ID:      "q_multi",
		Kind:    domain.QuestionMultiSelect,
		Prompt:  "Select all correct statements",
		Options: map[string]string{"A": "a", "B": "b", "C": "c", "D": "d"},
		Correct: correct,
	}
}

func TestScoreMultiSelectPartialCredit(t *testing.T) {
	q := multiQuestion("A", "B", "D")

	cases := []struct {
		name      string
		submitted []string
		want      int
	}{
		{"only one intersects", []string{"A", "C"}, 1},
		{"all correct", []string{"A", "B", "D"}, 3},
		{"empty selection", []string{}, 0},
		{"extras not penalized", []string{"A", "B", "C", "D"}, 3},
		{"duplicates counted once", []string{"A", "A"}, 1},
	}
	for _, tc := range cases {
		got := scoreQuestion(q, domain.KeysAnswer(tc.submitted...))
		if got != tc.want {
			t.Errorf("%s: got %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestScoreSingleSelect(t *testing.T) {
	q := domain.Question{
		ID:      "q_single",
		Kind:    domain.QuestionSingleSelect,
		Prompt:  "Choose one",
		Options: map[string]string{"A": "a", "B": "b", "C": "c"},
		Correct: []string{"B"},
	}

	cases := []struct {
		submitted string
		want      int
	}{
		{"B", 1},
		{"C", 0},
		{"", 0},
	}
	for _, tc := range cases {
		got := scoreQuestion(q, domain.TextAnswer(tc.submitted))
		if got != tc.want {
			t.Errorf("submitted %q: got %d, want %d", tc.submitted, got, tc.want)
		}
	}
}

func TestScoreOpenLevelAwardsCompletionCredit(t *testing.T) {
	level := domain.QuizLevel{
		Name: "Level 1: Fundamentals",
		Questions: []domain.Question{
			{ID: "Q1", Kind: domain.QuestionOpen, Prompt: "Explain attention"},
			{ID: "Q2", Kind: domain.QuestionOpen, Prompt: "Explain tokenization"},
		},
	}

	// Completion credit: any content, including empty strings, scores full marks.
	got := scoreLevel(level, map[string]domain.Answer{
		"Q1": domain.TextAnswer(""),
		"Q2": domain.TextAnswer("some attempt"),
	})
	if got != 2 {
		t.Fatalf("open level score = %d, want 2", got)
	}

	if got := scoreLevel(level, nil); got != 2 {
		t.Fatalf("open level score with no answers = %d, want 2", got)
	}
}

func TestScoreMixedLevelAndMax(t *testing.T) {
	level := domain.QuizLevel{
		Name: "Level 5: Multi-Select",
		Questions: []domain.Question{
			multiQuestion("A", "B", "C", "D"),
			{
				ID:      "q_single",
				Kind:    domain.QuestionSingleSelect,
				Options: map[string]string{"A": "a", "B": "b"},
				Correct: []string{"B"},
			},
		},
	}

	if max := level.MaxScore(); max != 5 {
		t.Fatalf("level max = %d, want 5", max)
	}

	got := scoreLevel(level, map[string]domain.Answer{
		"q_multi":  domain.KeysAnswer("A", "B"),
		"q_single": domain.TextAnswer("B"),
	})
	if got != 3 {
		t.Fatalf("mixed level score = %d, want 3", got)
	}
}
