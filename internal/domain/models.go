package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// QuestionKind selects the scoring policy for a question.
type QuestionKind string

const (
	QuestionOpen         QuestionKind = "open"
	QuestionSingleSelect QuestionKind = "single"
	QuestionMultiSelect  QuestionKind = "multi"
)

// Question is a single quiz question. Choice questions carry options and the
// correct key(s); open questions carry only the prompt and the official memo.
type Question struct {
	ID          string
	Kind        QuestionKind
	Prompt      string
	Memo        string
	Options     map[string]string // option key -> statement, choice kinds only
	OptionOrder []string
	Correct     []string // exactly one entry for single-select
}

// MaxScore is the highest score a single question can contribute.
func (q Question) MaxScore() int {
	switch q.Kind {
	case QuestionMultiSelect:
		return len(q.Correct)
	default:
		return 1
	}
}

// QuizLevel is a named, ordered group of questions. Immutable once loaded.
type QuizLevel struct {
	Name      string
	Questions []Question
}

// Question finds a question by ID.
func (l QuizLevel) Question(id string) (Question, bool) {
	for _, q := range l.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// MaxScore is the sum of per-question maximums.
func (l QuizLevel) MaxScore() int {
	total := 0
	for _, q := range l.Questions {
		total += q.MaxScore()
	}
	return total
}

// Catalog is the full question bank, read-only after load.
type Catalog struct {
	Levels map[string]QuizLevel
	Order  []string // level names in file order
}

// Answer is a submitted value for one question: free text or a single option
// key (string form) or a set of option keys (array form). The score file
// stores it as `string | []string`, so it marshals to whichever shape the
// question uses.
type Answer struct {
	Text  string
	Keys  []string
	Multi bool
}

// TextAnswer wraps a free-text or single-select submission.
func TextAnswer(text string) Answer {
	return Answer{Text: text}
}

// KeysAnswer wraps a multi-select submission.
func KeysAnswer(keys ...string) Answer {
	if keys == nil {
		keys = []string{}
	}
	return Answer{Keys: keys, Multi: true}
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Multi {
		keys := a.Keys
		if keys == nil {
			keys = []string{}
		}
		return json.Marshal(keys)
	}
	return json.Marshal(a.Text)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*a = Answer{Text: text}
		return nil
	}
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return fmt.Errorf("answer must be a string or an array of strings")
	}
	*a = Answer{Keys: keys, Multi: true}
	return nil
}

// scoreTimeLayout is the timestamp format used in the score file.
const scoreTimeLayout = "2006-01-02 15:04:05"

// ScoreTime marshals as "YYYY-MM-DD HH:MM:SS" to keep the score file
// readable by other implementations of the same shape.
type ScoreTime time.Time

func (t ScoreTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).Format(scoreTimeLayout))
}

func (t *ScoreTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.Parse(scoreTimeLayout, raw)
	if err != nil {
		return fmt.Errorf("invalid score date %q: %w", raw, err)
	}
	*t = ScoreTime(parsed)
	return nil
}

func (t ScoreTime) Time() time.Time { return time.Time(t) }

// ScoreRecord is the persisted outcome of finalizing one level for one user.
// At most one record exists per (user, level); a new finalize overwrites it.
type ScoreRecord struct {
	ScoreValue int               `json:"score_value"`
	Date       ScoreTime         `json:"date"`
	Answers    map[string]Answer `json:"answers"`
}

// ScoreSummary is a per-level view of a user's progress.
type ScoreSummary struct {
	Level string `json:"level"`
	Taken bool   `json:"taken"`
	Score int    `json:"score"`
	Max   int    `json:"max"`
}

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one entry of an ordered chat history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SamplingParams configures a provider call. A nil TopK means the provider's
// own default.
type SamplingParams struct {
	Temperature float64
	TopP        float64
	TopK        *int
}

// ProviderID names one of the supported chat providers.
type ProviderID string

const (
	ProviderOpenAI ProviderID = "openai"
	ProviderGemini ProviderID = "gemini"
	ProviderGrok   ProviderID = "grok"
)

// ParseProvider validates a provider name against the closed set.
func ParseProvider(raw string) (ProviderID, error) {
	switch ProviderID(raw) {
	case ProviderOpenAI, ProviderGemini, ProviderGrok:
		return ProviderID(raw), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
}
