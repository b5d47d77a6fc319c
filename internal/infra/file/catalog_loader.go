package file

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"llm-quiz-service/internal/domain"
)

// CatalogLoader reads the quiz catalog from a JSON file:
// level name -> question id -> question. Question order inside a level
// follows the file, so the parse walks the JSON tokens instead of
// unmarshalling into a map.
type CatalogLoader struct {
	path string
}

func NewCatalogLoader(path string) *CatalogLoader {
	return &CatalogLoader{path: path}
}

func (l *CatalogLoader) LoadCatalog(_ context.Context) (domain.Catalog, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Catalog{}, fmt.Errorf("%w: %s", domain.ErrCatalogMissing, l.path)
		}
		return domain.Catalog{}, fmt.Errorf("read catalog %s: %w", l.path, err)
	}
	catalog, err := ParseCatalog(data)
	if err != nil {
		return domain.Catalog{}, fmt.Errorf("%s: %w", l.path, err)
	}
	return catalog, nil
}

// questionFile mirrors the on-disk question shape.
type questionFile struct {
	Question       string            `json:"question"`
	Memo           string            `json:"memo"`
	Options        map[string]string `json:"options"`
	CorrectAnswer  string            `json:"correct_answer"`
	CorrectAnswers []string          `json:"correct_answers"`
}

// ParseCatalog decodes the nested catalog object. Any deviation from the
// expected shape yields ErrCatalogMalformed; no partial catalog is returned.
func ParseCatalog(data []byte) (domain.Catalog, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return domain.Catalog{}, err
	}

	catalog := domain.Catalog{Levels: map[string]domain.QuizLevel{}}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return domain.Catalog{}, malformed("read level name: %v", err)
		}
		name := tok.(string)

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return domain.Catalog{}, malformed("level %q: %v", name, err)
		}
		level, err := ParseLevel(name, raw)
		if err != nil {
			return domain.Catalog{}, err
		}
		catalog.Levels[name] = level
		catalog.Order = append(catalog.Order, name)
	}
	return catalog, nil
}

// ParseLevel decodes one level object (question id -> question), preserving
// question order. Also used by the Postgres loader, which stores one level
// per JSONB row.
func ParseLevel(name string, data []byte) (domain.QuizLevel, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	if err := expectDelim(dec, '{'); err != nil {
		return domain.QuizLevel{}, err
	}

	level := domain.QuizLevel{Name: name}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return domain.QuizLevel{}, malformed("level %q: read question id: %v", name, err)
		}
		id := tok.(string)

		var qf questionFile
		if err := dec.Decode(&qf); err != nil {
			return domain.QuizLevel{}, malformed("level %q question %q: %v", name, id, err)
		}
		question, err := buildQuestion(id, qf)
		if err != nil {
			return domain.QuizLevel{}, fmt.Errorf("level %q: %w", name, err)
		}
		level.Questions = append(level.Questions, question)
	}
	if len(level.Questions) == 0 {
		return domain.QuizLevel{}, malformed("level %q has no questions", name)
	}
	return level, nil
}

func buildQuestion(id string, qf questionFile) (domain.Question, error) {
	if qf.Question == "" {
		return domain.Question{}, malformed("question %q: missing question text", id)
	}

	q := domain.Question{
		ID:     id,
		Prompt: qf.Question,
		Memo:   qf.Memo,
	}

	if len(qf.Options) == 0 {
		if qf.CorrectAnswer != "" || len(qf.CorrectAnswers) > 0 {
			return domain.Question{}, malformed("question %q: correct answer without options", id)
		}
		q.Kind = domain.QuestionOpen
		return q, nil
	}

	q.Options = qf.Options
	for key := range qf.Options {
		q.OptionOrder = append(q.OptionOrder, key)
	}
	sort.Strings(q.OptionOrder)

	switch {
	case len(qf.CorrectAnswers) > 0:
		q.Kind = domain.QuestionMultiSelect
		for _, key := range qf.CorrectAnswers {
			if _, ok := qf.Options[key]; !ok {
				return domain.Question{}, malformed("question %q: correct answer %q not among options", id, key)
			}
		}
		q.Correct = qf.CorrectAnswers
	case qf.CorrectAnswer != "":
		q.Kind = domain.QuestionSingleSelect
		if _, ok := qf.Options[qf.CorrectAnswer]; !ok {
			return domain.Question{}, malformed("question %q: correct answer %q not among options", id, qf.CorrectAnswer)
		}
		q.Correct = []string{qf.CorrectAnswer}
	default:
		return domain.Question{}, malformed("question %q: options without a correct answer", id)
	}
	return q, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return malformed("parse: %v", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != want {
		return malformed("expected %q, got %v", want, tok)
	}
	return nil
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", domain.ErrCatalogMalformed, fmt.Sprintf(format, args...))
}
