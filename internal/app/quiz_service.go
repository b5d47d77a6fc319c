package app

import (
	"context"
	"fmt"
	"sync"

	"llm-quiz-service/internal/domain"
)

// SessionRepository abstracts how user sessions are stored (in-memory, Redis-marked, etc).
type SessionRepository interface {
	GetOrCreate(user string) *Session
	Get(user string) (*Session, bool)
	DeleteIfIdle(user string)
}

// CatalogRepository serves the read-only question bank.
type CatalogRepository interface {
	GetCatalog(ctx context.Context) (domain.Catalog, error)
	GetLevel(ctx context.Context, name string) (domain.QuizLevel, error)
}

// ScoreStore persists finalized scores keyed by (user, level).
type ScoreStore interface {
	Get(user, level string) (domain.ScoreRecord, bool)
	Save(user, level string, score int, answers map[string]domain.Answer) (domain.ScoreRecord, error)
}

// QuizService contains the quiz use cases: answering, finalizing, review.
type QuizService struct {
	sessions SessionRepository
	catalog  CatalogRepository
	scores   ScoreStore
}

func NewQuizService(sessions SessionRepository, catalog CatalogRepository, scores ScoreStore) *QuizService {
	return &QuizService{sessions: sessions, catalog: catalog, scores: scores}
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(user string) *Session {
	return newSession(user)
}

// Join registers or refreshes a user session and returns the score summary.
// A catalog failure does not fail the join: the session (and chat) stays
// usable, and the returned error marks the quiz views as unavailable.
func (s *QuizService) Join(ctx context.Context, user string) (*Session, []domain.ScoreSummary, error) {
	session := s.sessions.GetOrCreate(user)
	session.attach()

	summaries, err := s.Scores(ctx, user)
	return session, summaries, err
}

// SetAnswer records an in-progress answer. Nothing is persisted until
// finalize; answers for a finalized level are locked for the session.
func (s *QuizService) SetAnswer(ctx context.Context, user, levelName, questionID string, answer domain.Answer) error {
	session, ok := s.sessions.Get(user)
	if !ok {
		return domain.ErrSessionNotFound
	}

	level, err := s.catalog.GetLevel(ctx, levelName)
	if err != nil {
		return err
	}
	question, ok := level.Question(questionID)
	if !ok {
		return fmt.Errorf("%w: %s/%s", domain.ErrQuestionNotFound, levelName, questionID)
	}
	if err := validateAnswer(question, answer); err != nil {
		return err
	}
	if !session.setAnswer(levelName, questionID, answer) {
		return domain.ErrLevelFinalized
	}
	return nil
}

// Finalize computes the level score from the session's in-progress answers,
// persists it (overwriting any prior record for the pair), and locks the
// level for the rest of the session. Returns the record and the level max.
func (s *QuizService) Finalize(ctx context.Context, user, levelName string) (domain.ScoreRecord, int, error) {
	session, ok := s.sessions.Get(user)
	if !ok {
		return domain.ScoreRecord{}, 0, domain.ErrSessionNotFound
	}

	level, err := s.catalog.GetLevel(ctx, levelName)
	if err != nil {
		return domain.ScoreRecord{}, 0, err
	}

	answers, ok := session.beginFinalize(levelName, level)
	if !ok {
		return domain.ScoreRecord{}, 0, domain.ErrLevelFinalized
	}

	score := scoreLevel(level, answers)
	record, err := s.scores.Save(user, levelName, score, answers)
	if err != nil {
		session.abortFinalize(levelName)
		return domain.ScoreRecord{}, 0, fmt.Errorf("persist score: %w", err)
	}
	return record, level.MaxScore(), nil
}

// Review returns the persisted record together with the level content
// (memos and correct answers) for the review view.
func (s *QuizService) Review(ctx context.Context, user, levelName string) (domain.ScoreRecord, domain.QuizLevel, error) {
	level, err := s.catalog.GetLevel(ctx, levelName)
	if err != nil {
		return domain.ScoreRecord{}, domain.QuizLevel{}, err
	}
	record, ok := s.scores.Get(user, levelName)
	if !ok {
		return domain.ScoreRecord{}, domain.QuizLevel{}, fmt.Errorf("%w: %s/%s", domain.ErrScoreNotFound, user, levelName)
	}
	return record, level, nil
}

// Scores lists the user's per-level progress in catalog order.
func (s *QuizService) Scores(ctx context.Context, user string) ([]domain.ScoreSummary, error) {
	catalog, err := s.catalog.GetCatalog(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.ScoreSummary, 0, len(catalog.Order))
	for _, name := range catalog.Order {
		level := catalog.Levels[name]
		summary := domain.ScoreSummary{Level: name, Max: level.MaxScore()}
		if record, ok := s.scores.Get(user, name); ok {
			summary.Taken = true
			summary.Score = record.ScoreValue
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Leave detaches one connection and drops the session when idle.
func (s *QuizService) Leave(_ context.Context, user string) {
	session, ok := s.sessions.Get(user)
	if !ok {
		return
	}
	session.detach()
	if session.IsIdle() {
		s.sessions.DeleteIfIdle(user)
	}
}

func validateAnswer(q domain.Question, answer domain.Answer) error {
	switch q.Kind {
	case domain.QuestionMultiSelect:
		if !answer.Multi {
			return fmt.Errorf("question %s expects a set of option keys", q.ID)
		}
		for _, key := range answer.Keys {
			if _, ok := q.Options[key]; !ok {
				return fmt.Errorf("%w: %s/%s", domain.ErrOptionNotFound, q.ID, key)
			}
		}
	case domain.QuestionSingleSelect:
		if answer.Multi {
			return fmt.Errorf("question %s expects a single option key", q.ID)
		}
		if answer.Text != "" {
			if _, ok := q.Options[answer.Text]; !ok {
				return fmt.Errorf("%w: %s/%s", domain.ErrOptionNotFound, q.ID, answer.Text)
			}
		}
	default:
		if answer.Multi {
			return fmt.Errorf("question %s expects free text", q.ID)
		}
	}
	return nil
}

// Session is the per-user state for one run of the quiz-and-chat UI:
// answers in progress, finalized levels, chat history, and per-question help.
// Only ScoreStore content is durable; everything here dies with the session.
type Session struct {
	user string

	mu        sync.RWMutex
	conns     int
	answers   map[string]map[string]domain.Answer
	finalized map[string]bool
	messages  []domain.ChatMessage
	help      map[string]map[string]string
}

func newSession(user string) *Session {
	return &Session{
		user:      user,
		answers:   make(map[string]map[string]domain.Answer),
		finalized: make(map[string]bool),
		help:      make(map[string]map[string]string),
	}
}

// User returns the session owner's name.
func (s *Session) User() string { return s.user }

func (s *Session) attach() {
	s.mu.Lock()
	s.conns++
	s.mu.Unlock()
}

func (s *Session) detach() {
	s.mu.Lock()
	if s.conns > 0 {
		s.conns--
	}
	s.mu.Unlock()
}

// IsIdle reports whether no connection is attached to the session.
func (s *Session) IsIdle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conns == 0
}

// setAnswer reports false when the level is already finalized.
func (s *Session) setAnswer(level, questionID string, answer domain.Answer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized[level] {
		return false
	}
	if _, ok := s.answers[level]; !ok {
		s.answers[level] = make(map[string]domain.Answer)
	}
	s.answers[level][questionID] = answer
	return true
}

// beginFinalize marks the level finalized and returns a copy of its answers
// with the zero-value shape filled in for unanswered questions. Reports
// false when the level was already finalized this session.
func (s *Session) beginFinalize(levelName string, level domain.QuizLevel) (map[string]domain.Answer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized[levelName] {
		return nil, false
	}
	s.finalized[levelName] = true

	answers := make(map[string]domain.Answer, len(level.Questions))
	for _, q := range level.Questions {
		answer, ok := s.answers[levelName][q.ID]
		if !ok {
			if q.Kind == domain.QuestionMultiSelect {
				answer = domain.KeysAnswer()
			} else {
				answer = domain.TextAnswer("")
			}
		}
		answers[q.ID] = answer
	}
	return answers, true
}

// abortFinalize unlocks a level whose score failed to persist.
func (s *Session) abortFinalize(level string) {
	s.mu.Lock()
	delete(s.finalized, level)
	s.mu.Unlock()
}

// IsFinalized reports whether the level was finalized during this session.
func (s *Session) IsFinalized(level string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.finalized[level]
}

func (s *Session) appendMessage(msg domain.ChatMessage) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()
}

// History returns a copy of the ordered chat history.
func (s *Session) History() []domain.ChatMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := make([]domain.ChatMessage, len(s.messages))
	copy(history, s.messages)
	return history
}

// ClearChat resets the chat history.
func (s *Session) ClearChat() {
	s.mu.Lock()
	s.messages = nil
	s.mu.Unlock()
}

func (s *Session) setHelp(level, questionID, text string) {
	s.mu.Lock()
	if _, ok := s.help[level]; !ok {
		s.help[level] = make(map[string]string)
	}
	s.help[level][questionID] = text
	s.mu.Unlock()
}

// Help returns the last help response recorded for a question, if any.
func (s *Session) Help(level, questionID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.help[level][questionID]
	return text, ok
}

// Answer returns the in-progress answer for a question, if any.
func (s *Session) Answer(level, questionID string) (domain.Answer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answer, ok := s.answers[level][questionID]
	return answer, ok
}
