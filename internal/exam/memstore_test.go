package exam

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/pavelanni/testprep/internal/model"
)

type progressKey struct {
	userID   int64
	category string
}

// memStore is an in-memory Store for tests. Atomic restores a snapshot
// when fn fails.
type memStore struct {
	mu        sync.Mutex
	nextID    int64
	sessions  map[int64]model.ExamSession
	answers   map[int64]model.Answer
	scores    map[int64]model.ScoreRecord
	progress  map[progressKey]model.ProgressStat
	questions map[int64]model.Question

	failWrites error
}

func newMemStore(questions ...model.Question) *memStore {
	m := &memStore{
		sessions:  map[int64]model.ExamSession{},
		answers:   map[int64]model.Answer{},
		scores:    map[int64]model.ScoreRecord{},
		progress:  map[progressKey]model.ProgressStat{},
		questions: map[int64]model.Question{},
	}
	for _, q := range questions {
		m.questions[q.ID] = q
	}
	return m
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) Lookup(_ context.Context, id int64) (*model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, nil
	}
	return &q, nil
}

func (m *memStore) Atomic(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	sessions, answers := maps.Clone(m.sessions), maps.Clone(m.answers)
	scores, progress := maps.Clone(m.scores), maps.Clone(m.progress)
	nextID := m.nextID
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.sessions, m.answers, m.scores, m.progress = sessions, answers, scores, progress
		m.nextID = nextID
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) AddProgress(_ context.Context, userID int64, category string, dTotal, dCorrect int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	k := progressKey{userID, category}
	st := m.progress[k]
	st.UserID, st.Category = userID, category
	st.TotalAttempts += dTotal
	st.CorrectAttempts += dCorrect
	if st.TotalAttempts < 0 || st.CorrectAttempts < 0 {
		return errors.New("progress below zero")
	}
	st.Accuracy = 0
	if st.TotalAttempts > 0 {
		st.Accuracy = float64(st.CorrectAttempts) / float64(st.TotalAttempts)
	}
	m.progress[k] = st
	return nil
}

func (m *memStore) ListProgress(_ context.Context, userID int64) ([]model.ProgressStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ProgressStat
	for k, st := range m.progress {
		if k.userID == userID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (m *memStore) InsertSession(_ context.Context, s model.ExamSession) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = m.id()
	s.QuestionIDs = slices.Clone(s.QuestionIDs)
	m.sessions[s.ID] = s
	return s.ID, nil
}

func (m *memStore) GetSession(_ context.Context, id int64) (*model.ExamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memStore) ListSessionsByUser(_ context.Context, userID int64) ([]model.ExamSession, error) {
	return m.listSessions(func(s model.ExamSession) bool { return s.UserID == userID }), nil
}

func (m *memStore) ListSessionsByStatus(_ context.Context, status model.SessionStatus) ([]model.ExamSession, error) {
	return m.listSessions(func(s model.ExamSession) bool { return s.Status == status }), nil
}

func (m *memStore) listSessions(keep func(model.ExamSession) bool) []model.ExamSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ExamSession
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (m *memStore) CompareAndSetStatus(_ context.Context, id int64, from, next model.SessionStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return false, m.failWrites
	}
	s, ok := m.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = next
	if next == model.StatusSubmitted {
		s.CompletedAt = &at
	}
	m.sessions[id] = s
	return true, nil
}

func (m *memStore) UpsertAnswer(_ context.Context, a model.Answer) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return 0, m.failWrites
	}
	for id, cur := range m.answers {
		if cur.SessionID == a.SessionID && cur.QuestionID == a.QuestionID {
			a.ID = id
			a.SuggestedScore, a.SuggestionFeedback = cur.SuggestedScore, cur.SuggestionFeedback
			m.answers[id] = a
			return id, nil
		}
	}
	a.ID = m.id()
	m.answers[a.ID] = a
	return a.ID, nil
}

func (m *memStore) GetAnswer(_ context.Context, id int64) (*model.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *memStore) GetAnswerByQuestion(_ context.Context, sessionID, questionID int64) (*model.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.answers {
		if a.SessionID == sessionID && a.QuestionID == questionID {
			return &a, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListAnswers(_ context.Context, sessionID int64) ([]model.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Answer
	for _, a := range m.answers {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) SetSuggestion(_ context.Context, answerID int64, score float64, feedback string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.answers[answerID]
	if !ok {
		return nil
	}
	a.SuggestedScore = &score
	a.SuggestionFeedback = feedback
	m.answers[answerID] = a
	return nil
}

func (m *memStore) InsertScore(_ context.Context, rec model.ScoreRecord) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scores[rec.SessionID]; ok {
		return 0, errors.New("score already exists")
	}
	rec.ID = m.id()
	m.scores[rec.SessionID] = rec
	return rec.ID, nil
}

func (m *memStore) GetScore(_ context.Context, sessionID int64) (*model.ScoreRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.scores[sessionID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}
