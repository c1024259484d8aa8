package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/evalboard/internal/domain/model"
)

// MemoryStore keeps everything in process memory. It serves tests and single-node runs.
type MemoryStore struct {
	mu sync.RWMutex

	dimensions map[int64]model.Dimension
	subjects   map[int64]model.Subject
	questions  map[int64]model.Question
	settings   map[model.QuestionType]model.Setting
	answers    map[int64]model.Answer
	ratings    map[int64]model.Rating // keyed by answer id
	snapshots  map[int64]model.Snapshot

	nextID int64
	now    func() time.Time
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		dimensions: map[int64]model.Dimension{},
		subjects:   map[int64]model.Subject{},
		questions:  map[int64]model.Question{},
		settings:   map[model.QuestionType]model.Setting{},
		answers:    map[int64]model.Answer{},
		ratings:    map[int64]model.Rating{},
		snapshots:  map[int64]model.Snapshot{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MemoryStore) check() error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Subjects returns all subjects ordered by id.
func (s *MemoryStore) Subjects(_ context.Context) ([]model.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	out := make([]model.Subject, 0, len(s.subjects))
	for _, v := range s.subjects {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Subject returns one subject.
func (s *MemoryStore) Subject(_ context.Context, id int64) (model.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return model.Subject{}, err
	}
	v, ok := s.subjects[id]
	if !ok {
		return model.Subject{}, fmt.Errorf("subject %d: %w", id, ErrNotFound)
	}
	return v, nil
}

// Dimensions returns all dimensions ordered by id.
func (s *MemoryStore) Dimensions(_ context.Context) ([]model.Dimension, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	out := make([]model.Dimension, 0, len(s.dimensions))
	for _, v := range s.dimensions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Questions returns all questions ordered by id.
func (s *MemoryStore) Questions(_ context.Context) ([]model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	out := make([]model.Question, 0, len(s.questions))
	for _, v := range s.questions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Question returns one question.
func (s *MemoryStore) Question(_ context.Context, id int64) (model.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return model.Question{}, err
	}
	v, ok := s.questions[id]
	if !ok {
		return model.Question{}, fmt.Errorf("question %d: %w", id, ErrNotFound)
	}
	return v, nil
}

// Setting returns the override for t.
func (s *MemoryStore) Setting(_ context.Context, t model.QuestionType) (model.Setting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return model.Setting{}, err
	}
	v, ok := s.settings[t]
	if !ok {
		return model.Setting{}, fmt.Errorf("setting %s: %w", t, ErrNotFound)
	}
	return v, nil
}

// ResetQuestion drops the question's ratings and answers under one lock.
func (s *MemoryStore) ResetQuestion(_ context.Context, questionID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.deleteAnswers(func(a model.Answer) bool { return a.QuestionID == questionID })
	return nil
}

// ResetSubject drops the subject's ratings and answers under one lock.
func (s *MemoryStore) ResetSubject(_ context.Context, subjectID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	s.deleteAnswers(func(a model.Answer) bool { return a.SubjectID == subjectID })
	return nil
}

func (s *MemoryStore) deleteAnswers(match func(model.Answer) bool) {
	for id, a := range s.answers {
		if match(a) {
			delete(s.ratings, id)
		}
	}
	for id, a := range s.answers {
		if match(a) {
			delete(s.answers, id)
		}
	}
}

// SaveRatedAnswer stores the pair atomically.
func (s *MemoryStore) SaveRatedAnswer(_ context.Context, a model.Answer, r model.Rating) (model.Answer, model.Rating, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return model.Answer{}, model.Rating{}, err
	}
	if a.QuestionID == 0 || a.SubjectID == 0 {
		return model.Answer{}, model.Rating{}, fmt.Errorf("answer without question or subject: %w", ErrInvalidRecord)
	}
	now := s.now().UTC()
	a.ID = s.id()
	a.CreatedAt = now
	r.ID = s.id()
	r.AnswerID = a.ID
	r.SubjectID = a.SubjectID
	r.CreatedAt = now
	s.answers[a.ID] = a
	s.ratings[a.ID] = r
	return a, r, nil
}

// AnswersForQuestion returns the question's answers ordered by id.
func (s *MemoryStore) AnswersForQuestion(_ context.Context, questionID int64) ([]model.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []model.Answer
	for _, a := range s.answers {
		if a.QuestionID == questionID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// RatingForAnswer returns the rating attached to an answer.
func (s *MemoryStore) RatingForAnswer(_ context.Context, answerID int64) (model.Rating, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return model.Rating{}, err
	}
	r, ok := s.ratings[answerID]
	if !ok {
		return model.Rating{}, fmt.Errorf("rating for answer %d: %w", answerID, ErrNotFound)
	}
	return r, nil
}

// RatedAnswers joins ratings with answers and questions in rating id order.
func (s *MemoryStore) RatedAnswers(_ context.Context) ([]model.RatedAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	ratings := make([]model.Rating, 0, len(s.ratings))
	for _, r := range s.ratings {
		ratings = append(ratings, r)
	}
	sort.Slice(ratings, func(i, j int) bool { return ratings[i].ID < ratings[j].ID })
	out := make([]model.RatedAnswer, 0, len(ratings))
	for _, r := range ratings {
		a, ok := s.answers[r.AnswerID]
		if !ok {
			continue
		}
		q, ok := s.questions[a.QuestionID]
		if !ok {
			continue
		}
		out = append(out, model.RatedAnswer{
			SubjectID:    a.SubjectID,
			QuestionID:   q.ID,
			QuestionType: q.Type,
			DimensionID:  q.DimensionID,
			Score:        r.Score,
			IsResponsive: r.IsResponsive,
		})
	}
	return out, nil
}

// InsertSnapshot appends a snapshot.
func (s *MemoryStore) InsertSnapshot(_ context.Context, snap model.Snapshot) (model.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return model.Snapshot{}, err
	}
	snap.ID = s.id()
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = s.now().UTC()
	}
	snap.Rows = append([]byte(nil), snap.Rows...)
	snap.Dimensions = append([]byte(nil), snap.Dimensions...)
	s.snapshots[snap.ID] = snap
	return snap, nil
}

// ListSnapshots returns snapshots newest first.
func (s *MemoryStore) ListSnapshots(_ context.Context, f SnapshotFilter) ([]model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return nil, err
	}
	var out []model.Snapshot
	for _, snap := range s.snapshots {
		if !f.Day.IsZero() && !sameDay(snap.CreatedAt, f.Day) {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// GetSnapshot returns one snapshot.
func (s *MemoryStore) GetSnapshot(_ context.Context, id int64) (model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.check(); err != nil {
		return model.Snapshot{}, err
	}
	snap, ok := s.snapshots[id]
	if !ok {
		return model.Snapshot{}, fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
	}
	return snap, nil
}

// DeleteSnapshot removes a snapshot.
func (s *MemoryStore) DeleteSnapshot(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if _, ok := s.snapshots[id]; !ok {
		return fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
	}
	delete(s.snapshots, id)
	return nil
}

// UpsertDimension inserts or replaces a dimension.
func (s *MemoryStore) UpsertDimension(_ context.Context, d model.Dimension) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if d.ID == 0 {
		return fmt.Errorf("dimension without id: %w", ErrInvalidRecord)
	}
	s.dimensions[d.ID] = d
	return nil
}

// UpsertSubject inserts or updates a subject matched by name.
func (s *MemoryStore) UpsertSubject(_ context.Context, subj model.Subject) (model.Subject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return model.Subject{}, err
	}
	if subj.Name == "" {
		return model.Subject{}, fmt.Errorf("subject without name: %w", ErrInvalidRecord)
	}
	for id, existing := range s.subjects {
		if existing.Name == subj.Name {
			subj.ID = id
			s.subjects[id] = subj
			return subj, nil
		}
	}
	if subj.ID == 0 {
		subj.ID = s.id()
	} else if subj.ID > s.nextID {
		s.nextID = subj.ID
	}
	s.subjects[subj.ID] = subj
	return subj, nil
}

// UpsertQuestion inserts a question, or replaces it when ID is set.
func (s *MemoryStore) UpsertQuestion(_ context.Context, q model.Question) (model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return model.Question{}, err
	}
	if !q.Type.Valid() {
		return model.Question{}, fmt.Errorf("question type %d: %w", int(q.Type), ErrInvalidRecord)
	}
	if q.ID == 0 {
		q.ID = s.id()
	} else if q.ID > s.nextID {
		s.nextID = q.ID
	}
	s.questions[q.ID] = q
	return q, nil
}

// UpsertSetting replaces the override for a question type.
func (s *MemoryStore) UpsertSetting(_ context.Context, st model.Setting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(); err != nil {
		return err
	}
	if !st.Type.Valid() {
		return fmt.Errorf("setting type %d: %w", int(st.Type), ErrInvalidRecord)
	}
	s.settings[st.Type] = st
	return nil
}
