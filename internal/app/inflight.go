package service

import (
	"context"
	"strconv"

	"github.com/okian/evalboard/internal/domain/model"
)

func questionKey(id int64) string { return "question:" + strconv.FormatInt(id, 10) }

// claim takes the in-flight key for a question. The claim itself is one hold;
// every queued unit of the question adds another. The key is released when the
// last hold is dropped, so a question cannot be reset while any of its units
// may still write.
func (s *Service) claim(ctx context.Context, questionID int64) bool {
	if s.inFlight.SeenAndRecord(ctx, questionKey(questionID)) {
		return false
	}
	s.hold(questionID, 1)
	return true
}

// claimAll claims every question or none of them.
func (s *Service) claimAll(ctx context.Context, questions []model.Question) bool {
	taken := make([]int64, 0, len(questions))
	for _, q := range questions {
		if !s.claim(ctx, q.ID) {
			for _, id := range taken {
				s.release(ctx, id)
			}
			return false
		}
		taken = append(taken, q.ID)
	}
	return true
}

func (s *Service) hold(questionID int64, n int) {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	s.pending[questionID] += n
}

// release drops one hold and frees the key when none remain.
func (s *Service) release(ctx context.Context, questionID int64) {
	s.pendingMu.Lock()
	n, ok := s.pending[questionID]
	if !ok {
		// A unit left over from an earlier process holds nothing here.
		s.pendingMu.Unlock()
		return
	}
	n--
	s.pending[questionID] = n
	done := n <= 0
	if done {
		delete(s.pending, questionID)
	}
	s.pendingMu.Unlock()
	if done {
		s.inFlight.Unrecord(ctx, questionKey(questionID))
	}
}

// Pending reports the outstanding holds for a question.
func (s *Service) Pending(questionID int64) int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return s.pending[questionID]
}
