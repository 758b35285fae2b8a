package concursoprep

import (
	"sort"
	"sync"
)

// QuestionPool collects accepted questions of one run and hands out the
// best of them
type QuestionPool struct {
	mu        sync.RWMutex
	questions []*Question
}

// NewQuestionPool creates a new question pool
func NewQuestionPool() *QuestionPool {
	return &QuestionPool{questions: make([]*Question, 0)}
}

// Add adds a question to the pool
func (qp *QuestionPool) Add(question *Question) {
	qp.mu.Lock()
	defer qp.mu.Unlock()
	qp.questions = append(qp.questions, question)
}

// Top returns at most n questions by descending score. Ties keep the
// order in which they were added.
func (qp *QuestionPool) Top(n int) []Question {
	qp.mu.RLock()
	ranked := make([]*Question, len(qp.questions))
	copy(ranked, qp.questions)
	qp.mu.RUnlock()

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	if n >= 0 && n < len(ranked) {
		ranked = ranked[:n]
	}

	out := make([]Question, len(ranked))
	for i, q := range ranked {
		out[i] = *q
	}
	return out
}

// Size returns the number of questions in the pool
func (qp *QuestionPool) Size() int {
	qp.mu.RLock()
	defer qp.mu.RUnlock()
	return len(qp.questions)
}

// IsEmpty returns true if the pool is empty
func (qp *QuestionPool) IsEmpty() bool {
	return qp.Size() == 0
}
