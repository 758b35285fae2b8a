package concursoprep

import "testing"

func TestQuestionPoolTop(t *testing.T) {
	pool := NewQuestionPool()
	if !pool.IsEmpty() {
		t.Fatal("new pool not empty")
	}
	for i, score := range []float64{3, 9, 5, 9, 1} {
		pool.Add(&Question{ID: int64(i), Score: score})
	}

	top := pool.Top(3)
	if len(top) != 3 {
		t.Fatalf("Top(3) returned %d", len(top))
	}
	// equal scores keep insertion order
	if top[0].ID != 1 || top[1].ID != 3 || top[2].ID != 2 {
		t.Errorf("Top(3) ids = %d %d %d, want 1 3 2", top[0].ID, top[1].ID, top[2].ID)
	}
	if all := pool.Top(10); len(all) != 5 || pool.Size() != 5 {
		t.Errorf("Top(10) = %d questions, size %d", len(all), pool.Size())
	}
}
