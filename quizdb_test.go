package concursoprep

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func storedQuestion(statement, answer string) Question {
	c := validCandidate()
	c.Statement = statement
	c.Answer = answer
	c.ContentHash = ContentHash(c.Statement, c.Answer, c.Subject, c.Topic, c.Board, c.Role)
	c.Fingerprint = Fingerprint(c.Statement)
	q := c.promote()
	q.Tags = []string{"cpp"}
	q.OptionComments = map[string]string{"A": "Vedado desde a Lei 13.964/2019."}
	return *q
}

func TestUsers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.CreateUser(ctx, "ana"); err != nil {
		t.Fatal(err)
	}
	if err := db.CreateUser(ctx, "ana"); !errors.Is(err, ErrUserExists) {
		t.Errorf("duplicate user error = %v, want ErrUserExists", err)
	}
	if err := db.CreateUser(ctx, "  "); err == nil {
		t.Error("blank user accepted")
	}
	if err := db.CreateUser(ctx, "bruno"); err != nil {
		t.Fatal(err)
	}

	users, err := db.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 || users[0] != "ana" || users[1] != "bruno" {
		t.Errorf("ListUsers() = %v", users)
	}
	if ok, _ := db.UserExists(ctx, "bruno"); !ok {
		t.Error("UserExists(bruno) = false")
	}
}

func TestSaveQuestionsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	questions := []Question{
		storedQuestion(validStatement, "B"),
		storedQuestion(validStatement+" Considere ainda a jurisprudência.", "B"),
	}
	ids, dups, err := db.SaveQuestions(ctx, questions)
	if err != nil {
		t.Fatalf("SaveQuestions() error = %v", err)
	}
	if len(ids) != 2 || dups != 0 {
		t.Fatalf("ids=%v dups=%d", ids, dups)
	}

	// Same content again is an expected conflict, not an error
	again := []Question{storedQuestion(validStatement, "B")}
	ids2, dups, err := db.SaveQuestions(ctx, again)
	if err != nil || len(ids2) != 0 || dups != 1 {
		t.Errorf("re-save ids=%v dups=%d err=%v", ids2, dups, err)
	}

	got, err := db.GetQuestion(ctx, ids[0])
	if err != nil {
		t.Fatal(err)
	}
	want := questions[0]
	if got.Statement != want.Statement || got.Answer != "B" || got.Format != FormatMultipleChoice4 || got.Origin != OriginInedita {
		t.Errorf("GetQuestion() = %+v", got)
	}
	if len(got.Options) != 4 || got.Options["B"] != want.Options["B"] {
		t.Errorf("options = %v", got.Options)
	}
	if got.Explanation != want.Explanation || got.OptionComments["A"] == "" || len(got.Tags) != 1 {
		t.Errorf("explanation/comments/tags not restored: %+v", got)
	}

	if _, err := db.GetQuestion(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing question error = %v", err)
	}

	list, err := db.GetQuestions(ctx, []int64{ids[1], 9999, ids[0]})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != ids[1] || list[1].ID != ids[0] {
		t.Errorf("GetQuestions() order = %v", list)
	}

	if ok, _ := db.ContentHashExists(ctx, want.ContentHash); !ok {
		t.Error("ContentHashExists() = false for stored question")
	}
	if ok, _ := db.FingerprintExists(ctx, want.Fingerprint); !ok {
		t.Error("FingerprintExists() = false for stored question")
	}
	if ok, _ := db.ContentHashExists(ctx, "nope"); ok {
		t.Error("ContentHashExists() = true for unknown hash")
	}
}

func TestDedupAgainstDB(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if _, _, err := db.SaveQuestions(ctx, []Question{storedQuestion(validStatement, "B")}); err != nil {
		t.Fatal(err)
	}

	out := NewQuestionDedup(0, db).Filter(ctx, []*Candidate{validCandidate()}, nil)
	if len(out) != 0 {
		t.Errorf("stored question passed dedup")
	}
}

func TestResponsesAndStats(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ids, _, err := db.SaveQuestions(ctx, []Question{
		storedQuestion(validStatement, "B"),
		storedQuestion(stmtLicitacao+" "+stmtPreventiva, "B"),
	})
	if err != nil {
		t.Fatal(err)
	}

	stats, err := db.GetUserStats(ctx, "ana")
	if err != nil || stats.Answered != 0 || stats.Rate != 0 {
		t.Errorf("empty stats = %+v, %v", stats, err)
	}

	r, err := db.RecordResponse(ctx, "ana", ids[0], "B) A conversão depende de requerimento")
	if err != nil {
		t.Fatal(err)
	}
	if !r.IsCorrect || r.SubmittedAnswer != "B" {
		t.Errorf("response = %+v", r)
	}
	if r, _ := db.RecordResponse(ctx, "ana", ids[1], "c"); r.IsCorrect {
		t.Error("wrong answer graded correct")
	}
	if r, _ := db.RecordResponse(ctx, "ana", ids[1], "b"); !r.IsCorrect {
		t.Error("right answer graded wrong")
	}

	if _, err := db.RecordResponse(ctx, "ana", ids[0], " "); !errors.Is(err, ErrNoSelection) {
		t.Errorf("empty answer error = %v", err)
	}
	if _, err := db.RecordResponse(ctx, "ana", 9999, "A"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown question error = %v", err)
	}

	stats, err = db.GetUserStats(ctx, "ana")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Answered != 3 || stats.Correct != 2 || stats.Rate != 66.7 {
		t.Errorf("stats = %+v", stats)
	}

	responses, err := db.GetResponses(ctx, "ana", ids)
	if err != nil {
		t.Fatal(err)
	}
	if len(responses) != 2 || !responses[ids[1]].IsCorrect {
		t.Errorf("latest responses = %+v", responses)
	}

	n, err := db.ResetProgress(ctx, "ana")
	if err != nil || n != 3 {
		t.Errorf("ResetProgress() = %d, %v", n, err)
	}
	if stats, _ := db.GetUserStats(ctx, "ana"); stats.Answered != 0 {
		t.Errorf("stats after reset = %+v", stats)
	}
}

func TestPickUnanswered(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	other := storedQuestion(stmtLicitacao, "A")
	other.Board = "Cebraspe"
	other.Role = "Auditor"
	other.Subject = "Direito Administrativo"
	ids, _, err := db.SaveQuestions(ctx, []Question{storedQuestion(validStatement, "B"), other})
	if err != nil {
		t.Fatal(err)
	}

	picked, err := db.PickUnanswered(ctx, "ana", "FGV", "", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(picked) != 1 || picked[0] != ids[0] {
		t.Errorf("PickUnanswered(FGV) = %v, want [%d]", picked, ids[0])
	}

	picked, _ = db.PickUnanswered(ctx, "ana", "fgv", "auditor", "Aleatório", 10)
	if len(picked) != 2 {
		t.Errorf("board OR role match = %v, want both", picked)
	}

	if _, err := db.RecordResponse(ctx, "ana", ids[0], "B"); err != nil {
		t.Fatal(err)
	}
	picked, _ = db.PickUnanswered(ctx, "ana", "FGV", "Auditor", "", 10)
	if len(picked) != 1 || picked[0] != ids[1] {
		t.Errorf("answered question offered again: %v", picked)
	}
	picked, _ = db.PickUnanswered(ctx, "bruno", "FGV", "Auditor", "", 1)
	if len(picked) != 1 {
		t.Errorf("limit not applied: %v", picked)
	}
}

func TestResetHistory(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	ids, _, _ := db.SaveQuestions(ctx, []Question{storedQuestion(validStatement, "B")})
	db.RecordResponse(ctx, "ana", ids[0], "B")

	if err := db.ResetHistory(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetQuestion(ctx, ids[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("question survived reset: %v", err)
	}
	if stats, _ := db.GetUserStats(ctx, "ana"); stats.Answered != 0 {
		t.Errorf("responses survived reset: %+v", stats)
	}
}

func TestSyllabi(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	s := &Syllabus{
		User:           "ana",
		ExamName:       "TJSP 2025",
		Board:          "Vunesp",
		Role:           "Escrevente",
		Subjects:       []string{"Português", "Direito Penal"},
		Classification: Classify("Vunesp", "Escrevente"),
	}
	if err := db.SaveSyllabus(ctx, s); err != nil {
		t.Fatal(err)
	}
	if s.ID == 0 || s.AnalyzedAt.IsZero() {
		t.Errorf("SaveSyllabus() did not set id/time: %+v", s)
	}
	if err := db.SaveSyllabus(ctx, &Syllabus{User: "ana", ExamName: "TRF 2024", Subjects: []string{"Civil"}}); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetSyllabus(ctx, "ana", s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ExamName != "TJSP 2025" || len(got.Subjects) != 2 || got.Classification.Format != FormatMultipleChoice5 {
		t.Errorf("GetSyllabus() = %+v", got)
	}
	if _, err := db.GetSyllabus(ctx, "bruno", s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("other user's syllabus visible: %v", err)
	}

	list, err := db.ListSyllabi(ctx, "ana")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ExamName != "TRF 2024" {
		t.Errorf("ListSyllabi() = %+v", list)
	}
}

func TestSearchCacheTable(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if _, _, ok, err := db.GetSearch(ctx, "k"); ok || err != nil {
		t.Errorf("empty cache hit=%v err=%v", ok, err)
	}
	if err := db.PutSearch(ctx, "k", "primeiro"); err != nil {
		t.Fatal(err)
	}
	if err := db.PutSearch(ctx, "k", "segundo"); err != nil {
		t.Fatal(err)
	}
	content, createdAt, ok, err := db.GetSearch(ctx, "k")
	if err != nil || !ok || content != "segundo" {
		t.Errorf("GetSearch() = %q, %v, %v", content, ok, err)
	}
	if time.Since(createdAt) > time.Minute {
		t.Errorf("createdAt = %v", createdAt)
	}

	// The table works as the searcher's cache
	searcher := &fakeSearcher{results: map[string][]SearchResult{"súmula": {{Snippet: "Súmula 7 do STJ"}}}}
	cs := NewCachedSearcher(searcher, db)
	cs.Search(ctx, []string{"súmula"}, 3, 100, "ineditas", nil)
	cs.Search(ctx, []string{"súmula"}, 3, 100, "ineditas", nil)
	if len(searcher.calls) != 1 {
		t.Errorf("provider called %d times, want 1", len(searcher.calls))
	}
}

func TestPickUnansweredEmptyFilters(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	blank := storedQuestion(validStatement, "B")
	blank.Board = ""
	blank.Role = ""
	ids, _, err := db.SaveQuestions(ctx, []Question{blank})
	if err != nil || len(ids) != 1 {
		t.Fatalf("SaveQuestions() = %v, %v", ids, err)
	}

	picked, err := db.PickUnanswered(ctx, "ana", "", " ", "Aleatório", 10)
	if err != nil || len(picked) != 0 {
		t.Errorf("no filters drew %v, %v; want nothing", picked, err)
	}
	// an empty board filter must not match the empty stored board
	picked, _ = db.PickUnanswered(ctx, "ana", "", "", "Direito Civil", 10)
	if len(picked) != 0 {
		t.Errorf("subject filter alone drew %v", picked)
	}
	picked, _ = db.PickUnanswered(ctx, "ana", "", "", "processual", 10)
	if len(picked) != 1 {
		t.Errorf("subject filter missed the stored question: %v", picked)
	}
}
