package concursoprep

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrUserExists is returned when a user name is already taken
	ErrUserExists = errors.New("user already exists")

	// ErrNoSelection is returned when an answer is submitted with nothing chosen
	ErrNoSelection = errors.New("no answer selected")
)

// DB is the question bank
type DB struct {
	db *sql.DB
}

// OpenDB opens a new database connection and creates the tables
func OpenDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite3 does not take concurrent writers
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	d := &DB{db: db}
	if err := d.CreateTables(); err != nil {
		db.Close()
		return nil, err
	}
	logTag("DB", "Database ready at %s", dbPath)
	return d, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	return d.db.Close()
}

// CreateTables creates the necessary tables if they don't exist
func (d *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			name TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			board TEXT NOT NULL,
			role TEXT NOT NULL,
			subject TEXT NOT NULL,
			topic TEXT NOT NULL,
			statement TEXT NOT NULL,
			options_json TEXT NOT NULL,
			answer_key TEXT NOT NULL,
			explanation_json TEXT NOT NULL,
			origin_type TEXT NOT NULL,
			source_label TEXT NOT NULL,
			difficulty INTEGER NOT NULL,
			tags_json TEXT NOT NULL,
			format TEXT NOT NULL,
			is_real_exam INTEGER NOT NULL,
			exam_year INTEGER NOT NULL,
			content_hash TEXT NOT NULL UNIQUE,
			fingerprint TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_questions_fingerprint ON questions(fingerprint)`,
		`CREATE TABLE IF NOT EXISTS responses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user TEXT NOT NULL,
			question_id INTEGER NOT NULL,
			submitted_answer TEXT NOT NULL,
			is_correct INTEGER NOT NULL,
			timestamp DATETIME NOT NULL,
			FOREIGN KEY (question_id) REFERENCES questions(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_responses_user ON responses(user, question_id)`,
		`CREATE TABLE IF NOT EXISTS saved_syllabi (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user TEXT NOT NULL,
			exam_name TEXT NOT NULL,
			board TEXT NOT NULL,
			role TEXT NOT NULL,
			subjects_json TEXT NOT NULL,
			analyzed_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS search_cache (
			key TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// CreateUser registers a new user name
func (d *DB) CreateUser(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("user name is required")
	}
	_, err := d.db.ExecContext(ctx, "INSERT INTO users (name) VALUES (?)", name)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrUserExists, name)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UserExists reports whether name is registered
func (d *DB) UserExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE name = ?)", name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user: %w", err)
	}
	return exists, nil
}

// ListUsers returns all user names in alphabetical order
func (d *DB) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT name FROM users ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// InsertQuestion stores q and sets its ID. inserted is false when a
// question with the same content hash already exists.
func (d *DB) InsertQuestion(ctx context.Context, q *Question) (inserted bool, err error) {
	optionsJSON, err := marshalJSON(q.Options, "{}")
	if err != nil {
		return false, err
	}
	explanationJSON, err := json.Marshal(storedExplanation{Text: q.Explanation, OptionComments: q.OptionComments})
	if err != nil {
		return false, fmt.Errorf("failed to marshal explanation: %w", err)
	}
	tagsJSON, err := marshalJSON(q.Tags, "[]")
	if err != nil {
		return false, err
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO questions (board, role, subject, topic, statement, options_json, answer_key,
			explanation_json, origin_type, source_label, difficulty, tags_json, format,
			is_real_exam, exam_year, content_hash, fingerprint, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING`,
		q.Board, q.Role, q.Subject, q.Topic, q.Statement, optionsJSON, q.Answer,
		string(explanationJSON), string(q.Origin), q.Source, q.Difficulty, tagsJSON, string(q.Format),
		q.IsRealExam, q.ExamYear, q.ContentHash, q.Fingerprint, q.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert question: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to insert question: %w", err)
	}
	if n == 0 {
		return false, nil
	}
	q.ID, err = res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to read question id: %w", err)
	}
	return true, nil
}

// SaveQuestions inserts the accepted questions one after the other and
// returns the ids of the new rows. Hash conflicts are counted, not failed.
func (d *DB) SaveQuestions(ctx context.Context, questions []Question) (ids []int64, duplicates int, err error) {
	for i := range questions {
		inserted, err := d.InsertQuestion(ctx, &questions[i])
		if err != nil {
			return ids, duplicates, err
		}
		if !inserted {
			duplicates++
			continue
		}
		ids = append(ids, questions[i].ID)
	}
	logTag("DB", "Saved %d questions, %d already in bank", len(ids), duplicates)
	return ids, duplicates, nil
}

type storedExplanation struct {
	Text           string            `json:"texto"`
	OptionComments map[string]string `json:"comentarios,omitempty"`
}

const questionColumns = `id, board, role, subject, topic, statement, options_json, answer_key,
	explanation_json, origin_type, source_label, difficulty, tags_json, format,
	is_real_exam, exam_year, content_hash, fingerprint, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row rowScanner) (*Question, error) {
	var q Question
	var optionsJSON, explanationJSON, tagsJSON, origin, format string
	err := row.Scan(&q.ID, &q.Board, &q.Role, &q.Subject, &q.Topic, &q.Statement, &optionsJSON,
		&q.Answer, &explanationJSON, &origin, &q.Source, &q.Difficulty, &tagsJSON, &format,
		&q.IsRealExam, &q.ExamYear, &q.ContentHash, &q.Fingerprint, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	q.Origin = Origin(origin)
	q.Format = Format(format)

	if err := json.Unmarshal([]byte(optionsJSON), &q.Options); err != nil {
		return nil, fmt.Errorf("failed to unmarshal options: %w", err)
	}
	var expl storedExplanation
	if err := json.Unmarshal([]byte(explanationJSON), &expl); err != nil {
		return nil, fmt.Errorf("failed to unmarshal explanation: %w", err)
	}
	q.Explanation = expl.Text
	q.OptionComments = expl.OptionComments
	if err := json.Unmarshal([]byte(tagsJSON), &q.Tags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
	}
	return &q, nil
}

// GetQuestion retrieves a question by ID
func (d *DB) GetQuestion(ctx context.Context, id int64) (*Question, error) {
	row := d.db.QueryRowContext(ctx, "SELECT "+questionColumns+" FROM questions WHERE id = ?", id)
	q, err := scanQuestion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("question %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	return q, nil
}

// GetQuestions retrieves questions in the order of ids, skipping missing ones
func (d *DB) GetQuestions(ctx context.Context, ids []int64) ([]Question, error) {
	out := make([]Question, 0, len(ids))
	for _, id := range ids {
		q, err := d.GetQuestion(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *q)
	}
	return out, nil
}

// ContentHashExists implements HashIndex
func (d *DB) ContentHashExists(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM questions WHERE content_hash = ?)", hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check content hash: %w", err)
	}
	return exists, nil
}

// FingerprintExists implements HashIndex
func (d *DB) FingerprintExists(ctx context.Context, fingerprint string) (bool, error) {
	var exists bool
	err := d.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM questions WHERE fingerprint = ?)", fingerprint).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check fingerprint: %w", err)
	}
	return exists, nil
}

// PickUnanswered draws up to limit random stored questions matching board,
// role or subject that user has not answered yet. Empty filters are
// ignored; with no filter at all nothing is drawn.
func (d *DB) PickUnanswered(ctx context.Context, user, board, role, subject string, limit int) ([]int64, error) {
	if isRandomChoice(subject) {
		subject = ""
	}

	var conds []string
	var args []any
	for _, f := range []struct{ column, value string }{
		{"board", board}, {"role", role}, {"subject", subject},
	} {
		if v := strings.TrimSpace(f.value); v != "" {
			conds = append(conds, f.column+" LIKE ?")
			args = append(args, "%"+v+"%")
		}
	}
	if len(conds) == 0 {
		return nil, nil
	}
	args = append(args, user, limit)

	rows, err := d.db.QueryContext(ctx, `
		SELECT id FROM questions
		WHERE (`+strings.Join(conds, " OR ")+`)
		AND id NOT IN (SELECT question_id FROM responses WHERE user = ?)
		ORDER BY RANDOM() LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pick questions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan question id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordResponse stores a user's answer and grades it against the gabarito
func (d *DB) RecordResponse(ctx context.Context, user string, questionID int64, submitted string) (*Response, error) {
	if strings.TrimSpace(submitted) == "" {
		return nil, ErrNoSelection
	}
	q, err := d.GetQuestion(ctx, questionID)
	if err != nil {
		return nil, err
	}

	r := &Response{
		User:            user,
		QuestionID:      questionID,
		SubmittedAnswer: NormalizeAnswer(submitted),
		Timestamp:       time.Now(),
	}
	r.IsCorrect = IsCorrect(r.SubmittedAnswer, q.Answer)

	res, err := d.db.ExecContext(ctx,
		"INSERT INTO responses (user, question_id, submitted_answer, is_correct, timestamp) VALUES (?, ?, ?, ?, ?)",
		r.User, r.QuestionID, r.SubmittedAnswer, r.IsCorrect, r.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record response: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("failed to read response id: %w", err)
	}
	return r, nil
}

// GetResponses returns the latest response of user per question among ids
func (d *DB) GetResponses(ctx context.Context, user string, ids []int64) (map[int64]Response, error) {
	out := make(map[int64]Response)
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, user)
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := d.db.QueryContext(ctx,
		"SELECT id, user, question_id, submitted_answer, is_correct, timestamp FROM responses WHERE user = ? AND question_id IN ("+placeholders+") ORDER BY id",
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get responses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var r Response
		if err := rows.Scan(&r.ID, &r.User, &r.QuestionID, &r.SubmittedAnswer, &r.IsCorrect, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan response: %w", err)
		}
		out[r.QuestionID] = r
	}
	return out, rows.Err()
}

// GetUserStats summarises a user's answers
func (d *DB) GetUserStats(ctx context.Context, user string) (UserStats, error) {
	var s UserStats
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(is_correct), 0) FROM responses WHERE user = ?", user,
	).Scan(&s.Answered, &s.Correct)
	if err != nil {
		return s, fmt.Errorf("failed to get user stats: %w", err)
	}
	if s.Answered > 0 {
		s.Rate = float64(int(float64(s.Correct)/float64(s.Answered)*1000+0.5)) / 10
	}
	return s, nil
}

// ResetProgress deletes every response of user
func (d *DB) ResetProgress(ctx context.Context, user string) (int64, error) {
	res, err := d.db.ExecContext(ctx, "DELETE FROM responses WHERE user = ?", user)
	if err != nil {
		return 0, fmt.Errorf("failed to reset progress: %w", err)
	}
	return res.RowsAffected()
}

// ResetHistory wipes all responses and questions
func (d *DB) ResetHistory(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reset: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{"DELETE FROM responses", "DELETE FROM questions"} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("failed to reset history: %w", err)
		}
	}
	return tx.Commit()
}

type storedSubjects struct {
	Subjects       []string       `json:"materias"`
	Classification Classification `json:"classificacao"`
}

// SaveSyllabus stores a structured edital and sets its ID
func (d *DB) SaveSyllabus(ctx context.Context, s *Syllabus) error {
	data, err := json.Marshal(storedSubjects{Subjects: s.Subjects, Classification: s.Classification})
	if err != nil {
		return fmt.Errorf("failed to marshal subjects: %w", err)
	}
	if s.AnalyzedAt.IsZero() {
		s.AnalyzedAt = time.Now()
	}
	res, err := d.db.ExecContext(ctx,
		"INSERT INTO saved_syllabi (user, exam_name, board, role, subjects_json, analyzed_at) VALUES (?, ?, ?, ?, ?, ?)",
		s.User, s.ExamName, s.Board, s.Role, string(data), s.AnalyzedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save syllabus: %w", err)
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("failed to read syllabus id: %w", err)
	}
	return nil
}

func scanSyllabus(row rowScanner) (*Syllabus, error) {
	var s Syllabus
	var data string
	if err := row.Scan(&s.ID, &s.User, &s.ExamName, &s.Board, &s.Role, &data, &s.AnalyzedAt); err != nil {
		return nil, err
	}
	var stored storedSubjects
	if err := json.Unmarshal([]byte(data), &stored); err != nil {
		return nil, fmt.Errorf("failed to unmarshal subjects: %w", err)
	}
	s.Subjects = stored.Subjects
	s.Classification = stored.Classification
	return &s, nil
}

// GetSyllabus retrieves a syllabus owned by user
func (d *DB) GetSyllabus(ctx context.Context, user string, id int64) (*Syllabus, error) {
	row := d.db.QueryRowContext(ctx,
		"SELECT id, user, exam_name, board, role, subjects_json, analyzed_at FROM saved_syllabi WHERE id = ? AND user = ?",
		id, user,
	)
	s, err := scanSyllabus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("syllabus %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get syllabus: %w", err)
	}
	return s, nil
}

// ListSyllabi returns the user's syllabi, newest first
func (d *DB) ListSyllabi(ctx context.Context, user string) ([]Syllabus, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, user, exam_name, board, role, subjects_json, analyzed_at FROM saved_syllabi WHERE user = ? ORDER BY id DESC",
		user,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list syllabi: %w", err)
	}
	defer rows.Close()

	var out []Syllabus
	for rows.Next() {
		s, err := scanSyllabus(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan syllabus: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// GetSearch implements SearchCache
func (d *DB) GetSearch(ctx context.Context, key string) (string, time.Time, bool, error) {
	var content string
	var createdAt time.Time
	err := d.db.QueryRowContext(ctx, "SELECT content, created_at FROM search_cache WHERE key = ?", key).Scan(&content, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("failed to read search cache: %w", err)
	}
	return content, createdAt, true, nil
}

// PutSearch implements SearchCache, refreshing a stale entry in place
func (d *DB) PutSearch(ctx context.Context, key, content string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO search_cache (key, content, created_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET content = excluded.content, created_at = excluded.created_at`,
		key, content, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to write search cache: %w", err)
	}
	return nil
}

func marshalJSON(v any, empty string) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
