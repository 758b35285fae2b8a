package concursoprep

import "time"

// Format discriminates how a question is answered
type Format string

const (
	FormatMultipleChoice4 Format = "multipla_escolha_4"
	FormatMultipleChoice5 Format = "multipla_escolha_5"
	FormatTrueFalse       Format = "certo_errado"
)

// IsTrueFalse reports whether the format is judged Certo/Errado
func (f Format) IsTrueFalse() bool {
	return f == FormatTrueFalse
}

// Origin tells where a batch of questions comes from
type Origin string

const (
	OriginInedita Origin = "ineditas" // invented by the model in the board's style
	OriginReal    Origin = "reais"    // reconstructed past exam items
	OriginBank    Origin = "banco"    // drawn from questions already stored
)

// Canonical answer tokens
const (
	AnswerCerto  = "CERTO"
	AnswerErrado = "ERRADO"
)

// Question is a candidate that passed the checker. It is never mutated
// after insertion.
type Question struct {
	ID             int64             `json:"id,omitempty"`
	Board          string            `json:"board"`
	Role           string            `json:"role"`
	Subject        string            `json:"subject"`
	Topic          string            `json:"topic"`
	Statement      string            `json:"statement"`
	Options        map[string]string `json:"options"`
	Answer         string            `json:"answer"`
	Explanation    string            `json:"explanation"`
	OptionComments map[string]string `json:"option_comments,omitempty"`
	Origin         Origin            `json:"origin"`
	Source         string            `json:"source"`
	Difficulty     int               `json:"difficulty"`
	Tags           []string          `json:"tags,omitempty"`
	Format         Format            `json:"format"`
	IsRealExam     bool              `json:"is_real_exam"`
	ExamYear       int               `json:"exam_year"`
	ContentHash    string            `json:"content_hash"`
	Fingerprint    string            `json:"fingerprint"`
	Score          float64           `json:"score,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// OptionLabels returns the option labels in display order
func (q *Question) OptionLabels() []string {
	return sortedLabels(q.Options)
}

// Response is a single answer submitted by a user
type Response struct {
	ID              int64     `json:"id"`
	User            string    `json:"user"`
	QuestionID      int64     `json:"question_id"`
	SubmittedAnswer string    `json:"submitted_answer"`
	IsCorrect       bool      `json:"is_correct"`
	Timestamp       time.Time `json:"timestamp"`
}

// Syllabus is an edital reduced to board, role and subject list
type Syllabus struct {
	ID             int64          `json:"id"`
	User           string         `json:"user"`
	ExamName       string         `json:"exam_name"`
	Board          string         `json:"board"`
	Role           string         `json:"role"`
	Subjects       []string       `json:"materias"`
	Classification Classification `json:"classificacao"`
	AnalyzedAt     time.Time      `json:"analyzed_at"`
}

// UserStats summarises a user's answer history
type UserStats struct {
	Answered int     `json:"answered"`
	Correct  int     `json:"correct"`
	Rate     float64 `json:"rate"` // percentage, one decimal
}

// GenerationRequest represents a request to generate questions
type GenerationRequest struct {
	Quantity     int      `json:"quantity"`
	Origin       Origin   `json:"origin"`
	Board        string   `json:"board"`
	Role         string   `json:"role"`
	ExamName     string   `json:"exam_name,omitempty"`
	Subject      string   `json:"subject"`
	Topic        string   `json:"topic"`
	Subjects     []string `json:"subjects,omitempty"` // drawn from when Subject is "Aleatório"
	UseWebSearch bool     `json:"use_web_search"`
	Model        string   `json:"model"`
}

// GenerationResult is what the orchestrator hands back to its caller
type GenerationResult struct {
	RunID      string     `json:"run_id"`
	Subject    string     `json:"subject"`
	Questions  []Question `json:"questions"`
	RawCount   int        `json:"raw_count"`
	ValidCount int        `json:"valid_count"`
	Duplicates int        `json:"duplicates"`
	Rejected   int        `json:"rejected"`
	SearchUsed bool       `json:"search_used"`
}
