package concursoprep

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ValidationAction represents what the checker decided to do
type ValidationAction string

const (
	ActionAccept ValidationAction = "accept"
	ActionReject ValidationAction = "reject"
)

// ValidationResult represents the result of checking a candidate
type ValidationResult struct {
	Action   ValidationAction
	Reason   string
	Score    float64
	Question *Question // set when accepted
}

// CheckerConfig holds the acceptance thresholds. They were never settled
// across versions of the app, hence configurable.
type CheckerConfig struct {
	MinStatementLen   int
	MinExplanationLen int
	MinOptionLen      int
	RequireCitation   bool
}

// DefaultCheckerConfig returns the thresholds used when nothing is configured
func DefaultCheckerConfig() CheckerConfig {
	return CheckerConfig{
		MinStatementLen:   150,
		MinExplanationLen: 250,
		MinOptionLen:      8,
		RequireCitation:   true,
	}
}

var (
	reCitation = regexp.MustCompile(`(?i)(\bSTF\b|\bSTJ\b|\bTST\b|\bTSE\b|\bart\.|\bartigo|\bleis?\b|\bc[óo]digo|\bs[úu]mula|\bCF/88|constitui[çc][ãa]o|\b(tema|re|resp|hc|informativo)\s*(n[º°o.]?\s*)?\d+)`)

	reJurisprudence = regexp.MustCompile(`(?i)(\bSTF\b|\bSTJ\b|\b(tema|re|resp|are|hc|rhc|adi|adc|adpf|ms|informativo|s[úu]mula(\s+vinculante)?)\s*(n[º°o.]?\s*)?\d+)`)

	reDistractor = regexp.MustCompile(`(?i)(exceto|salvo|ressalvad|vedad|prazo|\bdias\b|compet[êe]ncia|privativ|exclusiv)`)
)

var genericOpeners = []string{
	"assinale a alternativa",
	"marque a opção",
	"marque a alternativa",
	"é correto afirmar que",
	"com relação ao tema",
	"sobre o tema",
	"julgue o item a seguir",
}

// QuestionChecker applies heuristic acceptance rules to candidates
type QuestionChecker struct {
	cfg CheckerConfig
}

// NewQuestionChecker creates a checker; zero thresholds take the defaults
func NewQuestionChecker(cfg CheckerConfig) *QuestionChecker {
	def := DefaultCheckerConfig()
	if cfg.MinStatementLen <= 0 {
		cfg.MinStatementLen = def.MinStatementLen
	}
	if cfg.MinExplanationLen <= 0 {
		cfg.MinExplanationLen = def.MinExplanationLen
	}
	if cfg.MinOptionLen <= 0 {
		cfg.MinOptionLen = def.MinOptionLen
	}
	return &QuestionChecker{cfg: cfg}
}

// Validate accepts or rejects a candidate. Accepted candidates come back
// promoted to a Question carrying their score.
func (qc *QuestionChecker) Validate(c *Candidate) ValidationResult {
	if reason := qc.rejectReason(c); reason != "" {
		return ValidationResult{Action: ActionReject, Reason: reason}
	}
	q := c.promote()
	q.Score = Score(q)
	return ValidationResult{Action: ActionAccept, Reason: "passed checks", Score: q.Score, Question: q}
}

func (qc *QuestionChecker) rejectReason(c *Candidate) string {
	if n := runeLen(c.Statement); n < qc.cfg.MinStatementLen {
		return fmt.Sprintf("statement too short (%d < %d)", n, qc.cfg.MinStatementLen)
	}

	answer := NormalizeAnswer(c.Answer)
	if !IsCanonicalAnswer(answer) {
		return fmt.Sprintf("unrecognized answer key %q", c.Answer)
	}

	if c.Format.IsTrueFalse() {
		if len(c.Options) > 0 {
			return "true/false item must not carry options"
		}
		if answer != AnswerCerto && answer != AnswerErrado {
			return fmt.Sprintf("true/false item answered %s", answer)
		}
	} else {
		if len(c.Options) < 2 {
			return fmt.Sprintf("multiple choice needs at least 2 options, got %d", len(c.Options))
		}
		for _, label := range sortedLabels(c.Options) {
			if n := runeLen(c.Options[label]); n < qc.cfg.MinOptionLen {
				return fmt.Sprintf("option %s too short (%d < %d)", label, n, qc.cfg.MinOptionLen)
			}
		}
		if _, ok := c.Options[answer]; !ok {
			return fmt.Sprintf("answer %s is not one of the options", answer)
		}
	}

	if n := runeLen(c.Explanation); n < qc.cfg.MinExplanationLen {
		return fmt.Sprintf("explanation too short (%d < %d)", n, qc.cfg.MinExplanationLen)
	}
	if qc.cfg.RequireCitation && !HasCitation(c.Explanation) {
		return "explanation cites no law or precedent"
	}
	return ""
}

// Score ranks accepted questions; it never rejects
func Score(q *Question) float64 {
	score := capped(runeLen(q.Statement), 800) * 30
	score += capped(runeLen(q.Explanation), 1200) * 30

	if HasJurisprudence(q.Explanation) {
		score += 20
	}
	for _, text := range q.Options {
		if reDistractor.MatchString(text) {
			score += 10
			break
		}
	}

	opening := strings.ToLower(strings.TrimSpace(q.Statement))
	for _, generic := range genericOpeners {
		if strings.HasPrefix(opening, generic) {
			score -= 15
			break
		}
	}
	return score
}

// HasCitation reports whether text cites legislation or case law
func HasCitation(text string) bool {
	return reCitation.MatchString(text)
}

// HasJurisprudence reports whether text cites a court or a numbered precedent
func HasJurisprudence(text string) bool {
	return reJurisprudence.MatchString(text)
}

func capped(n, limit int) float64 {
	if n > limit {
		n = limit
	}
	return float64(n) / float64(limit)
}

func runeLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
