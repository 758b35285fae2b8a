package concursoprep

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultSimilarityThreshold is the Jaccard overlap at which two
	// statements count as the same question reworded
	DefaultSimilarityThreshold = 0.5

	// MaxFingerprintTokens caps the token list hashed into a fingerprint
	MaxFingerprintTokens = 100

	minTokenRunes = 4
)

var reWord = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashIndex answers whether a question is already stored
type HashIndex interface {
	ContentHashExists(ctx context.Context, hash string) (bool, error)
	FingerprintExists(ctx context.Context, fingerprint string) (bool, error)
}

// QuestionDedup drops exact and near-duplicate candidates from a batch
type QuestionDedup struct {
	threshold float64
	index     HashIndex
}

// NewQuestionDedup creates a deduplicator. index may be nil when there is
// no persisted bank to check against.
func NewQuestionDedup(threshold float64, index HashIndex) *QuestionDedup {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultSimilarityThreshold
	}
	return &QuestionDedup{threshold: threshold, index: index}
}

// DedupResult represents the result of deduplication
type DedupResult struct {
	IsDuplicate bool
	Reason      string
	DuplicateOf int // batch position of the kept candidate, -1 if none
}

// Threshold returns the similarity threshold in use
func (qd *QuestionDedup) Threshold() float64 {
	return qd.threshold
}

// Filter returns the candidates that are neither duplicates of each other
// nor of stored questions, in their original order. ContentHash and
// Fingerprint are filled in on every candidate it sees.
func (qd *QuestionDedup) Filter(ctx context.Context, candidates []*Candidate, logger *LLMLogger) []*Candidate {
	return qd.FilterAccepted(ctx, candidates, nil, logger)
}

// FilterAccepted is Filter with an acceptance step. A unique candidate is
// kept, and only then compared against later ones, when accept returns
// true. A nil accept keeps every unique candidate.
func (qd *QuestionDedup) FilterAccepted(ctx context.Context, candidates []*Candidate, accept func(pos int, c *Candidate) bool, logger *LLMLogger) []*Candidate {
	type kept struct {
		pos    int
		tokens []string
	}

	seenHash := make(map[string]int)
	accepted := make([]kept, 0, len(candidates))
	out := make([]*Candidate, 0, len(candidates))

	for i, c := range candidates {
		c.ContentHash = ContentHash(c.Statement, c.Answer, c.Subject, c.Topic, c.Board, c.Role)
		c.Fingerprint = Fingerprint(c.Statement)
		tokens := Tokens(c.Statement)

		result := DedupResult{DuplicateOf: -1, Reason: "unique"}
		if first, ok := seenHash[c.ContentHash]; ok {
			result = DedupResult{IsDuplicate: true, Reason: "same content hash in batch", DuplicateOf: first}
		} else if qd.storedDuplicate(ctx, c) {
			result = DedupResult{IsDuplicate: true, Reason: "already in question bank", DuplicateOf: -1}
		} else {
			for _, k := range accepted {
				if sim := Jaccard(tokens, k.tokens); len(tokens) > 0 && sim >= qd.threshold {
					result = DedupResult{
						IsDuplicate: true,
						Reason:      fmt.Sprintf("token overlap %.2f >= %.2f", sim, qd.threshold),
						DuplicateOf: k.pos,
					}
					break
				}
			}
		}

		logger.LogDedupResult(i, result)
		VerboseLog("Candidate %d: duplicate=%v, reason=%s", i, result.IsDuplicate, result.Reason)

		if result.IsDuplicate {
			continue
		}
		if accept != nil && !accept(i, c) {
			continue
		}
		seenHash[c.ContentHash] = i
		accepted = append(accepted, kept{pos: i, tokens: tokens})
		out = append(out, c)
	}
	return out
}

// storedDuplicate checks the persisted bank. Lookup failures count as
// "not stored"; the unique index on content_hash still guards the insert.
func (qd *QuestionDedup) storedDuplicate(ctx context.Context, c *Candidate) bool {
	if qd.index == nil {
		return false
	}
	exists, err := qd.index.ContentHashExists(ctx, c.ContentHash)
	if err != nil {
		log.Printf("Failed to look up content hash: %v", err)
		return false
	}
	if exists {
		return true
	}
	if len(Tokens(c.Statement)) == 0 {
		return false
	}
	exists, err = qd.index.FingerprintExists(ctx, c.Fingerprint)
	if err != nil {
		log.Printf("Failed to look up fingerprint: %v", err)
		return false
	}
	return exists
}

// ContentHash is the strong identity of a question
func ContentHash(statement, answer, subject, topic, board, role string) string {
	parts := []string{
		normalizeText(statement),
		NormalizeAnswer(answer),
		normalizeText(subject),
		normalizeText(topic),
		normalizeText(board),
		normalizeText(role),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Fingerprint hashes the distinctive vocabulary of a statement
func Fingerprint(statement string) string {
	tokens := Tokens(statement)
	if len(tokens) > MaxFingerprintTokens {
		tokens = tokens[:MaxFingerprintTokens]
	}
	sum := sha256.Sum256([]byte(strings.Join(tokens, " ")))
	return hex.EncodeToString(sum[:])
}

// Tokens returns the sorted set of lowercased words with at least four runes
func Tokens(text string) []string {
	words := reWord.FindAllString(strings.ToLower(text), -1)
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) >= minTokenRunes {
			set[w] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Jaccard is |a ∩ b| / |a ∪ b|. Empty sets are similar to nothing.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, w := range a {
		set[w] = struct{}{}
	}
	inter := 0
	union := len(set)
	for _, w := range b {
		if _, ok := set[w]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
