package concursoprep

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultRequestMultiplier is how many candidates are asked per item wanted
	DefaultRequestMultiplier = 2

	// MaxRequestedCandidates caps a single model request
	MaxRequestedCandidates = 20

	// MaxQuantity is the largest battery a caller may request
	MaxQuantity = MaxRequestedCandidates

	searchResultsPerQuery = 5
	searchCharsPerQuery   = 2500
)

// QuizGenerator orchestrates search, generation, dedup and validation of a
// battery of questions. It never writes to the question store.
type QuizGenerator struct {
	models     *Registry
	dedup      *QuestionDedup
	checker    *QuestionChecker
	search     *CachedSearcher
	multiplier int
	logDir     string
	timeout    time.Duration
	rand       func(n int) int
}

// GeneratorOptions configures a QuizGenerator. Zero values take defaults.
type GeneratorOptions struct {
	Index               HashIndex
	Search              *CachedSearcher
	SimilarityThreshold float64
	Checker             CheckerConfig
	RequestMultiplier   int
	LogDir              string // empty disables run transcripts
	Timeout             time.Duration
}

// NewQuizGenerator creates a new quiz generator
func NewQuizGenerator(models *Registry, opts GeneratorOptions) *QuizGenerator {
	multiplier := opts.RequestMultiplier
	if multiplier < 1 {
		multiplier = DefaultRequestMultiplier
	}
	return &QuizGenerator{
		models:     models,
		dedup:      NewQuestionDedup(opts.SimilarityThreshold, opts.Index),
		checker:    NewQuestionChecker(opts.Checker),
		search:     opts.Search,
		multiplier: multiplier,
		logDir:     opts.LogDir,
		timeout:    opts.Timeout,
		rand:       rand.Intn,
	}
}

// Generate produces up to req.Quantity accepted questions ranked by score.
// Fewer survivors than requested is not an error.
func (qg *QuizGenerator) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	if req.Quantity < 1 || req.Quantity > MaxQuantity {
		return nil, fmt.Errorf("quantity must be between 1 and %d, got %d", MaxQuantity, req.Quantity)
	}
	if req.Origin == "" {
		req.Origin = OriginInedita
	}
	if req.Origin == OriginBank {
		return nil, errors.New("stored questions are drawn from the database, not generated")
	}

	model, err := qg.models.Get(req.Model)
	if err != nil {
		return nil, err
	}

	result := &GenerationResult{
		RunID:   uuid.NewString(),
		Subject: qg.pickSubject(req),
	}

	var logger *LLMLogger
	if qg.logDir != "" {
		logger, err = NewLLMLogger(qg.logDir, result.RunID, req)
		if err != nil {
			log.Printf("Failed to open run log: %v", err)
		}
	}
	defer logger.Close()

	log.Printf("Starting generation %s: %d %s questions, %s / %s / %s via %s",
		result.RunID, req.Quantity, req.Origin, req.Board, req.Role, result.Subject, model.Name())

	var searchContext string
	if req.UseWebSearch && qg.search != nil {
		searchContext = qg.search.Search(ctx, searchQueries(req, result.Subject),
			searchResultsPerQuery, searchCharsPerQuery, string(req.Origin), logger)
		result.SearchUsed = searchContext != ""
		VerboseLog("Search context for %s: %d chars", result.RunID, len(searchContext))
	}

	genCtx := ctx
	if qg.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, qg.timeout)
		defer cancel()
	}

	requested := min(req.Quantity*qg.multiplier, MaxRequestedCandidates)
	maker := NewQuestionMaker(model)
	candidates, err := maker.GenerateCandidates(genCtx, req, result.Subject, requested, searchContext, logger)
	if err != nil {
		logger.Logf("Generation failed: %v\n", err)
		return nil, err
	}
	result.RawCount = len(candidates)

	// A rejected candidate never shadows a later rewording of itself
	pool := NewQuestionPool()
	kept := qg.dedup.FilterAccepted(ctx, candidates, func(i int, c *Candidate) bool {
		validation := qg.checker.Validate(c)
		logger.LogQuestionResult(i, validation)
		if validation.Action != ActionAccept {
			result.Rejected++
			VerboseLog("Rejected candidate %d: %s", i, validation.Reason)
			return false
		}
		pool.Add(validation.Question)
		return true
	}, logger)
	result.Duplicates = len(candidates) - len(kept) - result.Rejected
	result.ValidCount = pool.Size()
	result.Questions = pool.Top(req.Quantity)

	log.Printf("Generation %s complete: %d raw, %d duplicates, %d rejected, %d valid, %d returned",
		result.RunID, result.RawCount, result.Duplicates, result.Rejected, result.ValidCount, len(result.Questions))
	logger.Logf("Returned %d of %d requested\n", len(result.Questions), req.Quantity)
	return result, nil
}

// pickSubject draws from req.Subjects when the subject is "Aleatório"
func (qg *QuizGenerator) pickSubject(req GenerationRequest) string {
	if !isRandomChoice(req.Subject) || len(req.Subjects) == 0 {
		return req.Subject
	}
	return req.Subjects[qg.rand(len(req.Subjects))]
}
