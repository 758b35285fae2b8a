package concursoprep

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LLMLogger writes the transcript of one generation run to its own file.
// All methods are safe on a nil logger.
type LLMLogger struct {
	file  *os.File
	mu    sync.Mutex
	runID string
}

// NewLLMLogger creates dir/<runID>.log and writes the request header
func NewLLMLogger(dir, runID string, req GenerationRequest) (*LLMLogger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("%s.log", runID))
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}

	logger := &LLMLogger{file: file, runID: runID}

	logger.Logf("=== Generation Run %s ===\n", runID)
	logger.Logf("Origin: %s | Model: %s\n", req.Origin, req.Model)
	logger.Logf("Board: %s | Role: %s | Exam: %s\n", req.Board, req.Role, req.ExamName)
	logger.Logf("Subject: %s | Topic: %s\n", req.Subject, req.Topic)
	logger.Logf("Quantity: %d | Web search: %v\n", req.Quantity, req.UseWebSearch)
	logger.Logf("Started: %s\n\n", time.Now().Format(time.RFC3339))

	return logger, nil
}

// Logf writes a formatted log entry with timestamp
func (ll *LLMLogger) Logf(format string, args ...interface{}) {
	if ll == nil {
		return
	}
	ll.mu.Lock()
	defer ll.mu.Unlock()
	if ll.file == nil {
		return
	}

	timestamp := time.Now().Format("15:04:05.000")
	fmt.Fprintf(ll.file, "[%s] %s", timestamp, fmt.Sprintf(format, args...))
	ll.file.Sync()
}

// LogLLMRequest logs the prompt sent to a provider
func (ll *LLMLogger) LogLLMRequest(model, prompt string) {
	ll.Logf("--- request (%s) ---\n%s\n\n", model, prompt)
}

// LogLLMResponse logs the raw text a provider returned
func (ll *LLMLogger) LogLLMResponse(model, response string) {
	ll.Logf("--- response (%s) ---\n%s\n\n", model, response)
}

// LogSearch logs one web-search lookup
func (ll *LLMLogger) LogSearch(query string, cached bool, chars int) {
	ll.Logf("search %q cached=%v chars=%d\n", query, cached, chars)
}

// LogQuestionResult logs the checker's decision for a candidate
func (ll *LLMLogger) LogQuestionResult(pos int, result ValidationResult) {
	ll.Logf("candidate %d: %s - %s (score %.1f)\n", pos, result.Action, result.Reason, result.Score)
}

// LogDedupResult logs the result of deduplication
func (ll *LLMLogger) LogDedupResult(pos int, result DedupResult) {
	if result.IsDuplicate {
		ll.Logf("candidate %d: DUPLICATE of %d - %s\n", pos, result.DuplicateOf, result.Reason)
	} else {
		ll.Logf("candidate %d: UNIQUE\n", pos)
	}
}

// Close writes the footer and closes the file
func (ll *LLMLogger) Close() error {
	if ll == nil {
		return nil
	}
	ll.Logf("=== Run %s complete: %s ===\n", ll.runID, time.Now().Format(time.RFC3339))

	ll.mu.Lock()
	defer ll.mu.Unlock()
	if ll.file == nil {
		return nil
	}
	err := ll.file.Close()
	ll.file = nil
	return err
}
