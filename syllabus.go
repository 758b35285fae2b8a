package concursoprep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// ErrEmptySyllabus is returned when there is no edital text to structure
var ErrEmptySyllabus = errors.New("syllabus text is empty")

// MaxSyllabusRunes bounds the edital text sent to the model
const MaxSyllabusRunes = 15000

const syllabusPrompt = "Analise o conteúdo programático do edital abaixo e liste as matérias (disciplinas) cobradas. " +
	"Use nomes curtos de disciplina, sem repetir, sem numeração. " +
	`Responda APENAS com JSON no formato {"materias": ["Direito Constitucional", "..."]}.` + "\n\nEdital:\n"

// StructureSyllabus asks the model for the subject list of an edital and
// returns it with the board and role classification
func StructureSyllabus(ctx context.Context, model ChatModel, examName, board, role, text string) (*Syllabus, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptySyllabus
	}
	text = truncateRunes(text, MaxSyllabusRunes)

	reply, err := model.Complete(ctx, ChatRequest{
		System:      systemPrompt,
		Messages:    []ChatMessage{{Role: "user", Content: syllabusPrompt + text}},
		Temperature: 0.1,
		JSON:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to structure syllabus: %w", err)
	}

	subjects, err := ParseSubjects(reply)
	if err != nil {
		return nil, err
	}
	log.Printf("Syllabus %q structured into %d subjects", examName, len(subjects))

	return &Syllabus{
		ExamName:       strings.TrimSpace(examName),
		Board:          strings.TrimSpace(board),
		Role:           strings.TrimSpace(role),
		Subjects:       subjects,
		Classification: Classify(board, role),
		AnalyzedAt:     time.Now(),
	}, nil
}

// ParseSubjects reads {"materias": [...]} or a bare list from a reply,
// dropping blanks and repeats. Text around the JSON is skipped.
func ParseSubjects(reply string) ([]string, error) {
	var subjects []string
	lastErr := errors.New("no subject list")
	found := scanJSON(stripCodeFences(reply), func(data []byte) bool {
		var err error
		subjects, err = decodeSubjects(data)
		if err != nil {
			lastErr = err
			return false
		}
		return true
	})
	if !found {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, lastErr)
	}
	return subjects, nil
}

func decodeSubjects(data []byte) ([]string, error) {
	var raw json.RawMessage
	if data[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, err
		}
		var ok bool
		if raw, ok = firstField(obj, "materias", "matérias", "disciplinas", "subjects"); !ok {
			return nil, errors.New("missing materias")
		}
	} else {
		raw = data
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		items = []json.RawMessage{raw}
	}
	seen := make(map[string]bool)
	var subjects []string
	for _, item := range items {
		s := rawText(item)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		subjects = append(subjects, s)
	}
	if len(subjects) == 0 {
		return nil, errors.New("empty subject list")
	}
	return subjects, nil
}
