package concursoprep

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestParseSubjects(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"object", `{"materias": ["Direito Constitucional", "Português"]}`, []string{"Direito Constitucional", "Português"}},
		{"accented key in fence", "```json\n{\"matérias\": [\"Raciocínio Lógico\"]}\n```", []string{"Raciocínio Lógico"}},
		{"disciplinas key", `Segue: {"disciplinas": ["Informática"]}`, []string{"Informática"}},
		{"bare array", `["Direito Penal", " direito penal ", "", "Direito Civil"]`, []string{"Direito Penal", "Direito Civil"}},
		{"single string", `{"materias": "Contabilidade"}`, []string{"Contabilidade"}},
		{"brace before json", `Nota {x}: {"materias": ["Direito Tributário"]}`, []string{"Direito Tributário"}},
		{"unclosed bracket before json", `[obs: {"materias": ["Economia"]}`, []string{"Economia"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSubjects(tt.reply)
			if err != nil {
				t.Fatalf("ParseSubjects() error = %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("ParseSubjects() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseSubjectsInvalid(t *testing.T) {
	for _, reply := range []string{"nenhuma matéria", `{"materias": [`, `{"cargo": "Analista"}`, `{"materias": []}`} {
		if _, err := ParseSubjects(reply); !errors.Is(err, ErrInvalidJSON) {
			t.Errorf("ParseSubjects(%q) error = %v, want ErrInvalidJSON", reply, err)
		}
	}
}

func TestStructureSyllabus(t *testing.T) {
	model := &fakeChat{replies: []string{`{"materias": ["Língua Portuguesa", "Direito Administrativo"]}`}}
	text := "CONTEÚDO PROGRAMÁTICO " + strings.Repeat("ã", MaxSyllabusRunes)

	s, err := StructureSyllabus(context.Background(), model, " TJSP 2025 ", "Vunesp", "Escrevente Técnico", text)
	if err != nil {
		t.Fatalf("StructureSyllabus() error = %v", err)
	}
	if s.ExamName != "TJSP 2025" || len(s.Subjects) != 2 {
		t.Errorf("syllabus = %+v", s)
	}
	if s.Classification.Format != FormatMultipleChoice5 || s.Classification.Difficulty != 3 {
		t.Errorf("classification = %+v", s.Classification)
	}

	req := model.requests[0]
	if req.Temperature != 0.1 || !req.JSON {
		t.Errorf("request temperature=%v json=%v", req.Temperature, req.JSON)
	}
	sent := strings.TrimPrefix(req.Messages[0].Content, syllabusPrompt)
	if n := len([]rune(sent)); n != MaxSyllabusRunes {
		t.Errorf("sent %d runes of edital, want %d", n, MaxSyllabusRunes)
	}
}

func TestStructureSyllabusErrors(t *testing.T) {
	model := &fakeChat{}
	if _, err := StructureSyllabus(context.Background(), model, "x", "", "", "  \n "); !errors.Is(err, ErrEmptySyllabus) {
		t.Errorf("blank text error = %v", err)
	}
	if len(model.requests) != 0 {
		t.Error("blank text reached the model")
	}

	failing := &fakeChat{err: errors.New("timeout")}
	if _, err := StructureSyllabus(context.Background(), failing, "x", "", "", "Português"); err == nil {
		t.Error("provider failure not reported")
	}
}
