package concursoprep

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		board, role string
		format      Format
		difficulty  int
	}{
		{"Cebraspe", "Analista Judiciário", FormatTrueFalse, 4},
		{"CESPE/UnB", "Agente de Polícia", FormatTrueFalse, 2},
		{"FGV", "Juiz Substituto", FormatMultipleChoice5, 5},
		{"Fundação Carlos Chagas", "Técnico Judiciário", FormatMultipleChoice5, 3},
		{"IBFC", "Soldado", FormatMultipleChoice4, 2},
		{"Banca Municipal", "Cargo Único", FormatMultipleChoice5, 3},
		{"", "", FormatMultipleChoice5, 3},
	}
	for _, tt := range tests {
		t.Run(tt.board+"/"+tt.role, func(t *testing.T) {
			got := Classify(tt.board, tt.role)
			if got.Format != tt.format || got.Difficulty != tt.difficulty {
				t.Errorf("Classify(%q, %q) = %+v, want %s level %d", tt.board, tt.role, got, tt.format, tt.difficulty)
			}
		})
	}

	if Classify("FGV", "").Style == "" {
		t.Error("known board carries no style")
	}
}
