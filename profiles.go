package concursoprep

import "strings"

// Classification is the exam style derived from board and role names
type Classification struct {
	Format     Format `json:"formato"`
	Difficulty int    `json:"dificuldade"`
	Style      string `json:"estilo,omitempty"`
}

type boardProfile struct {
	patterns []string
	format   Format
	style    string
}

type roleProfile struct {
	patterns   []string
	difficulty int
}

// Matched by substring against the lowercased board name, first hit wins.
var boardProfiles = []boardProfile{
	{[]string{"cebraspe", "cespe"}, FormatTrueFalse, "afirmativas longas para julgamento, pegadinhas de exceção"},
	{[]string{"quadrix"}, FormatTrueFalse, "afirmativas objetivas para julgamento"},
	{[]string{"fgv"}, FormatMultipleChoice5, "casos práticos extensos, interpretação"},
	{[]string{"vunesp"}, FormatMultipleChoice5, "literalidade da lei, alternativas curtas"},
	{[]string{"fcc", "carlos chagas"}, FormatMultipleChoice5, "letra da lei e súmulas"},
	{[]string{"ibfc", "aocp", "idecan"}, FormatMultipleChoice4, "conceitual, alternativas diretas"},
}

var roleProfiles = []roleProfile{
	{[]string{"juiz", "magistratura", "promotor", "procurador", "defensor", "delegado"}, 5},
	{[]string{"auditor", "analista", "perito", "fiscal"}, 4},
	{[]string{"escrivão", "escrivao", "investigador", "técnico", "tecnico", "oficial"}, 3},
	{[]string{"agente", "soldado", "guarda", "auxiliar", "assistente"}, 2},
}

// Classify looks board and role up in the static profile tables
func Classify(board, role string) Classification {
	c := Classification{Format: FormatMultipleChoice5, Difficulty: 3}

	b := strings.ToLower(board)
	for _, p := range boardProfiles {
		if containsAny(b, p.patterns) {
			c.Format = p.format
			c.Style = p.style
			break
		}
	}

	r := strings.ToLower(role)
	for _, p := range roleProfiles {
		if containsAny(r, p.patterns) {
			c.Difficulty = p.difficulty
			break
		}
	}
	return c
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
