package concursoprep

import (
	"reflect"
	"testing"
)

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "bare letter", raw: "b", want: "B"},
		{name: "padded letter", raw: "  d  ", want: "D"},
		{name: "letter with parenthesis", raw: "B) A prisão é ilegal", want: "B"},
		{name: "letter with dot", raw: "C. Nenhuma das anteriores", want: "C"},
		{name: "letra prefix", raw: "Letra E", want: "E"},
		{name: "alternativa prefix", raw: "Alternativa: (A)", want: "A"},
		{name: "opção prefix", raw: "opção d", want: "D"},
		{name: "certo", raw: "Certo", want: AnswerCerto},
		{name: "errado inside sentence", raw: "O item está ERRADO.", want: AnswerErrado},
		{name: "gabarito certo", raw: "Gabarito: certo", want: AnswerCerto},
		{name: "empty", raw: "   ", want: ""},
		{name: "unrecognized", raw: "talvez", want: "TALVEZ"},
		{name: "out of range letter", raw: "X", want: "X"},
		{name: "accented prefix is not certo", raw: "ÀCERTO", want: "ÀCERTO"},
		{name: "errado before comma", raw: "Errado, pois", want: AnswerErrado},
		{name: "letter glued to digit", raw: "Item 3C", want: "ITEM 3C"},
		{name: "letter after digits and space", raw: "Questão 12 - opção b", want: "B"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAnswer(tt.raw); got != tt.want {
				t.Errorf("NormalizeAnswer(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeAnswerIdempotent(t *testing.T) {
	inputs := []string{"a", "B) texto", "Letra C", "certo", "ERRADO", "", "qualquer coisa", "X", "gabarito: e"}
	for _, in := range inputs {
		once := NormalizeAnswer(in)
		if twice := NormalizeAnswer(once); twice != once {
			t.Errorf("NormalizeAnswer not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeAnswerClosure(t *testing.T) {
	for _, in := range []string{"a", "b)", "Letra c", "(d) prazo", "e", "certo", "errado"} {
		if got := NormalizeAnswer(in); !IsCanonicalAnswer(got) {
			t.Errorf("NormalizeAnswer(%q) = %q, not canonical", in, got)
		}
	}
}

func TestExtractOptionLabel(t *testing.T) {
	tests := []struct {
		name      string
		displayed string
		lettered  bool
		want      string
	}{
		{name: "lettered option", displayed: "B) O juiz pode decretar de ofício", lettered: true, want: "B"},
		{name: "label wins over certo in text", displayed: "C) O ato administrativo está certo", lettered: true, want: "C"},
		{name: "lowercase label", displayed: "a) prazo de cinco dias", lettered: true, want: "A"},
		{name: "parenthesised label", displayed: "(D) competência privativa", lettered: true, want: "D"},
		{name: "certo button", displayed: "Certo", lettered: false, want: AnswerCerto},
		{name: "errado button", displayed: "Errado", lettered: false, want: AnswerErrado},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractOptionLabel(tt.displayed, tt.lettered); got != tt.want {
				t.Errorf("ExtractOptionLabel(%q, %v) = %q, want %q", tt.displayed, tt.lettered, got, tt.want)
			}
		})
	}
}

func TestIsCorrect(t *testing.T) {
	tests := []struct {
		name      string
		submitted string
		key       string
		want      bool
	}{
		{name: "option text against letter key", submitted: "B) A prisão preventiva exige fundamentação", key: "B", want: true},
		{name: "wrong option", submitted: "C) A prisão preventiva dispensa fundamentação", key: "B", want: false},
		{name: "key with prefix", submitted: "d", key: "Letra D", want: true},
		{name: "true false", submitted: "certo", key: "CERTO", want: true},
		{name: "true false mismatch", submitted: "errado", key: "Certo", want: false},
		{name: "empty submission", submitted: "", key: "", want: false},
		{name: "garbage matches garbage key", submitted: "talvez", key: "talvez", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsCorrect(tt.submitted, tt.key); got != tt.want {
				t.Errorf("IsCorrect(%q, %q) = %v, want %v", tt.submitted, tt.key, got, tt.want)
			}
		})
	}
}

func TestDisplayOptions(t *testing.T) {
	q := &Question{Options: map[string]string{"B": "segunda", "A": "primeira", "C": "terceira"}}
	want := []string{"A) primeira", "B) segunda", "C) terceira"}
	if got := DisplayOptions(q); !reflect.DeepEqual(got, want) {
		t.Errorf("DisplayOptions() = %v, want %v", got, want)
	}

	tf := &Question{Format: FormatTrueFalse}
	if got := DisplayOptions(tf); !reflect.DeepEqual(got, []string{"Certo", "Errado"}) {
		t.Errorf("DisplayOptions() for true/false = %v", got)
	}

	// rendered options map back to their own label
	for _, option := range DisplayOptions(q) {
		label := ExtractOptionLabel(option, true)
		if _, ok := q.Options[label]; !ok {
			t.Errorf("label %q of %q not in options", label, option)
		}
	}
}
