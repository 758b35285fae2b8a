package concursoprep

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
)

var (
	// standalone words with Unicode-aware boundaries
	reCerto  = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])CERTO(?:[^\p{L}\p{N}]|$)`)
	reErrado = regexp.MustCompile(`(?:^|[^\p{L}\p{N}])ERRADO(?:[^\p{L}\p{N}]|$)`)

	// "B) ...", "C. ...", "A - ..."
	reLeadingLetter = regexp.MustCompile(`^([A-E])(?:[^\p{L}]|$)`)

	// "LETRA B", "ALTERNATIVA: C", "OPÇÃO (D)"
	reMarkedLetter = regexp.MustCompile(`(?:LETRA|ALTERNATIVA|OPÇÃO|OPCAO)\s*[:\-–]?\s*\(?\s*([A-E])(?:[^\p{L}]|$)`)

	// label of a rendered option such as "b) texto" or "(C) texto"
	reOptionLabel = regexp.MustCompile(`^\(?\s*([A-Ea-e])\s*[\)\.\-:–]`)
)

var canonicalAnswers = map[string]bool{
	"A": true, "B": true, "C": true, "D": true, "E": true,
	AnswerCerto: true, AnswerErrado: true,
}

// IsCanonicalAnswer reports whether token is one of A-E, CERTO or ERRADO
func IsCanonicalAnswer(token string) bool {
	return canonicalAnswers[token]
}

// NormalizeAnswer maps a free-text gabarito to a canonical token. Text
// without a recognizable answer is returned upper-cased and trimmed.
func NormalizeAnswer(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return s
	}

	if reCerto.MatchString(s) {
		return AnswerCerto
	}
	if reErrado.MatchString(s) {
		return AnswerErrado
	}
	if len(s) == 1 && isAnswerLetter(rune(s[0])) {
		return s
	}
	if m := reLeadingLetter.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	if m := reMarkedLetter.FindStringSubmatch(s); m != nil {
		return m[1]
	}

	tokens := strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
	for _, tok := range tokens {
		if len(tok) == 1 && isAnswerLetter(rune(tok[0])) {
			return tok
		}
	}
	return s
}

// ExtractOptionLabel reads the answer token out of an option as shown to
// the user. With lettered options the leading label wins over anything in
// the option text.
func ExtractOptionLabel(displayed string, lettered bool) string {
	s := strings.TrimSpace(displayed)
	if lettered {
		if m := reOptionLabel.FindStringSubmatch(s); m != nil {
			return strings.ToUpper(m[1])
		}
	}
	return NormalizeAnswer(s)
}

// IsCorrect compares a submission against a gabarito after normalizing both
func IsCorrect(submitted, key string) bool {
	got := NormalizeAnswer(submitted)
	return IsCanonicalAnswer(got) && got == NormalizeAnswer(key)
}

// DisplayOptions renders the choices offered to the user for a question
func DisplayOptions(q *Question) []string {
	if len(q.Options) == 0 {
		return []string{"Certo", "Errado"}
	}
	out := make([]string, 0, len(q.Options))
	for _, label := range sortedLabels(q.Options) {
		out = append(out, label+") "+q.Options[label])
	}
	return out
}

func isAnswerLetter(r rune) bool {
	return r >= 'A' && r <= 'E'
}

func sortedLabels(m map[string]string) []string {
	labels := make([]string, 0, len(m))
	for k := range m {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return labels
}
