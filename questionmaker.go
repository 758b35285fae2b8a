package concursoprep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidJSON is returned when no question list can be recovered from
// a model reply
var ErrInvalidJSON = errors.New("llm response is not valid JSON")

const systemPrompt = "Você é uma banca examinadora de concursos públicos brasileiros. " +
	"Responda exclusivamente com um objeto JSON válido, sem nenhum texto fora do JSON."

const strictRetryPrompt = "Sua resposta anterior não era um JSON válido. Reenvie APENAS o objeto JSON " +
	`no formato {"questoes": [...]}, sem comentários, sem markdown e sem texto adicional.`

// Candidate is a question as decoded from model output, not yet checked
type Candidate struct {
	Statement      string
	Options        map[string]string
	Answer         string
	Explanation    string
	OptionComments map[string]string
	Source         string
	Difficulty     int
	Tags           []string
	Format         Format
	IsRealExam     bool
	ExamYear       int

	Board   string
	Role    string
	Subject string
	Topic   string
	Origin  Origin

	ContentHash string
	Fingerprint string
}

func (c *Candidate) promote() *Question {
	return &Question{
		Board:          c.Board,
		Role:           c.Role,
		Subject:        c.Subject,
		Topic:          c.Topic,
		Statement:      strings.TrimSpace(c.Statement),
		Options:        c.Options,
		Answer:         NormalizeAnswer(c.Answer),
		Explanation:    strings.TrimSpace(c.Explanation),
		OptionComments: c.OptionComments,
		Origin:         c.Origin,
		Source:         c.Source,
		Difficulty:     c.Difficulty,
		Tags:           c.Tags,
		Format:         c.Format,
		IsRealExam:     c.IsRealExam,
		ExamYear:       c.ExamYear,
		ContentHash:    c.ContentHash,
		Fingerprint:    c.Fingerprint,
		CreatedAt:      time.Now(),
	}
}

// QuestionMaker turns a generation request into candidates using a chat model
type QuestionMaker struct {
	model ChatModel
}

// NewQuestionMaker creates a question maker on top of a chat model
func NewQuestionMaker(model ChatModel) *QuestionMaker {
	return &QuestionMaker{model: model}
}

// GenerateCandidates asks the model for count items. A reply that is not
// JSON gets one retry with a stricter instruction.
func (qm *QuestionMaker) GenerateCandidates(ctx context.Context, req GenerationRequest, subject string, count int, searchContext string, logger *LLMLogger) ([]*Candidate, error) {
	prompt := qm.buildPrompt(req, subject, count, searchContext)
	chat := ChatRequest{
		System:      systemPrompt,
		Messages:    []ChatMessage{{Role: "user", Content: prompt}},
		Temperature: temperatureFor(req.Origin),
		JSON:        true,
	}

	var candidates []*Candidate
	for attempt := 0; attempt < 2; attempt++ {
		logger.LogLLMRequest(qm.model.Name(), chat.Messages[len(chat.Messages)-1].Content)
		reply, err := qm.model.Complete(ctx, chat)
		if err != nil {
			return nil, fmt.Errorf("failed to generate questions: %w", err)
		}
		logger.LogLLMResponse(qm.model.Name(), reply)

		candidates, err = ParseCandidates(reply)
		if err == nil {
			break
		}
		if attempt == 1 {
			return nil, fmt.Errorf("failed to generate questions after retry: %w", err)
		}
		log.Printf("Reply from %s was not JSON, retrying once: %v", qm.model.Name(), err)
		chat.Messages = append(chat.Messages,
			ChatMessage{Role: "assistant", Content: reply},
			ChatMessage{Role: "user", Content: strictRetryPrompt},
		)
	}

	for _, c := range candidates {
		c.Board = req.Board
		c.Role = req.Role
		c.Subject = subject
		c.Topic = req.Topic
		c.Origin = req.Origin
		if c.Source == "" {
			c.Source = defaultSource(req)
		}
		if req.Origin == OriginReal && !c.IsRealExam && c.ExamYear > 0 {
			c.IsRealExam = true
		}
	}

	log.Printf("Model %s returned %d candidates", qm.model.Name(), len(candidates))
	return candidates, nil
}

func (qm *QuestionMaker) buildPrompt(req GenerationRequest, subject string, count int, searchContext string) string {
	var sb strings.Builder
	class := Classify(req.Board, req.Role)

	switch req.Origin {
	case OriginReal:
		sb.WriteString(fmt.Sprintf("Reproduza ou reconstrua fielmente %d questão(ões) REAIS de provas anteriores da banca %s", count, req.Board))
		sb.WriteString(fmt.Sprintf(" para o cargo de %s.\n", req.Role))
		sb.WriteString("Informe em cada item o ano e a prova de origem. Não invente questões: se não houver itens reais suficientes, devolva menos.\n")
	default:
		sb.WriteString(fmt.Sprintf("Você é a banca examinadora %s. Gere %d questão(ões) INÉDITAS e distintas", req.Board, count))
		sb.WriteString(fmt.Sprintf(" para o cargo de %s.\n", req.Role))
	}
	if req.ExamName != "" {
		sb.WriteString(fmt.Sprintf("Concurso: %s\n", req.ExamName))
	}
	sb.WriteString(fmt.Sprintf("Matéria: %s\n", subject))
	if isRandomChoice(req.Topic) {
		sb.WriteString(fmt.Sprintf("Tema: sorteie um tema de alta complexidade em %s\n\n", subject))
	} else {
		sb.WriteString(fmt.Sprintf("Tema: %s\n\n", req.Topic))
	}

	if searchContext != "" {
		sb.WriteString("Contexto de pesquisa (use como apoio, sem copiar literalmente):\n")
		sb.WriteString(searchContext)
		sb.WriteString("\n\n")
	} else if req.UseWebSearch {
		sb.WriteString("A pesquisa na web não trouxe resultados: use sua memória consolidada.\n\n")
	}

	sb.WriteString("Regras:\n")
	if class.Format.IsTrueFalse() {
		sb.WriteString("- Estilo Certo/Errado: cada item é uma afirmativa para julgamento, com \"alternativas\" vazio e gabarito \"Certo\" ou \"Errado\".\n")
	} else {
		n := 5
		if class.Format == FormatMultipleChoice4 {
			n = 4
		}
		sb.WriteString(fmt.Sprintf("- Múltipla escolha com %d alternativas rotuladas a partir de A; gabarito é a letra correta.\n", n))
	}
	if class.Style != "" {
		sb.WriteString(fmt.Sprintf("- Perfil da banca: %s.\n", class.Style))
	}
	sb.WriteString(fmt.Sprintf("- Dificuldade calibrada para o cargo (nível %d de 5).\n", class.Difficulty))
	sb.WriteString("- Enunciado com contexto suficiente (mínimo de três frases).\n")
	sb.WriteString("- Explicação detalhada, fundamentada na legislação (art., Lei, Código) e na jurisprudência do STF/STJ. Jamais invente súmulas ou leis.\n\n")

	sb.WriteString("Responda com JSON exatamente neste formato:\n")
	sb.WriteString(`{"questoes": [{"enunciado": "...", "alternativas": {"A": "...", "B": "..."}, "gabarito": "A", ` +
		`"explicacao": "...", "comentarios_alternativas": {"A": "..."}, "fonte": "...", "dificuldade": 3, ` +
		`"tags": ["..."], "formato": "multipla_escolha_5", "questao_real": false, "ano": 0}]}`)
	sb.WriteString("\n")
	return sb.String()
}

func temperatureFor(origin Origin) float32 {
	if origin == OriginReal {
		return 0.1
	}
	return 0.7
}

func defaultSource(req GenerationRequest) string {
	if req.Origin == OriginReal {
		return fmt.Sprintf("Reconstruída (%s)", req.Board)
	}
	return fmt.Sprintf("Inédita (%s)", req.Board)
}

func isRandomChoice(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "" || s == "aleatório" || s == "aleatorio"
}

// ParseCandidates recovers the question list from a model reply. It accepts
// code fences, {"questoes": [...]}, a bare array or a single question, and
// otherwise looks for the first balanced JSON value that decodes.
func ParseCandidates(reply string) ([]*Candidate, error) {
	text := stripCodeFences(reply)
	if candidates, ok := decodeBatch([]byte(text)); ok {
		return candidates, nil
	}

	var candidates []*Candidate
	found := scanJSON(text, func(data []byte) bool {
		var ok bool
		candidates, ok = decodeBatch(data)
		return ok
	})
	if !found {
		return nil, fmt.Errorf("%w: no question list in %d bytes of output", ErrInvalidJSON, len(reply))
	}
	return candidates, nil
}

// scanJSON offers every balanced object or array in text to decode, in
// order of their opening bracket, until decode accepts one
func scanJSON(text string, decode func(data []byte) bool) bool {
	for i := 0; i < len(text); i++ {
		if text[i] != '{' && text[i] != '[' {
			continue
		}
		end := matchingBracket(text, i)
		if end < 0 {
			continue
		}
		if decode([]byte(text[i : end+1])) {
			return true
		}
	}
	return false
}

func stripCodeFences(s string) string {
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```JSON", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// matchingBracket returns the index closing the value opened at start,
// or -1 when it is never closed
func matchingBracket(s string, start int) int {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, ch)
		case '}', ']':
			if len(stack) == 0 {
				return -1
			}
			open := stack[len(stack)-1]
			if (open == '{') != (ch == '}') {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

var listKeys = []string{"questoes", "questões", "questions", "itens", "items"}

func decodeBatch(data []byte) ([]*Candidate, bool) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, false
	}

	var items []map[string]json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, false
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, false
		}
		found := false
		for _, key := range listKeys {
			raw, ok := obj[key]
			if !ok {
				continue
			}
			if err := json.Unmarshal(raw, &items); err != nil {
				return nil, false
			}
			found = true
			break
		}
		if !found {
			if _, ok := firstField(obj, "enunciado", "statement"); !ok {
				return nil, false
			}
			items = []map[string]json.RawMessage{obj}
		}
	default:
		return nil, false
	}

	candidates := make([]*Candidate, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		candidates = append(candidates, candidateFromFields(item))
	}
	return candidates, true
}

func candidateFromFields(m map[string]json.RawMessage) *Candidate {
	c := &Candidate{}
	if raw, ok := firstField(m, "enunciado", "statement", "texto"); ok {
		c.Statement = rawText(raw)
	}
	if raw, ok := firstField(m, "alternativas", "options", "opcoes"); ok {
		c.Options = rawOptions(raw)
	}
	if raw, ok := firstField(m, "gabarito", "resposta", "answer"); ok {
		c.Answer = rawText(raw)
	}
	if raw, ok := firstField(m, "explicacao", "explicação", "fundamentacao", "explanation"); ok {
		c.Explanation = rawText(raw)
	}
	if raw, ok := firstField(m, "comentarios_alternativas", "comentarios", "option_comments"); ok {
		c.OptionComments = rawOptions(raw)
	}
	if raw, ok := firstField(m, "fonte", "source"); ok {
		c.Source = rawText(raw)
	}
	if raw, ok := firstField(m, "dificuldade", "difficulty"); ok {
		c.Difficulty = rawInt(raw)
	}
	if raw, ok := firstField(m, "tags", "palavras_chave"); ok {
		c.Tags = rawStrings(raw)
	}
	if raw, ok := firstField(m, "questao_real", "real", "is_real_exam"); ok {
		c.IsRealExam = rawBool(raw)
	}
	if raw, ok := firstField(m, "ano", "year", "exam_year"); ok {
		c.ExamYear = rawInt(raw)
	}

	if c.Difficulty < 1 || c.Difficulty > 5 {
		c.Difficulty = 3
	}
	if c.ExamYear < 0 {
		c.ExamYear = 0
	}
	var format string
	if raw, ok := firstField(m, "formato", "format", "tipo"); ok {
		format = rawText(raw)
	}
	c.Format = parseFormat(format, len(c.Options))
	return c
}

func parseFormat(s string, optionCount int) Format {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(s, "certo"), strings.Contains(s, "errado"), s == "ce", strings.Contains(s, "true"):
		return FormatTrueFalse
	case strings.HasSuffix(s, "4"):
		return FormatMultipleChoice4
	case strings.HasSuffix(s, "5"):
		return FormatMultipleChoice5
	}
	switch {
	case optionCount == 0:
		return FormatTrueFalse
	case optionCount == 4:
		return FormatMultipleChoice4
	default:
		return FormatMultipleChoice5
	}
}

func firstField(m map[string]json.RawMessage, keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if raw, ok := m[k]; ok && len(raw) > 0 && string(raw) != "null" {
			return raw, true
		}
	}
	return nil, false
}

// rawText flattens strings, numbers, arrays and objects into text
func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			if t := rawText(item); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if t := rawText(obj[k]); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// rawOptions accepts {"A": "..."} or ["A) ...", "..."]
func rawOptions(raw json.RawMessage) map[string]string {
	out := make(map[string]string)

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		for k, v := range obj {
			label := ExtractOptionLabel(k, true)
			if text := rawText(v); text != "" {
				out[label] = text
			}
		}
		return out
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for i, item := range list {
			if i >= 5 {
				break
			}
			text := rawText(item)
			if m := reOptionLabel.FindStringSubmatchIndex(text); m != nil {
				text = strings.TrimSpace(text[m[1]:])
			}
			if text != "" {
				out[string(rune('A'+i))] = text
			}
		}
	}
	return out
}

func rawInt(raw json.RawMessage) int {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		digits := strings.TrimFunc(strings.TrimSpace(s), func(r rune) bool { return r < '0' || r > '9' })
		if i, err := strconv.Atoi(digits); err == nil {
			return i
		}
	}
	return 0
}

func rawBool(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	switch strings.ToLower(rawText(raw)) {
	case "sim", "true", "1", "s", "yes":
		return true
	}
	return false
}

func rawStrings(raw json.RawMessage) []string {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		list = []json.RawMessage{raw}
	}
	var out []string
	for _, item := range list {
		for _, part := range strings.Split(rawText(item), ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
