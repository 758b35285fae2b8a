package main

import (
	"context"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"concursoprep"
)

const generatedBatch = `{"questoes": [{
	"enunciado": "Maria, servidora pública estadual, foi presa em flagrante pela suposta prática de peculato. Na audiência de custódia, o Ministério Público requereu a conversão do flagrante em prisão preventiva. Assinale a opção correta.",
	"alternativas": {
		"A": "O juiz pode converter o flagrante em preventiva de ofício.",
		"B": "A conversão depende de requerimento do Ministério Público.",
		"C": "A preventiva dispensa fundamentação concreta no caso.",
		"D": "A audiência de custódia é facultativa para servidores."
	},
	"gabarito": "B",
	"explicacao": "Nos termos do art. 311 do CPP, com a redação dada pela Lei 13.964/2019, é vedada a decretação da prisão preventiva de ofício pelo juiz, exigindo-se requerimento do Ministério Público, do querelante, do assistente ou representação da autoridade policial. O STJ consolidou esse entendimento ao afastar a conversão automática do flagrante.",
	"formato": "multipla_escolha_4"
}]}`

type scriptedModel struct {
	reply string
}

func (m *scriptedModel) Name() string { return "groq" }

func (m *scriptedModel) Complete(ctx context.Context, req concursoprep.ChatRequest) (string, error) {
	return m.reply, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *concursoprep.DB) {
	t.Helper()
	db, err := concursoprep.OpenDB(filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	registry := concursoprep.NewRegistry()
	registry.Register(&scriptedModel{reply: generatedBatch})
	generator := concursoprep.NewQuizGenerator(registry, concursoprep.GeneratorOptions{Index: db})

	server, err := NewServer(db, registry, generator, "test-secret")
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	ts := httptest.NewServer(server.Routes())
	t.Cleanup(ts.Close)
	return ts, db
}

func newClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &http.Client{Jar: jar}
}

func post(t *testing.T, c *http.Client, u string, form url.Values) string {
	t.Helper()
	resp, err := c.PostForm(u, form)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST %s: status %d: %s", u, resp.StatusCode, body)
	}
	return string(body)
}

func get(t *testing.T, c *http.Client, u string) string {
	t.Helper()
	resp, err := c.Get(u)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

var reAnswerForm = regexp.MustCompile(`/questions/(\d+)/answer`)

func TestStudyFlow(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newClient(t)

	if body := get(t, c, ts.URL+"/"); !strings.Contains(body, "Nenhum perfil cadastrado") {
		t.Fatalf("anonymous home is not the users page")
	}

	body := post(t, c, ts.URL+"/users", url.Values{"name": {"ana"}})
	if !strings.Contains(body, "Perfil criado") || !strings.Contains(body, "Gerar simulado") {
		t.Fatalf("user not logged in after creation")
	}

	body = post(t, c, ts.URL+"/generate", url.Values{
		"quantity": {"1"}, "origin": {"ineditas"}, "board": {"FGV"}, "role": {"Analista"},
		"subject": {"Direito Processual Penal"}, "topic": {"Prisão preventiva"},
	})
	if !strings.Contains(body, "1 de 1 questões geradas") {
		t.Errorf("generation flash missing")
	}
	m := reAnswerForm.FindStringSubmatch(body)
	if m == nil {
		t.Fatalf("battery has no answer form")
	}

	body = post(t, c, ts.URL+"/questions/"+m[1]+"/answer", url.Values{})
	if !strings.Contains(body, "Selecione uma alternativa") {
		t.Errorf("empty submission not rejected")
	}

	body = post(t, c, ts.URL+"/questions/"+m[1]+"/answer", url.Values{"answer": {"B) A conversão depende de requerimento do Ministério Público."}})
	if !strings.Contains(body, "Resposta correta!") || !strings.Contains(body, "Gabarito: B") {
		t.Errorf("answer not graded or review not shown")
	}
	if !strings.Contains(body, "100.0%") || !strings.Contains(body, `class="stat passing"`) {
		t.Errorf("stats not updated")
	}

	body = post(t, c, ts.URL+"/progress/reset", url.Values{})
	if !strings.Contains(body, "Progresso zerado (1 respostas apagadas)") {
		t.Errorf("progress reset flash missing")
	}
}

func TestBankOrigin(t *testing.T) {
	ts, db := newTestServer(t)
	ctx := context.Background()

	first := newClient(t)
	post(t, first, ts.URL+"/users", url.Values{"name": {"ana"}})
	post(t, first, ts.URL+"/generate", url.Values{"quantity": {"1"}, "origin": {"ineditas"}, "board": {"FGV"}, "role": {"Analista"}})

	second := newClient(t)
	post(t, second, ts.URL+"/users", url.Values{"name": {"bruno"}})
	body := post(t, second, ts.URL+"/generate", url.Values{"quantity": {"5"}, "origin": {"banco"}, "board": {"fgv"}})
	if !strings.Contains(body, "1 questões do banco") || !reAnswerForm.MatchString(body) {
		t.Errorf("stored question not drawn for another user")
	}

	m := reAnswerForm.FindStringSubmatch(body)
	post(t, second, ts.URL+"/questions/"+m[1]+"/answer", url.Values{"answer": {"C) A preventiva dispensa fundamentação concreta no caso."}})
	stats, err := db.GetUserStats(ctx, "bruno")
	if err != nil || stats.Answered != 1 || stats.Correct != 0 {
		t.Errorf("stats = %+v, %v", stats, err)
	}

	body = post(t, second, ts.URL+"/generate", url.Values{"quantity": {"5"}, "origin": {"banco"}, "board": {"FGV"}})
	if !strings.Contains(body, "Nenhuma questão inédita") {
		t.Errorf("answered question drawn again")
	}
}

func TestUsersAndSessions(t *testing.T) {
	ts, _ := newTestServer(t)
	c := newClient(t)

	post(t, c, ts.URL+"/users", url.Values{"name": {"ana"}})
	post(t, c, ts.URL+"/logout", url.Values{})

	if body := post(t, c, ts.URL+"/users", url.Values{"name": {"ana"}}); !strings.Contains(body, "Este nome já está em uso.") {
		t.Errorf("duplicate name accepted")
	}
	if body := post(t, c, ts.URL+"/login", url.Values{"name": {"carla"}}); !strings.Contains(body, "Usuário não encontrado.") {
		t.Errorf("unknown user logged in")
	}
	if body := post(t, c, ts.URL+"/login", url.Values{"name": {"ana"}}); !strings.Contains(body, "Gerar simulado") {
		t.Errorf("login failed")
	}

	// Generation requires a session
	anon := newClient(t)
	if body := post(t, anon, ts.URL+"/generate", url.Values{"quantity": {"1"}}); !strings.Contains(body, "Novo perfil") {
		t.Errorf("anonymous generate not sent to the users page")
	}

	if body := get(t, c, ts.URL+"/health"); body != "ok" {
		t.Errorf("health = %q", body)
	}
}
