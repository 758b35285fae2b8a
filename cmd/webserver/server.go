package main

import (
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"strings"

	"concursoprep"

	"github.com/gorilla/mux"
	"github.com/gorilla/sessions"
)

//go:embed templates/*.html
var templateFS embed.FS

const sessionName = "simulado-session"

// Session keys
const (
	keyUser     = "user"
	keyBattery  = "battery"
	keySyllabus = "syllabus"
)

// Server is the study web UI
type Server struct {
	db        *concursoprep.DB
	models    *concursoprep.Registry
	generator *concursoprep.QuizGenerator
	store     *sessions.CookieStore
	templates map[string]*template.Template
}

// NewServer parses the templates and creates the session store
func NewServer(db *concursoprep.DB, models *concursoprep.Registry, generator *concursoprep.QuizGenerator, secret string) (*Server, error) {
	funcMap := template.FuncMap{
		"add": func(a, b int) int {
			return a + b
		},
		"pct": func(f float64) string {
			return strconv.FormatFloat(f, 'f', 1, 64) + "%"
		},
	}

	templates := make(map[string]*template.Template)
	for _, name := range []string{"users", "home"} {
		tmpl, err := template.New(name).Funcs(funcMap).ParseFS(templateFS, "templates/base.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		templates[name] = tmpl
	}

	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 30,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return &Server{
		db:        db,
		models:    models,
		generator: generator,
		store:     store,
		templates: templates,
	}, nil
}

// Routes returns the HTTP handler of the UI
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleHome).Methods(http.MethodGet)
	r.HandleFunc("/users", s.handleCreateUser).Methods(http.MethodPost)
	r.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/syllabi", s.handleCreateSyllabus).Methods(http.MethodPost)
	r.HandleFunc("/syllabi/{id:[0-9]+}/activate", s.handleActivateSyllabus).Methods(http.MethodPost)
	r.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	r.HandleFunc("/questions/{id:[0-9]+}/answer", s.handleAnswer).Methods(http.MethodPost)
	r.HandleFunc("/progress/reset", s.handleResetProgress).Methods(http.MethodPost)
	r.HandleFunc("/history/reset", s.handleResetHistory).Methods(http.MethodPost)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	return r
}

func (s *Server) session(r *http.Request) *sessions.Session {
	// A cookie signed with an old secret yields a fresh session
	session, _ := s.store.Get(r, sessionName)
	return session
}

func (s *Server) currentUser(session *sessions.Session) string {
	user, _ := session.Values[keyUser].(string)
	return user
}

func (s *Server) redirectHome(w http.ResponseWriter, r *http.Request, session *sessions.Session, flash string) {
	if flash != "" {
		session.AddFlash(flash)
	}
	if err := session.Save(r, w); err != nil {
		log.Printf("Session save error: %v", err)
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) render(w http.ResponseWriter, name string, data map[string]interface{}) {
	if err := s.templates[name].ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Template error in %s: %v", name, err)
		http.Error(w, "Template error", http.StatusInternalServerError)
	}
}

// batteryItem is one question of the current battery as shown on the page
type batteryItem struct {
	Question concursoprep.Question
	Options  []string
	Response *concursoprep.Response
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := s.session(r)
	flashes := session.Flashes()
	user := s.currentUser(session)

	if user == "" {
		users, err := s.db.ListUsers(ctx)
		if err != nil {
			log.Printf("Failed to list users: %v", err)
			http.Error(w, "Failed to list users", http.StatusInternalServerError)
			return
		}
		session.Save(r, w)
		s.render(w, "users", map[string]interface{}{
			"Flashes": flashes,
			"Users":   users,
		})
		return
	}

	stats, err := s.db.GetUserStats(ctx, user)
	if err != nil {
		log.Printf("Failed to get stats: %v", err)
		http.Error(w, "Failed to get stats", http.StatusInternalServerError)
		return
	}
	syllabi, err := s.db.ListSyllabi(ctx, user)
	if err != nil {
		log.Printf("Failed to list syllabi: %v", err)
		http.Error(w, "Failed to list syllabi", http.StatusInternalServerError)
		return
	}
	active := s.activeSyllabus(r, session, user)

	ids, _ := session.Values[keyBattery].([]int64)
	questions, err := s.db.GetQuestions(ctx, ids)
	if err != nil {
		log.Printf("Failed to load battery: %v", err)
		http.Error(w, "Failed to load battery", http.StatusInternalServerError)
		return
	}
	responses, err := s.db.GetResponses(ctx, user, ids)
	if err != nil {
		log.Printf("Failed to load responses: %v", err)
		http.Error(w, "Failed to load responses", http.StatusInternalServerError)
		return
	}

	battery := make([]batteryItem, 0, len(questions))
	for _, q := range questions {
		item := batteryItem{Question: q, Options: concursoprep.DisplayOptions(&q)}
		if resp, ok := responses[q.ID]; ok {
			item.Response = &resp
		}
		battery = append(battery, item)
	}

	if err := session.Save(r, w); err != nil {
		log.Printf("Session save error: %v", err)
	}
	s.render(w, "home", map[string]interface{}{
		"Flashes":  flashes,
		"User":     user,
		"Stats":    stats,
		"Passing":  stats.Answered > 0 && stats.Rate >= 70,
		"Syllabi":  syllabi,
		"Active":   active,
		"Battery":  battery,
		"Models":   s.models.Names(),
		"MaxItems": concursoprep.MaxQuantity,
	})
}

func (s *Server) activeSyllabus(r *http.Request, session *sessions.Session, user string) *concursoprep.Syllabus {
	id, ok := session.Values[keySyllabus].(int64)
	if !ok {
		return nil
	}
	syllabus, err := s.db.GetSyllabus(r.Context(), user, id)
	if err != nil {
		if !errors.Is(err, concursoprep.ErrNotFound) {
			log.Printf("Failed to load syllabus %d: %v", id, err)
		}
		delete(session.Values, keySyllabus)
		return nil
	}
	return syllabus
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	session := s.session(r)
	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		s.redirectHome(w, r, session, "Informe um nome de usuário.")
		return
	}

	err := s.db.CreateUser(r.Context(), name)
	if errors.Is(err, concursoprep.ErrUserExists) {
		s.redirectHome(w, r, session, "Este nome já está em uso.")
		return
	}
	if err != nil {
		log.Printf("Failed to create user: %v", err)
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	session.Values = map[interface{}]interface{}{keyUser: name}
	s.redirectHome(w, r, session, "Perfil criado. Bons estudos!")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	session := s.session(r)
	name := strings.TrimSpace(r.FormValue("name"))
	exists, err := s.db.UserExists(r.Context(), name)
	if err != nil {
		log.Printf("Failed to check user: %v", err)
		http.Error(w, "Failed to check user", http.StatusInternalServerError)
		return
	}
	if !exists {
		s.redirectHome(w, r, session, "Usuário não encontrado.")
		return
	}
	session.Values = map[interface{}]interface{}{keyUser: name}
	s.redirectHome(w, r, session, "")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	session := s.session(r)
	session.Values = map[interface{}]interface{}{}
	s.redirectHome(w, r, session, "")
}

func (s *Server) handleCreateSyllabus(w http.ResponseWriter, r *http.Request) {
	session := s.session(r)
	user := s.currentUser(session)
	if user == "" {
		s.redirectHome(w, r, session, "")
		return
	}

	model, err := s.models.Get(r.FormValue("model"))
	if err != nil {
		s.redirectHome(w, r, session, "Nenhum modelo configurado para analisar o edital.")
		return
	}

	syllabus, err := concursoprep.StructureSyllabus(r.Context(), model,
		r.FormValue("exam_name"), r.FormValue("board"), r.FormValue("role"), r.FormValue("text"))
	if errors.Is(err, concursoprep.ErrEmptySyllabus) {
		s.redirectHome(w, r, session, "Cole o conteúdo programático do edital.")
		return
	}
	if err != nil {
		log.Printf("Failed to structure syllabus: %v", err)
		s.redirectHome(w, r, session, "Não foi possível analisar o edital: "+err.Error())
		return
	}

	syllabus.User = user
	if err := s.db.SaveSyllabus(r.Context(), syllabus); err != nil {
		log.Printf("Failed to save syllabus: %v", err)
		http.Error(w, "Failed to save syllabus", http.StatusInternalServerError)
		return
	}
	session.Values[keySyllabus] = syllabus.ID
	s.redirectHome(w, r, session, fmt.Sprintf("Edital salvo com %d matérias.", len(syllabus.Subjects)))
}

func (s *Server) handleActivateSyllabus(w http.ResponseWriter, r *http.Request) {
	session := s.session(r)
	user := s.currentUser(session)
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	if _, err := s.db.GetSyllabus(r.Context(), user, id); err != nil {
		s.redirectHome(w, r, session, "Edital não encontrado.")
		return
	}
	session.Values[keySyllabus] = id
	s.redirectHome(w, r, session, "")
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session := s.session(r)
	user := s.currentUser(session)
	if user == "" {
		s.redirectHome(w, r, session, "")
		return
	}

	quantity, err := strconv.Atoi(r.FormValue("quantity"))
	if err != nil || quantity < 1 || quantity > concursoprep.MaxQuantity {
		s.redirectHome(w, r, session, fmt.Sprintf("Quantidade deve estar entre 1 e %d.", concursoprep.MaxQuantity))
		return
	}

	req := concursoprep.GenerationRequest{
		Quantity:     quantity,
		Origin:       concursoprep.Origin(r.FormValue("origin")),
		Board:        strings.TrimSpace(r.FormValue("board")),
		Role:         strings.TrimSpace(r.FormValue("role")),
		ExamName:     strings.TrimSpace(r.FormValue("exam_name")),
		Subject:      strings.TrimSpace(r.FormValue("subject")),
		Topic:        strings.TrimSpace(r.FormValue("topic")),
		UseWebSearch: r.FormValue("web_search") != "",
		Model:        r.FormValue("model"),
	}
	if active := s.activeSyllabus(r, session, user); active != nil {
		req.Subjects = active.Subjects
		if req.Board == "" {
			req.Board = active.Board
		}
		if req.Role == "" {
			req.Role = active.Role
		}
		if req.ExamName == "" {
			req.ExamName = active.ExamName
		}
	}

	if req.Origin == concursoprep.OriginBank {
		ids, err := s.db.PickUnanswered(ctx, user, req.Board, req.Role, req.Subject, req.Quantity)
		if err != nil {
			log.Printf("Failed to pick questions: %v", err)
			http.Error(w, "Failed to pick questions", http.StatusInternalServerError)
			return
		}
		session.Values[keyBattery] = ids
		if len(ids) == 0 {
			s.redirectHome(w, r, session, "Nenhuma questão inédita para você no banco com esses filtros.")
			return
		}
		s.redirectHome(w, r, session, fmt.Sprintf("%d questões do banco.", len(ids)))
		return
	}

	result, err := s.generator.Generate(ctx, req)
	if errors.Is(err, concursoprep.ErrNoCredentials) {
		s.redirectHome(w, r, session, "O modelo escolhido não está configurado.")
		return
	}
	if err != nil {
		log.Printf("Generation failed: %v", err)
		s.redirectHome(w, r, session, "Falha ao gerar questões: "+err.Error())
		return
	}

	ids, duplicates, err := s.db.SaveQuestions(ctx, result.Questions)
	if err != nil {
		log.Printf("Failed to save questions: %v", err)
		http.Error(w, "Failed to save questions", http.StatusInternalServerError)
		return
	}
	session.Values[keyBattery] = ids

	msg := fmt.Sprintf("%d de %d questões geradas (%s).", len(ids), req.Quantity, result.Subject)
	if skipped := result.Duplicates + result.Rejected + duplicates; skipped > 0 {
		msg += fmt.Sprintf(" %d candidatas descartadas por duplicidade ou qualidade.", skipped)
	}
	s.redirectHome(w, r, session, msg)
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	session := s.session(r)
	user := s.currentUser(session)
	if user == "" {
		s.redirectHome(w, r, session, "")
		return
	}
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)

	choice := r.FormValue("answer")
	lettered := !strings.EqualFold(choice, "Certo") && !strings.EqualFold(choice, "Errado")
	submitted := ""
	if strings.TrimSpace(choice) != "" {
		submitted = concursoprep.ExtractOptionLabel(choice, lettered)
	}

	resp, err := s.db.RecordResponse(r.Context(), user, id, submitted)
	switch {
	case errors.Is(err, concursoprep.ErrNoSelection):
		s.redirectHome(w, r, session, "Selecione uma alternativa antes de confirmar.")
		return
	case errors.Is(err, concursoprep.ErrNotFound):
		s.redirectHome(w, r, session, "Questão não encontrada.")
		return
	case err != nil:
		log.Printf("Failed to record response: %v", err)
		http.Error(w, "Failed to record response", http.StatusInternalServerError)
		return
	}

	if resp.IsCorrect {
		s.redirectHome(w, r, session, "Resposta correta!")
	} else {
		s.redirectHome(w, r, session, "Resposta incorreta.")
	}
}

func (s *Server) handleResetProgress(w http.ResponseWriter, r *http.Request) {
	session := s.session(r)
	user := s.currentUser(session)
	if user == "" {
		s.redirectHome(w, r, session, "")
		return
	}
	n, err := s.db.ResetProgress(r.Context(), user)
	if err != nil {
		log.Printf("Failed to reset progress: %v", err)
		http.Error(w, "Failed to reset progress", http.StatusInternalServerError)
		return
	}
	delete(session.Values, keyBattery)
	s.redirectHome(w, r, session, fmt.Sprintf("Progresso zerado (%d respostas apagadas).", n))
}

func (s *Server) handleResetHistory(w http.ResponseWriter, r *http.Request) {
	session := s.session(r)
	if s.currentUser(session) == "" {
		s.redirectHome(w, r, session, "")
		return
	}
	if err := s.db.ResetHistory(r.Context()); err != nil {
		log.Printf("Failed to reset history: %v", err)
		http.Error(w, "Failed to reset history", http.StatusInternalServerError)
		return
	}
	delete(session.Values, keyBattery)
	s.redirectHome(w, r, session, "Histórico completo apagado.")
}
