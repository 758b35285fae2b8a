package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"concursoprep"
)

func main() {
	cfg, err := concursoprep.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		quantity   = flag.Int("quantity", 5, "Number of questions in the battery")
		origin     = flag.String("origin", string(concursoprep.OriginInedita), "Question origin: ineditas, reais or banco")
		board      = flag.String("board", "", "Exam board, e.g. Cebraspe, FGV (required)")
		role       = flag.String("role", "", "Target role, e.g. Analista Judiciário (required)")
		examName   = flag.String("exam", "", "Exam name")
		subject    = flag.String("subject", "", "Subject, or Aleatório")
		topic      = flag.String("topic", "Aleatório", "Topic, or Aleatório")
		model      = flag.String("model", "", "Model provider: groq, deepseek or gemini (default: first configured)")
		webSearch  = flag.Bool("search", false, "Ground the prompt on web search results")
		dbPath     = flag.String("db", cfg.DBPath, "SQLite database path")
		save       = flag.Bool("save", false, "Store accepted questions in the database")
		user       = flag.String("user", "", "User for -play answers and -origin banco")
		outputFile = flag.String("output", "", "Output file for battery JSON (default: stdout)")
		playMode   = flag.Bool("play", false, "Answer the battery interactively")
		verbose    = flag.Bool("verbose", cfg.Verbose, "Enable verbose debugging output")
	)

	flag.Parse()

	concursoprep.SetVerbose(*verbose)

	if *board == "" || *role == "" {
		log.Fatal("Board and role are required. Use -board and -role flags.")
	}

	req := concursoprep.GenerationRequest{
		Quantity:     *quantity,
		Origin:       concursoprep.Origin(*origin),
		Board:        *board,
		Role:         *role,
		ExamName:     *examName,
		Subject:      *subject,
		Topic:        *topic,
		UseWebSearch: *webSearch,
		Model:        *model,
	}

	var db *concursoprep.DB
	if *save || *playMode || req.Origin == concursoprep.OriginBank {
		db, err = concursoprep.OpenDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer db.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	var questions []concursoprep.Question
	if req.Origin == concursoprep.OriginBank {
		ids, err := db.PickUnanswered(ctx, *user, req.Board, req.Role, req.Subject, req.Quantity)
		if err != nil {
			log.Fatalf("Failed to pick questions: %v", err)
		}
		if questions, err = db.GetQuestions(ctx, ids); err != nil {
			log.Fatalf("Failed to load questions: %v", err)
		}
		log.Printf("Drew %d stored questions", len(questions))
	} else {
		registry := concursoprep.NewRegistryFromConfig(cfg)
		defer registry.Close()

		opts := concursoprep.GeneratorOptions{
			SimilarityThreshold: cfg.SimilarityThreshold,
			Checker:             cfg.Checker,
			RequestMultiplier:   cfg.RequestMultiplier,
			LogDir:              cfg.LogDir,
			Timeout:             cfg.LLMTimeout,
		}
		if db != nil {
			opts.Index = db
		}
		if *webSearch {
			var cache concursoprep.SearchCache
			if db != nil {
				cache = db
			}
			opts.Search = concursoprep.NewCachedSearcher(concursoprep.NewDuckDuckGo("", cfg.SearchTimeout), cache)
		}
		generator := concursoprep.NewQuizGenerator(registry, opts)

		result, err := generator.Generate(ctx, req)
		if err != nil {
			log.Fatalf("Failed to generate questions: %v", err)
		}
		if len(result.Questions) < req.Quantity {
			log.Printf("Only %d of %d requested questions passed validation", len(result.Questions), req.Quantity)
		}
		questions = result.Questions

		if *save {
			if _, _, err := db.SaveQuestions(ctx, questions); err != nil {
				log.Fatalf("Failed to save questions: %v", err)
			}
		}
	}

	if *playMode {
		play(ctx, db, *user, questions)
		return
	}

	output, err := json.MarshalIndent(questions, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal questions: %v", err)
	}

	if *outputFile != "" {
		if err := os.WriteFile(*outputFile, output, 0644); err != nil {
			log.Fatalf("Failed to write output file: %v", err)
		}
		log.Printf("Battery saved to: %s", *outputFile)
	} else {
		fmt.Println(string(output))
	}
}

// play walks the battery on the terminal. Answers are recorded only for
// questions that have been stored.
func play(ctx context.Context, db *concursoprep.DB, user string, questions []concursoprep.Question) {
	scanner := bufio.NewScanner(os.Stdin)
	correct := 0

	for i, q := range questions {
		fmt.Printf("Questão %d/%d (%s)\n", i+1, len(questions), q.Source)
		fmt.Printf("%s\n\n", q.Statement)
		options := concursoprep.DisplayOptions(&q)
		for _, option := range options {
			fmt.Println(option)
		}
		fmt.Println()

		var answer string
		for {
			fmt.Printf("Sua resposta: ")
			if !scanner.Scan() {
				return
			}
			answer = concursoprep.NormalizeAnswer(scanner.Text())
			if concursoprep.IsCanonicalAnswer(answer) {
				break
			}
			fmt.Println("Responda com a letra da alternativa ou Certo/Errado")
		}

		isCorrect := concursoprep.IsCorrect(answer, q.Answer)
		if db != nil && user != "" && q.ID != 0 {
			r, err := db.RecordResponse(ctx, user, q.ID, answer)
			if err != nil {
				log.Printf("Failed to record response: %v", err)
			} else {
				isCorrect = r.IsCorrect
			}
		}

		if isCorrect {
			correct++
			fmt.Println("✅ Correto!")
		} else {
			fmt.Printf("❌ Incorreto. Gabarito: %s\n", q.Answer)
		}
		fmt.Printf("💡 %s\n\n", q.Explanation)
		fmt.Println(strings.Repeat("─", 50))
		fmt.Println()
	}

	if len(questions) == 0 {
		fmt.Println("Nenhuma questão disponível.")
		return
	}
	rate := float64(correct) / float64(len(questions)) * 100
	fmt.Printf("🏆 Resultado: %d/%d (%.1f%%)\n", correct, len(questions), rate)
	if rate >= 70 {
		fmt.Println("🌟 Meta de aprovação atingida!")
	} else {
		fmt.Println("📚 Continue estudando!")
	}
}
