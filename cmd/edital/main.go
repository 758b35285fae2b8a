package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"concursoprep"
)

func main() {
	cfg, err := concursoprep.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		inputFile = flag.String("input", "", "Edital text file (default: stdin)")
		examName  = flag.String("exam", "", "Exam name")
		board     = flag.String("board", "", "Exam board")
		role      = flag.String("role", "", "Target role")
		model     = flag.String("model", "", "Model provider: groq, deepseek or gemini")
		dbPath    = flag.String("db", cfg.DBPath, "SQLite database path")
		user      = flag.String("user", "", "Save the structured syllabus for this user")
		list      = flag.Bool("list", false, "List the saved syllabi of -user and exit")
		verbose   = flag.Bool("verbose", cfg.Verbose, "Enable verbose debugging output")
	)

	flag.Parse()

	concursoprep.SetVerbose(*verbose)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if *list {
		if *user == "" {
			log.Fatal("User is required with -list.")
		}
		db := openDB(*dbPath)
		defer db.Close()
		syllabi, err := db.ListSyllabi(ctx, *user)
		if err != nil {
			log.Fatalf("Failed to list syllabi: %v", err)
		}
		for _, s := range syllabi {
			fmt.Printf("%d\t%s\t%s / %s\t%d matérias\t%s\n",
				s.ID, s.ExamName, s.Board, s.Role, len(s.Subjects), s.AnalyzedAt.Format("2006-01-02"))
		}
		return
	}

	var text []byte
	if *inputFile != "" {
		text, err = os.ReadFile(*inputFile)
	} else {
		text, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		log.Fatalf("Failed to read edital: %v", err)
	}

	registry := concursoprep.NewRegistryFromConfig(cfg)
	defer registry.Close()
	chat, err := registry.Get(*model)
	if err != nil {
		log.Fatalf("No model available: %v", err)
	}

	syllabus, err := concursoprep.StructureSyllabus(ctx, chat, *examName, *board, *role, string(text))
	if err != nil {
		log.Fatalf("Failed to structure syllabus: %v", err)
	}

	if *user != "" {
		db := openDB(*dbPath)
		defer db.Close()
		syllabus.User = *user
		if err := db.SaveSyllabus(ctx, syllabus); err != nil {
			log.Fatalf("Failed to save syllabus: %v", err)
		}
		log.Printf("Syllabus saved with id %d", syllabus.ID)
	}

	output, err := json.MarshalIndent(syllabus, "", "  ")
	if err != nil {
		log.Fatalf("Failed to marshal syllabus: %v", err)
	}
	fmt.Println(string(output))
}

func openDB(path string) *concursoprep.DB {
	db, err := concursoprep.OpenDB(path)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	return db
}
