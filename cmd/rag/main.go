package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/cpretzinger/idudesRAG/internal/app"
	"github.com/cpretzinger/idudesRAG/internal/config"
	"github.com/cpretzinger/idudesRAG/internal/service"
	"github.com/cpretzinger/idudesRAG/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, contentType string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/idudesrag/config.yaml if not provided)")
	flag.StringVar(&contentType, "content-type", "", "Content profile for every file: podcast, book, avatar, social, prompt")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Println("Usage: rag [--config=config.yaml] [--content-type=podcast] file1.txt [file2.md ...]")
		os.Exit(1)
	}

	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := app.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		app.Fatal(log, "Failed to assemble components", err)
	}
	defer a.Close()

	docs, err := service.ReadDocuments(inputs, contentType)
	if err != nil {
		app.Fatal(log, "Failed to read documents", err)
	}
	sum, err := a.Service.IngestDocuments(ctx, docs)
	if err != nil {
		log.Warn("Some documents failed to ingest", "error", err)
	}
	ingested := 0
	for _, d := range sum.Documents {
		if d.Error == "" {
			ingested++
		}
	}
	if ingested == 0 {
		app.Fatal(log, "Ingest failed", err)
	}

	m := tui.New(a.Service, sum.Summary)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		app.Fatal(log, "Terminal UI failed", err)
	}
}
