// Command rag-chunk runs the document pipeline on files without embedding or storing anything.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/cpretzinger/idudesRAG/internal/app"
	"github.com/cpretzinger/idudesRAG/internal/config"
	"github.com/cpretzinger/idudesRAG/internal/domain"
	"github.com/cpretzinger/idudesRAG/internal/pipeline"
	"github.com/cpretzinger/idudesRAG/internal/service"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "Path to config YAML")
	contentType := flag.String("content-type", "", "Content profile: podcast, book, avatar, social, prompt")
	target := flag.Int("target", 0, "Target chunk size in characters (overrides config and profile)")
	overlap := flag.Int("overlap", -1, "Overlap in characters (overrides config and profile)")
	asJSON := flag.Bool("json", false, "Print the full pipeline result as JSON")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Println("Usage: rag-chunk [--config=config.yaml] [--content-type=podcast] [--target=900 --overlap=150] [--json] file1.txt [...]")
		os.Exit(1)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := app.NewLogger(cfg.Log)
	p, err := app.NewPipeline(cfg, log)
	if err != nil {
		app.Fatal(log, "Invalid pipeline configuration", err)
	}

	docs, err := service.ReadDocuments(inputs, *contentType)
	if err != nil {
		app.Fatal(log, "Failed to read documents", err)
	}
	opts := chunkOptions(*target, *overlap)

	ctx := context.Background()
	failed := false
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	for _, doc := range docs {
		doc.Options = opts
		res, err := p.Process(ctx, doc)
		if err != nil {
			log.Error("Pipeline failed", "path", doc.Source, "stage", domain.StageOf(err), "error", err)
			failed = true
			continue
		}
		if *asJSON {
			if err := enc.Encode(res); err != nil {
				app.Fatal(log, "Failed to write JSON", err)
			}
			continue
		}
		fmt.Println(render(doc, res))
	}
	if failed {
		os.Exit(1)
	}
}

func chunkOptions(target, overlap int) *domain.ChunkOptions {
	if target <= 0 && overlap < 0 {
		return nil
	}
	opts := &domain.ChunkOptions{TargetSize: target}
	if overlap >= 0 {
		opts.Overlap = &overlap
	}
	return opts
}

func render(doc domain.RawDocument, res *pipeline.Result) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(doc.Source) + "\n")
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("%-12s", label)) + value + "\n")
	}
	row("format", fmt.Sprintf("%s (confidence %.2f)", res.Detection.LikelyFormat, res.Detection.Confidence))
	row("steps", strings.Join(res.Steps, ", "))
	row("chunking", fmt.Sprintf("target %d, overlap %d", res.TargetSize, res.Overlap))
	row("chunks", fmt.Sprintf("%d", len(res.Chunks)))
	if res.Fallback {
		b.WriteString(warnStyle.Render("fallback cleanup was used") + "\n")
	}
	for _, c := range res.Chunks {
		preview := []rune(strings.ReplaceAll(c.Text, "\n", " "))
		if len(preview) > 72 {
			preview = append(preview[:72], '…')
		}
		b.WriteString(fmt.Sprintf("  #%-3d %5d chars %4d tokens  %s\n", c.Index, c.Size, c.Metadata.TokenCount, string(preview)))
	}
	return boxStyle.Render(strings.TrimRight(b.String(), "\n"))
}
