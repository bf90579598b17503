package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/poiesic/ragrelay"
	"github.com/poiesic/ragrelay/ai"
	"github.com/poiesic/ragrelay/reembed"
	"github.com/poiesic/ragrelay/storage/badger"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"
)

func reembedCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if cfg.DataDir == "" {
		return errors.New("reembed needs a persistent data directory: set data_dir or --data-dir")
	}

	config := &reembed.Config{
		BatchSize:  c.Int("batch-size"),
		Workers:    c.Int("workers"),
		MaxRetries: c.Int("max-retries"),
		RetryDelay: c.Duration("retry-delay"),
	}
	if err := config.Validate(); err != nil {
		return err
	}

	provider, err := ragrelay.NewProvider(ai.NewConfig(cfg.AIOptions()...))
	if err != nil {
		return fmt.Errorf("failed to create AI provider: %w", err)
	}
	defer provider.Close()

	backend, err := badger.OpenBackend(cfg.DataDir, false)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer backend.Close()

	repo, err := badger.NewDocumentRepository(backend)
	if err != nil {
		return fmt.Errorf("failed to open documents: %w", err)
	}
	defer repo.Close()

	progress := &barProgress{writer: c.App.ErrWriter, description: "Reembedding documents"}
	reembedder, err := reembed.NewReembedder(repo, provider.Embedder(), config, progress)
	if err != nil {
		return err
	}

	summary, err := reembedder.Run(c.Context)
	if err != nil {
		return fmt.Errorf("reembed failed: %w", err)
	}

	if summary.Documents == 0 {
		fmt.Fprintln(c.App.Writer, "No documents to reembed")
		return nil
	}
	headerColor.Fprintf(c.App.Writer, "\nReembedded %d documents (%d dimensions) in %v\n",
		summary.Documents, summary.Dimension, summary.Elapsed.Round(time.Millisecond))
	return nil
}

// barProgress renders reembed progress as a terminal progress bar.
type barProgress struct {
	writer      io.Writer
	description string
	bar         *progressbar.ProgressBar
}

func (p *barProgress) Start(total int) {
	p.bar = getProgressBar(p.writer, total, p.description)
}

func (p *barProgress) Add(n int) {
	if p.bar != nil {
		p.bar.Add(n)
	}
}

func (p *barProgress) Finish() {
	if p.bar != nil {
		p.bar.Finish()
	}
}

func getProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("docs"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}
