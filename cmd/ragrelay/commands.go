package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/poiesic/ragrelay"
	"github.com/poiesic/ragrelay/config"
	"github.com/poiesic/ragrelay/core"
	"github.com/poiesic/ragrelay/message"
	"github.com/poiesic/ragrelay/rag"
	"github.com/poiesic/ragrelay/search"
	"github.com/poiesic/ragrelay/server"
	"github.com/urfave/cli/v2"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	scoreColor  = color.New(color.FgGreen)
	dimColor    = color.New(color.Faint)
	errorColor  = color.New(color.FgRed, color.Bold)
)

// loadConfig reads the configuration named by the global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	return cfg, nil
}

// openEngine loads the configuration and opens an engine with the listener stopped.
func openEngine(c *cli.Context, adjust func(*config.Config)) (*ragrelay.Engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
	}
	return ragrelay.Open(c.Context, cfg)
}

func serveCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine, err := openEngine(c, func(cfg *config.Config) {
		if addr := c.String("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
		if key := c.String("api-key"); key != "" {
			cfg.Server.APIKey = key
		}
		if c.Bool("no-stream") {
			cfg.Stream.Enabled = false
		}
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			errorColor.Fprintf(c.App.ErrWriter, "Error closing engine: %v\n", err)
		}
	}()

	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start stream listener: %w", err)
	}

	srv, err := engine.NewServer()
	if err != nil {
		return err
	}

	headerColor.Fprintf(c.App.Writer, "Listening on %s\n", engine.Config().Server.Addr)
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func addCommand(c *cli.Context) error {
	docs, err := collectDocuments(c)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return errors.New("nothing to add: pass text arguments or --file")
	}
	batchSize := c.Int("batch-size")
	if batchSize < 1 {
		return errors.New("batch-size must be greater than 0")
	}

	engine, err := openEngine(c, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	bar := getProgressBar(c.App.ErrWriter, len(docs), "Adding documents")
	var ids []core.ID
	for start := 0; start < len(docs); start += batchSize {
		end := min(start+batchSize, len(docs))
		added, err := engine.Pipeline().Add(c.Context, docs[start:end])
		if err != nil {
			return fmt.Errorf("failed to add documents %d-%d: %w", start, end-1, err)
		}
		ids = append(ids, added...)
		bar.Add(end - start)
	}
	bar.Finish()

	count, err := engine.Pipeline().Count(c.Context)
	if err != nil {
		return err
	}
	headerColor.Fprintf(c.App.Writer, "\nAdded %d documents (%d total)\n", len(ids), count)
	for _, id := range ids {
		fmt.Fprintln(c.App.Writer, id)
	}
	return nil
}

// collectDocuments gathers documents from --file flags and positional arguments.
func collectDocuments(c *cli.Context) ([]*core.Document, error) {
	var docs []*core.Document
	for _, path := range c.StringSlice("file") {
		fileDocs, err := readDocumentFile(path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, fileDocs...)
	}

	source := c.String("source")
	for _, text := range c.Args().Slice() {
		doc := &core.Document{Text: text, Metadata: map[string]any{}}
		if source != "" {
			doc.Metadata["source"] = source
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// readDocumentFile reads a JSON lines file of document inputs, or any other
// file as a single document sourced from its name. "-" reads standard input.
func readDocumentFile(path string) ([]*core.Document, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	if path != "-" && !strings.EqualFold(filepath.Ext(path), ".jsonl") {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return []*core.Document{{
			Text:     string(data),
			Metadata: map[string]any{"source": filepath.Base(path)},
		}}, nil
	}

	var docs []*core.Document
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), server.MaxBodyBytes)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var input message.DocumentInput
		if err := json.Unmarshal([]byte(raw), &input); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		docs = append(docs, &core.Document{ID: input.ID, Text: input.Text, Metadata: input.Metadata})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return docs, nil
}

func searchCommand(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return errors.New("search requires a query")
	}

	engine, err := openEngine(c, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	start := time.Now()
	var monitor search.SearchMonitor
	if c.Bool("explain") {
		monitor = &explainMonitor{w: c.App.Writer}
	}
	results, err := engine.Searcher().SearchWithMonitor(c.Context, query, c.Int("limit"), c.Float64("weight"), monitor)
	if err != nil {
		return err
	}
	headerColor.Fprintf(c.App.Writer, "%d results in %v\n", len(results), time.Since(start).Round(time.Millisecond))
	printResults(c.App.Writer, results)
	return nil
}

// explainMonitor prints the intermediate steps of a search.
type explainMonitor struct {
	w io.Writer
}

func (m *explainMonitor) Start(query string, weight float64) {
	dimColor.Fprintf(m.w, "query %q, semantic weight %.2f\n", query, weight)
}

func (m *explainMonitor) AfterQueryEmbedding(dimension int) {
	dimColor.Fprintf(m.w, "embedded query (%d dimensions)\n", dimension)
}

func (m *explainMonitor) AfterSemanticScoring(candidates int) {
	dimColor.Fprintf(m.w, "scored %d documents by similarity\n", candidates)
}

func (m *explainMonitor) AfterKeywordScoring(tokens []string, matches int, maxScore float64) {
	dimColor.Fprintf(m.w, "keywords %v matched %d documents (max bm25 %.3f)\n", tokens, matches, maxScore)
}

func (m *explainMonitor) SkippedMissing(id core.ID) {
	dimColor.Fprintf(m.w, "skipped %s: indexed but not stored\n", id)
}

func (m *explainMonitor) Finish(results []core.ScoredResult) {
	dimColor.Fprintf(m.w, "kept %d results\n", len(results))
}

func printResults(w io.Writer, results []core.ScoredResult) {
	for i, r := range results {
		fmt.Fprintf(w, "\n%d. ", i+1)
		scoreColor.Fprintf(w, "[%.3f]", r.Score)
		fmt.Fprintf(w, " %s\n", r.SourceLabel())
		dimColor.Fprintf(w, "   semantic %.3f  keyword %.3f  id %s\n", r.Breakdown.Semantic, r.Breakdown.Keyword, r.ID)
		fmt.Fprintf(w, "   %s\n", truncate(r.Text, 200))
	}
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func askCommand(c *cli.Context) error {
	question := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(question) == "" {
		return errors.New("ask requires a question")
	}

	engine, err := openEngine(c, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	var opts []rag.QueryOption
	if limit := c.Int("limit"); limit > 0 {
		opts = append(opts, rag.WithLimit(limit))
	}
	if minScore := c.Float64("min-score"); minScore >= 0 {
		opts = append(opts, rag.WithMinScore(minScore))
	}

	result, err := engine.Orchestrator().Generate(c.Context, question, opts...)
	if err != nil {
		return err
	}
	headerColor.Fprintf(c.App.Writer, "Context (%d documents)\n", len(result.Context))
	printResults(c.App.Writer, result.Context)
	headerColor.Fprintln(c.App.Writer, "\nAnswer")
	fmt.Fprintln(c.App.Writer, result.Response)
	return nil
}

func completeCommand(c *cli.Context) error {
	prompt := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(prompt) == "" {
		return errors.New("complete requires a prompt")
	}

	engine, err := openEngine(c, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	req := message.CompleteRequest{Prompt: prompt, SystemPrompt: c.String("system")}
	msg, err := message.New(req.Type(), uuid.NewString(), req)
	if err != nil {
		return err
	}
	for _, resp := range engine.Router().Handle(c.Context, msg) {
		if resp.Type == message.TypeError {
			return responseError(resp)
		}
		var out message.LLMResponse
		if err := resp.Payload(&out); err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, out.Response)
	}
	return nil
}

func responseError(resp message.Message) error {
	var payload message.ErrorPayload
	if err := resp.Payload(&payload); err != nil {
		return err
	}
	return fmt.Errorf("%s: %s", payload.Kind, payload.Error)
}

func publishCommand(c *cli.Context) error {
	data := strings.TrimSpace(c.Args().First())
	if data == "" {
		data = "{}"
	}
	if !json.Valid([]byte(data)) {
		return errors.New("message data must be valid JSON")
	}

	engine, err := openEngine(c, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	log := engine.MessageLog()
	if log == nil {
		return errors.New("streaming is disabled in the configuration")
	}

	channel := c.String("channel")
	sessionID := c.String("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	msg := message.Message{
		Type:      message.Type(c.String("type")),
		Data:      json.RawMessage(data),
		SessionID: sessionID,
	}
	if !msg.Type.IsRequest() {
		return fmt.Errorf("unknown request type %q", msg.Type)
	}

	wait := c.Duration("wait")
	observer := "ragrelay_cli_" + sessionID
	if wait > 0 {
		if err := log.CreateGroup(c.Context, channel, observer); err != nil {
			return fmt.Errorf("failed to create observer group: %w", err)
		}
	}

	id, err := log.Publish(c.Context, channel, message.ToFields(msg))
	if err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	headerColor.Fprintf(c.App.Writer, "Published %s on %s (session %s)\n", id, channel, sessionID)
	if wait <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(c.Context, wait)
	defer cancel()
	return awaitResponses(ctx, c.App.Writer, engine, channel, observer, sessionID)
}

// awaitResponses prints responses for sessionID until a final response
// arrives or ctx expires.
func awaitResponses(ctx context.Context, w io.Writer, engine *ragrelay.Engine, channel, group, sessionID string) error {
	log := engine.MessageLog()
	for {
		entries, err := log.Read(ctx, channel, group, "cli", 100, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("no final response within the wait time")
			}
			return err
		}
		ids := make([]string, 0, len(entries))
		for _, entry := range entries {
			ids = append(ids, entry.ID)
			msg, err := message.FromFields(entry.Fields)
			if err != nil || msg.SessionID != sessionID || !msg.Type.IsResponse() {
				continue
			}
			scoreColor.Fprintf(w, "%s ", msg.Type)
			fmt.Fprintln(w, string(msg.Data))
			if msg.Type != message.TypeRAGContext {
				return nil
			}
		}
		if len(ids) > 0 {
			if _, err := log.Ack(ctx, channel, group, ids...); err != nil {
				return err
			}
		}
		if ctx.Err() != nil {
			return fmt.Errorf("no final response within the wait time")
		}
	}
}

func pendingCommand(c *cli.Context) error {
	engine, err := openEngine(c, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	log := engine.MessageLog()
	if log == nil {
		return errors.New("streaming is disabled in the configuration")
	}
	listener := engine.Listener()
	for _, channel := range listener.Channels() {
		ids, err := log.Pending(c.Context, channel, listener.Group(), listener.Consumer())
		if err != nil {
			return fmt.Errorf("failed to read pending entries of %s: %w", channel, err)
		}
		headerColor.Fprintf(c.App.Writer, "%s: %d pending\n", channel, len(ids))
		for _, id := range ids {
			fmt.Fprintf(c.App.Writer, "  %s\n", id)
		}
	}
	return nil
}

func snapshotCommand(c *cli.Context) error {
	engine, err := openEngine(c, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	out := c.String("out")
	if err := engine.SaveSnapshot(out); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	count, err := engine.Pipeline().Count(c.Context)
	if err != nil {
		return err
	}
	headerColor.Fprintf(c.App.Writer, "Wrote %d vectors to %s\n", count, out)
	return nil
}

func checkSnapshotCommand(c *cli.Context) error {
	engine, err := openEngine(c, nil)
	if err != nil {
		return err
	}
	defer engine.Close()

	in := c.String("in")
	report, err := engine.CheckSnapshot(c.Context, in)
	if err != nil {
		return err
	}
	headerColor.Fprintf(c.App.Writer, "%s: %d vectors, %d dimensions\n", in, report.Vectors, report.Dimension)
	if report.Consistent() {
		scoreColor.Fprintln(c.App.Writer, "Snapshot matches the stored documents")
		return nil
	}
	for _, id := range report.Missing {
		fmt.Fprintf(c.App.Writer, "  missing %s\n", id)
	}
	for _, id := range report.Stale {
		fmt.Fprintf(c.App.Writer, "  stale   %s\n", id)
	}
	return fmt.Errorf("snapshot is out of date: %d missing, %d stale", len(report.Missing), len(report.Stale))
}
