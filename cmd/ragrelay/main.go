// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/ragrelay/search"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "ragrelay",
		Usage: "Hybrid search and retrieval-augmented generation over HTTP and message streams",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML config file (defaults to ./ragrelay.yaml when present)",
				EnvVars: []string{"RAGRELAY_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Aliases: []string{"d"},
				Usage:   "BadgerDB directory; overrides the config file",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the stream listener",
				Action: serveCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address; overrides the config file",
					},
					&cli.StringFlag{
						Name:    "api-key",
						Usage:   "Bearer token required by the API",
						EnvVars: []string{"RAGRELAY_API_KEY"},
					},
					&cli.BoolFlag{
						Name:  "no-stream",
						Usage: "Do not start the stream listener",
					},
				},
			},
			{
				Name:      "add",
				Usage:     "Add documents from arguments or files",
				ArgsUsage: "[text...]",
				Action:    addCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "Read documents from a file: JSON lines of {id, text, metadata}, or plain text as one document",
					},
					&cli.StringFlag{
						Name:  "source",
						Usage: "Source metadata for documents given as arguments",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents added per batch",
						Value: 64,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run a hybrid search",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   search.DefaultLimit,
					},
					&cli.Float64Flag{
						Name:    "weight",
						Aliases: []string{"w"},
						Usage:   "Semantic weight between 0 (keywords only) and 1 (vectors only)",
						Value:   search.DefaultWeight,
					},
					&cli.BoolFlag{
						Name:  "explain",
						Usage: "Print each ranking step",
					},
				},
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from the stored documents",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Documents retrieved as context (0 uses the config)",
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Score a document must exceed to be used (negative uses the config)",
						Value: -1,
					},
				},
			},
			{
				Name:      "complete",
				Usage:     "Send a prompt straight to the language model",
				ArgsUsage: "<prompt>",
				Action:    completeCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "system",
						Usage: "System prompt (defaults to the configured one)",
					},
				},
			},
			{
				Name:      "publish",
				Usage:     "Publish a request message on a stream channel",
				ArgsUsage: "<json-data>",
				Action:    publishCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "channel",
						Usage:    "Channel to publish on",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "type",
						Aliases:  []string{"t"},
						Usage:    "Message type, e.g. rag_query",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "session",
						Usage: "Session id (generated when empty)",
					},
					&cli.DurationFlag{
						Name:  "wait",
						Usage: "Wait this long for the responses and print them",
					},
				},
			},
			{
				Name:   "pending",
				Usage:  "Show entries delivered to the consumer but not acknowledged",
				Action: pendingCommand,
			},
			{
				Name:   "snapshot",
				Usage:  "Write the vector index to a file",
				Action: snapshotCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Snapshot file path",
						Required: true,
					},
				},
			},
			{
				Name:   "check-snapshot",
				Usage:  "Compare a vector snapshot with the stored documents",
				Action: checkSnapshotCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "in",
						Aliases:  []string{"i"},
						Usage:    "Snapshot file path",
						Required: true,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Reembed every stored document with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of documents to embed in each call",
						Value: 100,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of batches embedded concurrently",
						Value: 4,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum attempts for each embedding call",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
		},
	}
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
