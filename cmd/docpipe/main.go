// Copyright 2025 Quillworks Labs
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
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/quillworks/docpipe"
	"github.com/quillworks/docpipe/config"
	"github.com/quillworks/docpipe/core"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "docpipe",
		Usage: "Document processing and semantic search service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to YAML configuration file",
				Value:   "docpipe.yaml",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "addr",
				Aliases: []string{"a"},
				Usage:   "Base URL of the server for client commands",
				Value:   "http://localhost:8080",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the document pipeline server",
				Action: serveAction,
			},
			{
				Name:      "upload",
				Usage:     "Upload a file for processing",
				ArgsUsage: "<file>",
				Action:    uploadAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "metadata",
						Usage: "Document metadata as a JSON object of string values",
					},
					&cli.BoolFlag{
						Name:  "wait",
						Usage: "Block until processing reaches a terminal status",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "How long to wait with --wait",
						Value: 2 * time.Minute,
					},
				},
			},
			{
				Name:      "status",
				Usage:     "Show the processing status of a document",
				ArgsUsage: "<id>",
				Action:    statusAction,
			},
			{
				Name:      "process",
				Usage:     "Schedule reprocessing of a document",
				ArgsUsage: "<id>",
				Action:    processAction,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "force",
						Usage: "Rerun every stage even if the document is already indexed",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run a semantic search query",
				ArgsUsage: "<query>",
				Action:    searchAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "provider",
						Usage: "Embedding provider to query with (default: server default)",
					},
					&cli.IntFlag{
						Name:  "k",
						Usage: "Number of results to return (default: server default)",
					},
					&cli.StringSliceFlag{
						Name:  "filter",
						Usage: "Metadata filter as key=value, repeatable",
					},
				},
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed every document and rewrite its vectors",
				Action: reindexAction,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "provider",
						Usage: "Embedding provider to reindex with (default: configured default)",
					},
				},
			},
		},
	}
}

func serveAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	svc, err := docpipe.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to assemble service: %w", err)
	}
	defer svc.Close()

	srv := svc.NewServer()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		slog.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(ctx)
}

func uploadAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("usage: docpipe upload <file>")
	}

	client := newAPIClient(c.String("addr"))
	doc, err := client.upload(c.Context, path, c.String("metadata"))
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s (%s)\n", doc.Id, doc.Filename, doc.Status)

	if !c.Bool("wait") {
		return nil
	}
	return waitForDocument(c.Context, client, doc.Id, c.Duration("timeout"))
}

// waitForDocument polls the status endpoint until the document reaches
// a terminal status or the timeout passes.
func waitForDocument(ctx context.Context, client *apiClient, id string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		st, err := client.status(ctx, id)
		if err != nil {
			return err
		}
		switch st.Status {
		case string(core.StatusIndexed):
			fmt.Printf("%s  indexed\n", id)
			return nil
		case string(core.StatusFailed):
			return fmt.Errorf("processing failed: %s", st.Error)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("timed out waiting for document %s", id)
}

func statusAction(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("usage: docpipe status <id>")
	}

	client := newAPIClient(c.String("addr"))
	st, err := client.status(c.Context, id)
	if err != nil {
		return err
	}

	if st.Error != "" {
		fmt.Printf("%s: %s\n", st.Status, st.Error)
	} else {
		fmt.Println(st.Status)
	}
	return nil
}

func processAction(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("usage: docpipe process <id>")
	}

	client := newAPIClient(c.String("addr"))
	resp, err := client.process(c.Context, id, c.Bool("force"))
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s\n", resp.Id, resp.Status)
	return nil
}

func searchAction(c *cli.Context) error {
	query := strings.Join(c.Args().Slice(), " ")
	if query == "" {
		return fmt.Errorf("usage: docpipe search <query>")
	}

	filter, err := parseFilter(c.StringSlice("filter"))
	if err != nil {
		return err
	}

	client := newAPIClient(c.String("addr"))
	resp, err := client.search(c.Context, searchPayload{
		Query:    query,
		Provider: c.String("provider"),
		K:        c.Int("k"),
		Filter:   filter,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Found %d hits\n", len(resp.Results))
	for i, hit := range resp.Results {
		fmt.Printf("%d: '%s' %s [%0.3f]\n", i, snippet(hit.Text, 80), hit.Filename, hit.Score)
	}
	return nil
}

func reindexAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}

	// Reindexing opens the store directly, so the server must not be
	// running against it.
	svc, err := docpipe.NewService(cfg)
	if err != nil {
		return fmt.Errorf("failed to assemble service: %w", err)
	}
	defer svc.Close()

	return svc.Reindex(c.Context, c.String("provider"), os.Stderr)
}

// parseFilter turns repeated key=value flags into a metadata filter.
func parseFilter(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	filter := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q: expected key=value", pair)
		}
		filter[key] = value
	}
	return filter, nil
}

// snippet shortens s to at most n runes for one-line display.
func snippet(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}

func setup(c *cli.Context) error {
	// Load .env before anything reads provider keys from the
	// environment.
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("loading .env: %w", err)
		}
	}
	return setupLogger(c)
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
