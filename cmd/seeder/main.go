package main

import (
	"context"
	"flag"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/quillworks/docpipe"
	"github.com/quillworks/docpipe/config"
	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/ingestion"
)

type seedDoc struct {
	filename string
	content  string
}

// Built-in corpus so a fresh install has something to search.
var samples = []seedDoc{
	{
		filename: "getting-started.md",
		content: "# Getting started\n\n" +
			"Upload a document and the pipeline converts it to text, splits the text " +
			"into chunks, embeds each chunk, and writes the vectors to the index. " +
			"Every step is recorded on the document, so a stuck upload tells you " +
			"which stage it stopped in.\n\n" +
			"Search queries embed the query text with the same provider and return " +
			"the closest chunks along with the document they came from.",
	},
	{
		filename: "maintenance-window.md",
		content: "# Maintenance window\n\n" +
			"The weekly maintenance window for the gamma cluster opens Thursday at " +
			"02:00 UTC and lasts two hours. Ingestion is paused during the window; " +
			"queued uploads resume automatically when it closes.\n\n" +
			"Searches keep working against the existing index while maintenance " +
			"runs, so read traffic does not need to be drained.",
	},
	{
		filename: "release-checklist.md",
		content: "# Release checklist\n\n" +
			"Before tagging a release, reindex the staging corpus with the candidate " +
			"embedding model and compare the top results for the benchmark queries. " +
			"A model swap without a reindex leaves old and new vectors mixed in the " +
			"same index.\n\n" +
			"After the tag, watch the failure counters for one full ingest cycle. " +
			"A rise in conversion failures usually means the converter image and the " +
			"service were upgraded out of step.",
	},
	{
		filename: "incident-postmortem.md",
		content: "# Postmortem: embedding outage on April 12\n\n" +
			"The embedding provider returned rate limit errors for forty minutes. " +
			"Documents kept failing at the embedding stage and stayed retryable; no " +
			"data was lost, and reprocessing the failed batch cleared the backlog " +
			"once the provider recovered.\n\n" +
			"Action items: alert on the failure counter by stage, and cap upload " +
			"concurrency below the provider's documented request budget.",
	},
	{
		filename: "storage-sizing.md",
		content: "# Storage sizing\n\n" +
			"Plan for roughly three times the raw document size once converted text, " +
			"chunks, and embeddings are stored. Vector payloads dominate for short " +
			"documents; converted text dominates for scanned PDFs.\n\n" +
			"The store compacts in the background, so disk usage dips after large " +
			"deletions rather than immediately.",
	},
	{
		filename: "api-conventions.md",
		content: "# API conventions\n\n" +
			"Mutating endpoints return the affected document id and a status string. " +
			"Processing is asynchronous: a 202 response means the work is queued, " +
			"not finished, and the status endpoint is the source of truth.\n\n" +
			"Validation problems come back as 400 with a message naming the field. " +
			"Collaborator outages map to 502 so client retries back off correctly.",
	},
	{
		filename: "onboarding-notes.md",
		content: "# Onboarding notes\n\n" +
			"Start the converter and an embedding provider locally, then run the " +
			"server with the sample configuration. The seeder loads this corpus so " +
			"the first search returns something meaningful.\n\n" +
			"The in-memory index is fine for development. Switch the index kind to " +
			"elastic before loading more than a few thousand documents.",
	},
	{
		filename: "backup-policy.md",
		content: "# Backup policy\n\n" +
			"The document store is the system of record; the vector index can be " +
			"rebuilt from it at any time with the reindex command. Back up the store " +
			"directory nightly and before every upgrade.\n\n" +
			"Restores bring documents back with their processing state intact, so a " +
			"restored store only needs a reindex if the embedding model changed.",
	},
}

var (
	configPath = flag.String("config", "docpipe.yaml", "path to the service configuration")
	srcDir     = flag.String("src", "", "directory of files to ingest instead of the built-in samples")
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
	flag.Parse()
}

// documentsFromDir returns an iterator over the regular files in dir.
func documentsFromDir(dir string) (iter.Seq2[string, []byte], error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	return func(yield func(string, []byte) bool) {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
			if err != nil {
				slog.Error("skipping unreadable file", "file", entry.Name(), "err", err)
				continue
			}
			if !yield(entry.Name(), data) {
				return
			}
		}
	}, nil
}

// documentsFromSamples returns an iterator over the built-in corpus.
func documentsFromSamples() iter.Seq2[string, []byte] {
	return func(yield func(string, []byte) bool) {
		for _, doc := range samples {
			if !yield(doc.filename, []byte(doc.content)) {
				return
			}
		}
	}
}

// submitAll pushes every document into the pipeline and returns the ids.
func submitAll(ctx context.Context, pipeline *ingestion.Pipeline, source iter.Seq2[string, []byte]) ([]string, error) {
	var ids []string
	for name, content := range source {
		doc, err := pipeline.Submit(ctx, ingestion.Upload{Filename: name, Content: content})
		if err != nil {
			return ids, fmt.Errorf("submitting %s: %w", name, err)
		}
		ids = append(ids, doc.Id)
	}
	return ids, nil
}

// awaitAll polls until every submitted document reaches a terminal
// status, logging the outcome of each.
func awaitAll(ctx context.Context, pipeline *ingestion.Pipeline, ids []string) error {
	pending := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		pending[id] = struct{}{}
	}

	deadline := time.Now().Add(2 * time.Minute)
	for len(pending) > 0 && time.Now().Before(deadline) {
		for id := range pending {
			status, detail, err := pipeline.Status(ctx, id)
			if err != nil {
				return err
			}
			if !status.Terminal() {
				continue
			}
			if status == core.StatusFailed {
				slog.Error("document failed", "document", id, "detail", detail)
			} else {
				slog.Info("document indexed", "document", id)
			}
			delete(pending, id)
		}
		time.Sleep(200 * time.Millisecond)
	}

	if len(pending) > 0 {
		return fmt.Errorf("%d documents still processing after deadline", len(pending))
	}
	return nil
}

func main() {
	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	svc, err := docpipe.NewService(cfg)
	if err != nil {
		panic(err)
	}
	defer svc.Close()

	ctx := context.Background()

	var source iter.Seq2[string, []byte]
	if *srcDir != "" {
		source, err = documentsFromDir(*srcDir)
		if err != nil {
			panic(err)
		}
	} else {
		source = documentsFromSamples()
	}

	ids, err := submitAll(ctx, svc.Pipeline(), source)
	if err != nil {
		panic(err)
	}
	slog.Info("submitted documents", "count", len(ids))

	if err := awaitAll(ctx, svc.Pipeline(), ids); err != nil {
		panic(err)
	}
}
