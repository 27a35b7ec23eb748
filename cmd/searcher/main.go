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
	"log/slog"
	"os"
	"strings"

	"github.com/quillworks/docpipe"
	"github.com/quillworks/docpipe/config"
	"github.com/quillworks/docpipe/search"
)

func init() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(handler))
}

func main() {
	cfg, err := config.Load("docpipe.yaml")
	if err != nil {
		panic(err)
	}

	svc, err := docpipe.NewService(cfg)
	if err != nil {
		panic(err)
	}
	defer svc.Close()

	query := "maintenance window"
	if len(os.Args) > 1 {
		query = strings.Join(os.Args[1:], " ")
	}

	results, err := svc.Searcher().Search(context.Background(), query, search.Options{})
	if err != nil {
		panic(err)
	}

	fmt.Printf("Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Printf("%d: '%s' %s#%d [%0.3f]\n", i, hit.Text, hit.Filename, hit.Sequence, hit.Score)
	}
}
