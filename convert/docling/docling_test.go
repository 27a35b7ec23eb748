package docling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/docpipe/convert"
	"github.com/quillworks/docpipe/core"
)

func TestConfig_Validate(t *testing.T) {
	cfg := Config{}
	assert.Error(t, cfg.Validate())

	cfg = Config{BaseURL: "http://localhost:5001", Timeout: -time.Second}
	assert.Error(t, cfg.Validate())

	cfg = Config{BaseURL: "http://localhost:5001"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
}

func TestClient_Convert(t *testing.T) {
	var gotFilename, gotMediaType string
	var gotContent []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/convert", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotMediaType = r.FormValue("media_type")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		gotFilename = header.Filename
		gotContent, err = io.ReadAll(file)
		require.NoError(t, err)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"blocks": []map[string]any{
				{"type": "heading", "text": "Overview", "page": 1},
				{"type": "paragraph", "text": "Body text.", "page": 1},
				{"type": "table-row", "text": "name | value", "page": 2},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	blocks, err := client.Convert(context.Background(), []byte("raw bytes"), "report.pdf", "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, "report.pdf", gotFilename)
	assert.Equal(t, "application/pdf", gotMediaType)
	assert.Equal(t, []byte("raw bytes"), gotContent)

	require.Len(t, blocks, 3)
	assert.Equal(t, core.Block{Type: core.BlockTypeHeading, Text: "Overview", Page: 1}, blocks[0])
	assert.Equal(t, core.Block{Type: core.BlockTypeParagraph, Text: "Body text.", Page: 1}, blocks[1])
	assert.Equal(t, core.Block{Type: core.BlockTypeTableRow, Text: "name | value", Page: 2}, blocks[2])
}

func TestClient_Convert_UnknownBlockTypeDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"blocks": []map[string]any{
				{"type": "formula", "text": "e = mc^2", "page": 3},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	blocks, err := client.Convert(context.Background(), []byte("x"), "f.pdf", "application/pdf")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, core.BlockTypeParagraph, blocks[0].Type)
	assert.Equal(t, "e = mc^2", blocks[0].Text)
}

func TestClient_Convert_ServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "engine exploded"})
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Convert(context.Background(), []byte("x"), "f.pdf", "application/pdf")
	require.Error(t, err)

	var convErr *convert.Error
	require.ErrorAs(t, err, &convErr)
	assert.Contains(t, convErr.Error(), "engine exploded")
}

func TestClient_Convert_UnsupportedMediaType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnsupportedMediaType)
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Convert(context.Background(), []byte("x"), "f.xyz", "application/x-unknown")
	require.Error(t, err)

	var convErr *convert.Error
	require.ErrorAs(t, err, &convErr)
	assert.ErrorIs(t, err, core.ErrUnsupportedMediaType)
}

func TestClient_Convert_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.Convert(context.Background(), []byte("x"), "f.pdf", "application/pdf")
	var convErr *convert.Error
	require.ErrorAs(t, err, &convErr)
}

func TestClient_Convert_ContextCanceled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Convert(ctx, []byte("x"), "f.pdf", "application/pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "cancellation must stay visible through the wrap")
}

func TestClient_Convert_EmptyBlockList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"blocks": []}`))
	}))
	defer srv.Close()

	client, err := NewClient(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	blocks, err := client.Convert(context.Background(), []byte{}, "empty.txt", "text/plain")
	require.NoError(t, err)
	assert.Empty(t, blocks)
}
