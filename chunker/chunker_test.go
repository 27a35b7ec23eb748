package chunker

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/quillworks/docpipe/core"
)

func mustNew(t *testing.T, opts ...Option) *Chunker {
	t.Helper()
	c, err := New(opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func paragraphs(texts ...string) []core.Block {
	blocks := make([]core.Block, len(texts))
	for i, text := range texts {
		blocks[i] = core.Block{Type: core.BlockTypeParagraph, Text: text}
	}
	return blocks
}

func TestNew_InvalidMaxSize(t *testing.T) {
	if _, err := New(WithMaxChunkSize(0)); err == nil {
		t.Error("New(WithMaxChunkSize(0)) expected error, got nil")
	}
	if _, err := New(WithMaxChunkSize(-5)); err == nil {
		t.Error("New(WithMaxChunkSize(-5)) expected error, got nil")
	}
}

func TestSplit_AllBlocksFitOneChunk(t *testing.T) {
	c := mustNew(t)
	blocks := paragraphs("first paragraph", "second paragraph", "third paragraph")

	chunks := c.Split("doc-1", blocks)

	if len(chunks) != 1 {
		t.Fatalf("Split() returned %d chunks, want 1", len(chunks))
	}
	got := chunks[0]
	want := "first paragraph\nsecond paragraph\nthird paragraph"
	if got.Text != want {
		t.Errorf("chunk text = %q, want %q", got.Text, want)
	}
	if got.Id != "doc-1:0" || got.Sequence != 0 || got.StartBlock != 0 {
		t.Errorf("chunk identity = (%q, %d, %d), want (doc-1:0, 0, 0)", got.Id, got.Sequence, got.StartBlock)
	}
	if got.StartChar != 0 || got.EndChar != utf8.RuneCountInString(want) {
		t.Errorf("chunk span = [%d, %d), want [0, %d)", got.StartChar, got.EndChar, utf8.RuneCountInString(want))
	}
}

func TestSplit_FlushesWhenBlockDoesNotFit(t *testing.T) {
	c := mustNew(t, WithMaxChunkSize(10))
	blocks := paragraphs("aaaa", "bbbb", "cccc")

	chunks := c.Split("doc-1", blocks)

	if len(chunks) != 2 {
		t.Fatalf("Split() returned %d chunks, want 2", len(chunks))
	}
	if chunks[0].Text != "aaaa\nbbbb" {
		t.Errorf("chunks[0].Text = %q, want %q", chunks[0].Text, "aaaa\nbbbb")
	}
	if chunks[1].Text != "cccc" {
		t.Errorf("chunks[1].Text = %q, want %q", chunks[1].Text, "cccc")
	}
	if chunks[1].StartBlock != 2 {
		t.Errorf("chunks[1].StartBlock = %d, want 2", chunks[1].StartBlock)
	}
	// Spans are contiguous apart from the joining newline.
	if chunks[1].StartChar != chunks[0].EndChar+1 {
		t.Errorf("chunks[1].StartChar = %d, want %d", chunks[1].StartChar, chunks[0].EndChar+1)
	}
}

func TestSplit_ExactFitIncludesSeparator(t *testing.T) {
	c := mustNew(t, WithMaxChunkSize(9))

	chunks := c.Split("doc-1", paragraphs("aaaa", "bbbb"))

	if len(chunks) != 1 {
		t.Fatalf("Split() returned %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "aaaa\nbbbb" {
		t.Errorf("chunk text = %q, want %q", chunks[0].Text, "aaaa\nbbbb")
	}
}

func TestSplit_BlockAtExactMaxIsNotSplit(t *testing.T) {
	c := mustNew(t, WithMaxChunkSize(4))

	chunks := c.Split("doc-1", paragraphs("abcd"))

	if len(chunks) != 1 {
		t.Fatalf("Split() returned %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "abcd" {
		t.Errorf("chunk text = %q, want %q", chunks[0].Text, "abcd")
	}
}

func TestSplit_OversizedBlockHardSplits(t *testing.T) {
	c := mustNew(t, WithMaxChunkSize(4))
	blocks := paragraphs("xy", "0123456789", "zw")

	chunks := c.Split("doc-1", blocks)

	wantTexts := []string{"xy", "0123", "4567", "89", "zw"}
	if len(chunks) != len(wantTexts) {
		t.Fatalf("Split() returned %d chunks, want %d", len(chunks), len(wantTexts))
	}
	for i, want := range wantTexts {
		if chunks[i].Text != want {
			t.Errorf("chunks[%d].Text = %q, want %q", i, chunks[i].Text, want)
		}
		if chunks[i].Sequence != i {
			t.Errorf("chunks[%d].Sequence = %d, want %d", i, chunks[i].Sequence, i)
		}
	}

	// All three pieces of the oversized block point at block index 1,
	// and stay standalone: neither neighbor merges with a piece.
	for i := 1; i <= 3; i++ {
		if chunks[i].StartBlock != 1 {
			t.Errorf("chunks[%d].StartBlock = %d, want 1", i, chunks[i].StartBlock)
		}
	}
	if chunks[4].StartBlock != 2 {
		t.Errorf("chunks[4].StartBlock = %d, want 2", chunks[4].StartBlock)
	}

	// Pieces are contiguous; block boundaries account for the newline.
	if chunks[1].StartChar != chunks[0].EndChar+1 {
		t.Errorf("first piece starts at %d, want %d", chunks[1].StartChar, chunks[0].EndChar+1)
	}
	if chunks[2].StartChar != chunks[1].EndChar || chunks[3].StartChar != chunks[2].EndChar {
		t.Error("pieces of one block must be span-contiguous")
	}
	if chunks[4].StartChar != chunks[3].EndChar+1 {
		t.Errorf("trailing block starts at %d, want %d", chunks[4].StartChar, chunks[3].EndChar+1)
	}
}

func TestSplit_OversizedPieceCount(t *testing.T) {
	tests := []struct {
		name    string
		maxSize int
		size    int
		want    int
	}{
		{"even split", 4, 8, 2},
		{"remainder", 4, 9, 3},
		{"one over", 4, 5, 2},
		{"single rune pieces", 1, 3, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustNew(t, WithMaxChunkSize(tt.maxSize))
			chunks := c.Split("doc-1", paragraphs(strings.Repeat("x", tt.size)))
			if len(chunks) != tt.want {
				t.Errorf("Split() returned %d chunks, want %d", len(chunks), tt.want)
			}
			for i, chunk := range chunks {
				if n := utf8.RuneCountInString(chunk.Text); n > tt.maxSize {
					t.Errorf("chunks[%d] has %d runes, exceeds max %d", i, n, tt.maxSize)
				}
			}
		})
	}
}

func TestSplit_RuneBoundaries(t *testing.T) {
	c := mustNew(t, WithMaxChunkSize(3))

	chunks := c.Split("doc-1", paragraphs("日本語のテキスト"))

	wantTexts := []string{"日本語", "のテキ", "スト"}
	if len(chunks) != len(wantTexts) {
		t.Fatalf("Split() returned %d chunks, want %d", len(chunks), len(wantTexts))
	}
	for i, want := range wantTexts {
		if chunks[i].Text != want {
			t.Errorf("chunks[%d].Text = %q, want %q", i, chunks[i].Text, want)
		}
		if !utf8.ValidString(chunks[i].Text) {
			t.Errorf("chunks[%d].Text is not valid UTF-8", i)
		}
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	c := mustNew(t)

	if chunks := c.Split("doc-1", nil); len(chunks) != 0 {
		t.Errorf("Split(nil) returned %d chunks, want 0", len(chunks))
	}
	if chunks := c.Split("doc-1", []core.Block{}); len(chunks) != 0 {
		t.Errorf("Split(empty) returned %d chunks, want 0", len(chunks))
	}
}

func TestSplit_SkipsBlankBlocks(t *testing.T) {
	c := mustNew(t, WithMaxChunkSize(20))
	blocks := paragraphs("", "hello", "   ", "world", "\n\t ")

	chunks := c.Split("doc-1", blocks)

	if len(chunks) != 1 {
		t.Fatalf("Split() returned %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "hello\nworld" {
		t.Errorf("chunk text = %q, want %q", chunks[0].Text, "hello\nworld")
	}
	if chunks[0].StartBlock != 1 {
		t.Errorf("StartBlock = %d, want 1", chunks[0].StartBlock)
	}
}

func TestSplit_AllBlankBlocksProduceNothing(t *testing.T) {
	c := mustNew(t)

	if chunks := c.Split("doc-1", paragraphs(" ", "\n", "\t\t")); len(chunks) != 0 {
		t.Errorf("Split(blank blocks) returned %d chunks, want 0", len(chunks))
	}
}

func TestSplit_MixedBlockTypes(t *testing.T) {
	c := mustNew(t, WithMaxChunkSize(40))
	blocks := []core.Block{
		{Type: core.BlockTypeHeading, Text: "Overview", Page: 1},
		{Type: core.BlockTypeParagraph, Text: "Intro text.", Page: 1},
		{Type: core.BlockTypeTableRow, Text: "name | value", Page: 2},
	}

	chunks := c.Split("doc-1", blocks)

	if len(chunks) != 1 {
		t.Fatalf("Split() returned %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "Overview\nIntro text.\nname | value" {
		t.Errorf("chunk text = %q", chunks[0].Text)
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c := mustNew(t, WithMaxChunkSize(12))
	blocks := paragraphs("alpha beta", "gamma", "delta epsilon zeta", strings.Repeat("η", 30), "omega")

	first := c.Split("doc-1", blocks)
	second := c.Split("doc-1", blocks)

	if !reflect.DeepEqual(first, second) {
		t.Error("Split() is not deterministic for identical input")
	}
}

func TestSplit_SequenceAndIdsAreDense(t *testing.T) {
	c := mustNew(t, WithMaxChunkSize(5))
	blocks := paragraphs("aaaa", "bbbb", "cccccccccc", "dd")

	chunks := c.Split("doc-9", blocks)

	for i, chunk := range chunks {
		if chunk.Sequence != i {
			t.Errorf("chunks[%d].Sequence = %d, want %d", i, chunk.Sequence, i)
		}
		if want := core.ChunkID("doc-9", i); chunk.Id != want {
			t.Errorf("chunks[%d].Id = %q, want %q", i, chunk.Id, want)
		}
		if chunk.DocumentId != "doc-9" {
			t.Errorf("chunks[%d].DocumentId = %q, want doc-9", i, chunk.DocumentId)
		}
	}
}

func TestSplit_SpanMatchesTextLength(t *testing.T) {
	c := mustNew(t, WithMaxChunkSize(7))
	blocks := paragraphs("abc", "defg", "hijklmnopqr", "s")

	for _, chunk := range c.Split("doc-1", blocks) {
		if got, want := chunk.EndChar-chunk.StartChar, utf8.RuneCountInString(chunk.Text); got != want {
			t.Errorf("chunk %d span width = %d, want rune count %d", chunk.Sequence, got, want)
		}
	}
}
