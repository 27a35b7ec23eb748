// Package chunker turns converted document blocks into bounded, ordered
// chunks ready for embedding.
//
// Blocks are accumulated greedily: consecutive blocks are joined with a
// newline for as long as the joined text stays within the configured
// maximum, measured in runes. A block never straddles two chunks. The one
// exception is a block that alone exceeds the maximum; it is cut at rune
// boundaries into standalone pieces that are not merged with neighboring
// blocks.
//
// Blocks that are empty or all whitespace are dropped; a document made of
// nothing else produces no chunks at all. Chunk offsets are rune positions
// in the document text formed by joining the remaining block texts with
// single newlines. Output depends only on the input blocks and the
// configured size, so reprocessing an unchanged document reproduces the
// exact same chunk sequence.
package chunker

import (
	"fmt"
	"strings"

	"github.com/quillworks/docpipe/core"
)

// DefaultMaxChunkSize bounds chunk text length in runes.
const DefaultMaxChunkSize = 1000

// Chunker splits block sequences into chunks.
type Chunker struct {
	maxSize int
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithMaxChunkSize overrides the maximum chunk size in runes.
func WithMaxChunkSize(n int) Option {
	return func(c *Chunker) error {
		if n <= 0 {
			return fmt.Errorf("max chunk size must be positive, got %d", n)
		}
		c.maxSize = n
		return nil
	}
}

// New creates a Chunker.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{maxSize: DefaultMaxChunkSize}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MaxChunkSize reports the configured size bound in runes.
func (c *Chunker) MaxChunkSize() int {
	return c.maxSize
}

// Split chunks the blocks of one document. Blocks without visible text
// are ignored. Sequence numbers are dense from zero and chunk ids derive
// from them, so identical inputs always produce identical output.
func (c *Chunker) Split(documentID string, blocks []core.Block) []core.Chunk {
	var chunks []core.Chunk

	var (
		cur      []string // texts of blocks accumulated for the open chunk
		curSize  int      // rune size of cur joined with newlines
		curBlock int      // index of the first block in cur
		curStart int      // offset of cur's first rune
		offset   int      // offset where the next block's text begins
	)

	flush := func() {
		if len(cur) == 0 {
			return
		}
		seq := len(chunks)
		chunks = append(chunks, core.Chunk{
			Id:         core.ChunkID(documentID, seq),
			DocumentId: documentID,
			Sequence:   seq,
			Text:       strings.Join(cur, "\n"),
			StartBlock: curBlock,
			StartChar:  curStart,
			EndChar:    curStart + curSize,
		})
		cur = cur[:0]
		curSize = 0
	}

	for i, block := range blocks {
		if strings.TrimSpace(block.Text) == "" {
			continue
		}
		runes := []rune(block.Text)
		n := len(runes)
		if offset > 0 {
			offset++ // newline joining this block to the previous one
		}

		if n > c.maxSize {
			// The block alone busts the limit. It becomes its own run of
			// pieces, cut at rune boundaries, shared with no neighbor.
			flush()
			for start := 0; start < n; start += c.maxSize {
				end := min(start+c.maxSize, n)
				seq := len(chunks)
				chunks = append(chunks, core.Chunk{
					Id:         core.ChunkID(documentID, seq),
					DocumentId: documentID,
					Sequence:   seq,
					Text:       string(runes[start:end]),
					StartBlock: i,
					StartChar:  offset + start,
					EndChar:    offset + end,
				})
			}
			offset += n
			continue
		}

		switch {
		case len(cur) == 0:
			cur = append(cur, block.Text)
			curSize = n
			curBlock = i
			curStart = offset
		case curSize+1+n <= c.maxSize:
			cur = append(cur, block.Text)
			curSize += 1 + n
		default:
			flush()
			cur = append(cur, block.Text)
			curSize = n
			curBlock = i
			curStart = offset
		}
		offset += n
	}
	flush()

	return chunks
}
