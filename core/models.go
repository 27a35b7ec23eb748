package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a deterministic 64-bit content fingerprint.
// It is generated by hashing input bytes, so identical content
// always produces the same ID.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// BlockType identifies the structural role of a converted block.
type BlockType int

const (
	// BlockTypeParagraph is a plain text paragraph.
	BlockTypeParagraph BlockType = iota + 1
	// BlockTypeHeading is a section heading.
	BlockTypeHeading
	// BlockTypeTableRow is a single table row, cells joined in order.
	BlockTypeTableRow
	// BlockTypeImageCaption is text extracted from or describing an image.
	BlockTypeImageCaption
)

// String returns the wire name of the block type.
func (t BlockType) String() string {
	switch t {
	case BlockTypeParagraph:
		return "paragraph"
	case BlockTypeHeading:
		return "heading"
	case BlockTypeTableRow:
		return "table-row"
	case BlockTypeImageCaption:
		return "image-caption"
	default:
		return "unknown"
	}
}

// BlockTypeFromString maps a wire name back to a BlockType.
// Unrecognized names map to BlockTypeParagraph so a converter
// emitting new block kinds degrades to plain text.
func BlockTypeFromString(s string) BlockType {
	switch s {
	case "heading":
		return BlockTypeHeading
	case "table-row", "table_row":
		return BlockTypeTableRow
	case "image-caption", "image_caption":
		return BlockTypeImageCaption
	default:
		return BlockTypeParagraph
	}
}

// Block is a single unit of converted document content.
// Blocks are atomic with respect to chunking: a block is never
// split across chunks unless it alone exceeds the chunk size limit.
type Block struct {
	Type BlockType
	Text string
	Page int // 1-based source page, 0 when the format has no pages
}

// Document represents an uploaded document and its pipeline state.
type Document struct {
	Id          string // UUID assigned at submit time
	Filename    string
	MediaType   string
	ContentSize int64
	Status      ProcessingStatus
	// Error holds the failure detail when Status is StatusFailed,
	// formatted as "<stage>: <kind>: <cause>". Empty otherwise.
	Error       string
	Provider    string // embedding provider used for the indexed vectors
	Model       string // embedding model version used for the indexed vectors
	ChunkCount  int
	Metadata    map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ConvertedAt time.Time // zero until conversion completes
	IndexedAt   time.Time // zero until indexing completes
}

// Chunk is a contiguous piece of a document's converted text.
// Chunk identity and numbering are deterministic: reprocessing the
// same content yields the same chunk IDs in the same order.
type Chunk struct {
	Id         string // "<documentID>:<sequence>"
	DocumentId string
	Sequence   int
	Text       string
	StartBlock int // index of the first source block covered by this chunk
	StartChar  int // rune offset into the concatenated converted text
	EndChar    int
}

// ChunkID returns the deterministic chunk identifier for a document
// position.
func ChunkID(documentID string, sequence int) string {
	return documentID + ":" + strconv.Itoa(sequence)
}

// Embedding is a stored vector for one chunk under one provider/model.
type Embedding struct {
	ChunkId  string
	Provider string
	Model    string
	Vector   []float32
}

// SearchResult is one ranked hit from the search path.
type SearchResult struct {
	DocumentId string
	ChunkId    string
	Sequence   int
	Score      float32
	Text       string
	Filename   string
	Metadata   map[string]string
}
