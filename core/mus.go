package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the persisted record types. Field order is the
// wire order; changing it breaks previously stored data.

// IDMUS serializes the ID type.
var IDMUS = idMUS{}

type idMUS struct{}

func (idMUS) Marshal(id ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(id), bs)
}

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(id ID) int {
	return varint.Uint64.Size(uint64(id))
}

func (idMUS) Skip(bs []byte) (int, error) {
	return varint.Uint64.Skip(bs)
}

// timeMUS persists instants as UnixMicro. The zero time is stored as 0,
// so the exact epoch instant is not representable as a set value.
type timeMUS struct{}

func (timeMUS) Marshal(t time.Time, bs []byte) int {
	var v int64
	if !t.IsZero() {
		v = t.UnixMicro()
	}
	return varint.Int64.Marshal(v, bs)
}

func (timeMUS) Unmarshal(bs []byte) (time.Time, int, error) {
	v, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || v == 0 {
		return time.Time{}, n, err
	}
	return time.UnixMicro(v).UTC(), n, nil
}

func (timeMUS) Size(t time.Time) int {
	var v int64
	if !t.IsZero() {
		v = t.UnixMicro()
	}
	return varint.Int64.Size(v)
}

func (timeMUS) Skip(bs []byte) (int, error) {
	return varint.Int64.Skip(bs)
}

var timeSer = timeMUS{}

// VectorMUS serializes embedding vectors.
var VectorMUS = ord.NewSliceSer[float32](raw.Float32)

var metadataSer = ord.NewMapSer[string, string](ord.String, ord.String)

// BlockMUS serializes a single Block.
var BlockMUS = blockMUS{}

type blockMUS struct{}

func (blockMUS) Marshal(b Block, bs []byte) (n int) {
	n = varint.Int.Marshal(int(b.Type), bs)
	n += ord.String.Marshal(b.Text, bs[n:])
	n += varint.Int.Marshal(b.Page, bs[n:])
	return
}

func (blockMUS) Unmarshal(bs []byte) (b Block, n int, err error) {
	var typ int
	typ, n, err = varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	b.Type = BlockType(typ)
	var n1 int
	b.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	b.Page, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	return
}

func (blockMUS) Size(b Block) (size int) {
	size = varint.Int.Size(int(b.Type))
	size += ord.String.Size(b.Text)
	size += varint.Int.Size(b.Page)
	return
}

func (blockMUS) Skip(bs []byte) (n int, err error) {
	n, err = varint.Int.Skip(bs)
	if err != nil {
		return
	}
	var n1 int
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	if err != nil {
		return
	}
	n1, err = varint.Int.Skip(bs[n:])
	n += n1
	return
}

// BlocksMUS serializes a document's converted blocks as one value.
var BlocksMUS = ord.NewSliceSer[Block](BlockMUS)

// DocumentMUS serializes a Document record.
var DocumentMUS = documentMUS{}

type documentMUS struct{}

func (documentMUS) Marshal(d Document, bs []byte) (n int) {
	n = ord.String.Marshal(d.Id, bs)
	n += ord.String.Marshal(d.Filename, bs[n:])
	n += ord.String.Marshal(d.MediaType, bs[n:])
	n += varint.Int64.Marshal(d.ContentSize, bs[n:])
	n += ord.String.Marshal(string(d.Status), bs[n:])
	n += ord.String.Marshal(d.Error, bs[n:])
	n += ord.String.Marshal(d.Provider, bs[n:])
	n += ord.String.Marshal(d.Model, bs[n:])
	n += varint.Int.Marshal(d.ChunkCount, bs[n:])
	n += metadataSer.Marshal(d.Metadata, bs[n:])
	n += timeSer.Marshal(d.CreatedAt, bs[n:])
	n += timeSer.Marshal(d.UpdatedAt, bs[n:])
	n += timeSer.Marshal(d.ConvertedAt, bs[n:])
	n += timeSer.Marshal(d.IndexedAt, bs[n:])
	return
}

func (documentMUS) Unmarshal(bs []byte) (d Document, n int, err error) {
	d.Id, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	d.Filename, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.MediaType, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.ContentSize, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var status string
	status, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.Status = ProcessingStatus(status)
	d.Error, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.Provider, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.Model, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.ChunkCount, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.Metadata, n1, err = metadataSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.CreatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.UpdatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.ConvertedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	d.IndexedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	return
}

func (documentMUS) Size(d Document) (size int) {
	size = ord.String.Size(d.Id)
	size += ord.String.Size(d.Filename)
	size += ord.String.Size(d.MediaType)
	size += varint.Int64.Size(d.ContentSize)
	size += ord.String.Size(string(d.Status))
	size += ord.String.Size(d.Error)
	size += ord.String.Size(d.Provider)
	size += ord.String.Size(d.Model)
	size += varint.Int.Size(d.ChunkCount)
	size += metadataSer.Size(d.Metadata)
	size += timeSer.Size(d.CreatedAt)
	size += timeSer.Size(d.UpdatedAt)
	size += timeSer.Size(d.ConvertedAt)
	size += timeSer.Size(d.IndexedAt)
	return
}

func (documentMUS) Skip(bs []byte) (n int, err error) {
	var n1 int
	skip := func(f func([]byte) (int, error)) bool {
		n1, err = f(bs[n:])
		n += n1
		return err == nil
	}
	for i := 0; i < 3; i++ { // Id, Filename, MediaType
		if !skip(ord.String.Skip) {
			return
		}
	}
	if !skip(varint.Int64.Skip) { // ContentSize
		return
	}
	for i := 0; i < 4; i++ { // Status, Error, Provider, Model
		if !skip(ord.String.Skip) {
			return
		}
	}
	if !skip(varint.Int.Skip) { // ChunkCount
		return
	}
	if !skip(metadataSer.Skip) {
		return
	}
	for i := 0; i < 4; i++ { // CreatedAt, UpdatedAt, ConvertedAt, IndexedAt
		if !skip(timeSer.Skip) {
			return
		}
	}
	return
}

// ChunkMUS serializes a single Chunk.
var ChunkMUS = chunkMUS{}

type chunkMUS struct{}

func (chunkMUS) Marshal(c Chunk, bs []byte) (n int) {
	n = ord.String.Marshal(c.Id, bs)
	n += ord.String.Marshal(c.DocumentId, bs[n:])
	n += varint.Int.Marshal(c.Sequence, bs[n:])
	n += ord.String.Marshal(c.Text, bs[n:])
	n += varint.Int.Marshal(c.StartBlock, bs[n:])
	n += varint.Int.Marshal(c.StartChar, bs[n:])
	n += varint.Int.Marshal(c.EndChar, bs[n:])
	return
}

func (chunkMUS) Unmarshal(bs []byte) (c Chunk, n int, err error) {
	c.Id, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	c.DocumentId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.Sequence, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.Text, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.StartBlock, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.StartChar, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	c.EndChar, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	return
}

func (chunkMUS) Size(c Chunk) (size int) {
	size = ord.String.Size(c.Id)
	size += ord.String.Size(c.DocumentId)
	size += varint.Int.Size(c.Sequence)
	size += ord.String.Size(c.Text)
	size += varint.Int.Size(c.StartBlock)
	size += varint.Int.Size(c.StartChar)
	size += varint.Int.Size(c.EndChar)
	return
}

func (chunkMUS) Skip(bs []byte) (n int, err error) {
	var n1 int
	n, err = ord.String.Skip(bs)
	if err != nil {
		return
	}
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	if err != nil {
		return
	}
	n1, err = varint.Int.Skip(bs[n:])
	n += n1
	if err != nil {
		return
	}
	n1, err = ord.String.Skip(bs[n:])
	n += n1
	if err != nil {
		return
	}
	for i := 0; i < 3; i++ {
		n1, err = varint.Int.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}

// ChunksMUS serializes a document's chunks as one value.
var ChunksMUS = ord.NewSliceSer[Chunk](ChunkMUS)

// EmbeddingMUS serializes a single Embedding.
var EmbeddingMUS = embeddingMUS{}

type embeddingMUS struct{}

func (embeddingMUS) Marshal(e Embedding, bs []byte) (n int) {
	n = ord.String.Marshal(e.ChunkId, bs)
	n += ord.String.Marshal(e.Provider, bs[n:])
	n += ord.String.Marshal(e.Model, bs[n:])
	n += VectorMUS.Marshal(e.Vector, bs[n:])
	return
}

func (embeddingMUS) Unmarshal(bs []byte) (e Embedding, n int, err error) {
	e.ChunkId, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	e.Provider, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.Model, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.Vector, n1, err = VectorMUS.Unmarshal(bs[n:])
	n += n1
	return
}

func (embeddingMUS) Size(e Embedding) (size int) {
	size = ord.String.Size(e.ChunkId)
	size += ord.String.Size(e.Provider)
	size += ord.String.Size(e.Model)
	size += VectorMUS.Size(e.Vector)
	return
}

func (embeddingMUS) Skip(bs []byte) (n int, err error) {
	var n1 int
	for i := 0; i < 3; i++ {
		n1, err = ord.String.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	n1, err = VectorMUS.Skip(bs[n:])
	n += n1
	return
}

// EmbeddingsMUS serializes a document's embeddings as one value.
var EmbeddingsMUS = ord.NewSliceSer[Embedding](EmbeddingMUS)

// JobMUS serializes a Job record.
var JobMUS = jobMUS{}

type jobMUS struct{}

func (jobMUS) Marshal(j Job, bs []byte) (n int) {
	n = ord.String.Marshal(j.Id, bs)
	n += ord.String.Marshal(j.DocumentId, bs[n:])
	n += ord.String.Marshal(string(j.Type), bs[n:])
	n += ord.String.Marshal(string(j.Status), bs[n:])
	n += ord.String.Marshal(j.Error, bs[n:])
	n += varint.Int.Marshal(j.Progress, bs[n:])
	n += varint.Int.Marshal(j.Total, bs[n:])
	n += timeSer.Marshal(j.CreatedAt, bs[n:])
	n += timeSer.Marshal(j.StartedAt, bs[n:])
	n += timeSer.Marshal(j.CompletedAt, bs[n:])
	return
}

func (jobMUS) Unmarshal(bs []byte) (j Job, n int, err error) {
	j.Id, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	var n1 int
	j.DocumentId, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	var typ, status string
	typ, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.Type = JobType(typ)
	status, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.Status = JobStatus(status)
	j.Error, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.Progress, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.Total, n1, err = varint.Int.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.CreatedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.StartedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	j.CompletedAt, n1, err = timeSer.Unmarshal(bs[n:])
	n += n1
	return
}

func (jobMUS) Size(j Job) (size int) {
	size = ord.String.Size(j.Id)
	size += ord.String.Size(j.DocumentId)
	size += ord.String.Size(string(j.Type))
	size += ord.String.Size(string(j.Status))
	size += ord.String.Size(j.Error)
	size += varint.Int.Size(j.Progress)
	size += varint.Int.Size(j.Total)
	size += timeSer.Size(j.CreatedAt)
	size += timeSer.Size(j.StartedAt)
	size += timeSer.Size(j.CompletedAt)
	return
}

func (jobMUS) Skip(bs []byte) (n int, err error) {
	var n1 int
	for i := 0; i < 5; i++ {
		n1, err = ord.String.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	for i := 0; i < 2; i++ {
		n1, err = varint.Int.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	for i := 0; i < 3; i++ {
		n1, err = varint.Int64.Skip(bs[n:])
		n += n1
		if err != nil {
			return
		}
	}
	return
}
