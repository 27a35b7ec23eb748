package badger

import (
	"encoding/binary"
	"time"

	"github.com/quillworks/docpipe/core"
)

// Key prefixes for different data types
const (
	docRecordPrefix     = "docrec"
	docContentPrefix    = "doccnt"
	docBlocksPrefix     = "docblk"
	docChunksPrefix     = "docchk"
	docEmbeddingsPrefix = "docemb"
	docCreatedPrefix    = "doccre"
	docStatusPrefix     = "docsta"
	jobRecordPrefix     = "jobrec"
	jobDocumentPrefix   = "jobdoc"
)

// makeDocumentKey generates a key for a document record by id.
func makeDocumentKey(id string) []byte {
	return []byte(docRecordPrefix + ":" + id)
}

// makeContentKey generates a key for a document's raw content.
func makeContentKey(id string) []byte {
	return []byte(docContentPrefix + ":" + id)
}

// makeBlocksKey generates a key for a document's converted blocks.
func makeBlocksKey(id string) []byte {
	return []byte(docBlocksPrefix + ":" + id)
}

// makeChunksKey generates a key for a document's chunks.
func makeChunksKey(id string) []byte {
	return []byte(docChunksPrefix + ":" + id)
}

// makeEmbeddingsKey generates a key for a document's embeddings.
func makeEmbeddingsKey(id string) []byte {
	return []byte(docEmbeddingsPrefix + ":" + id)
}

// makeDocCreatedKey generates a composite key for the creation-time index.
// Format: prefix:timestamp:id
func makeDocCreatedKey(createdAt time.Time, id string) []byte {
	prefix := docCreatedPrefix + ":"
	buf := make([]byte, len(prefix)+8+len(id))
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], id)
	return buf
}

// makePartialDocCreatedKey generates a partial key for creation-time seeks.
// Format: prefix:timestamp
func makePartialDocCreatedKey(createdAt time.Time) []byte {
	prefix := docCreatedPrefix + ":"
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	return buf
}

// makeDocStatusKey generates a composite key for the status index.
// Format: prefix:status:timestamp:id
func makeDocStatusKey(status core.ProcessingStatus, createdAt time.Time, id string) []byte {
	prefix := docStatusPrefix + ":" + string(status) + ":"
	buf := make([]byte, len(prefix)+8+len(id))
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], id)
	return buf
}

// makePartialDocStatusKey generates the prefix shared by all status index
// entries for one status.
func makePartialDocStatusKey(status core.ProcessingStatus) []byte {
	return []byte(docStatusPrefix + ":" + string(status) + ":")
}

// makeJobKey generates a key for a job record by id.
func makeJobKey(id string) []byte {
	return []byte(jobRecordPrefix + ":" + id)
}

// makeJobDocumentKey generates a composite key for the per-document job index.
// Format: prefix:documentID:timestamp:jobID
func makeJobDocumentKey(documentID string, createdAt time.Time, jobID string) []byte {
	prefix := jobDocumentPrefix + ":" + documentID + ":"
	buf := make([]byte, len(prefix)+8+len(jobID))
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], jobID)
	return buf
}

// makePartialJobDocumentKey generates the prefix shared by all job index
// entries for one document.
func makePartialJobDocumentKey(documentID string) []byte {
	return []byte(jobDocumentPrefix + ":" + documentID + ":")
}
