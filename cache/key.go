package cache

import (
	"strconv"

	"github.com/quillworks/docpipe/core"
)

// Key identifies one embedding in the cache. Two chunks with identical
// text share a key under the same provider and model, so the vector is
// computed once no matter how many documents contain the text.
type Key struct {
	Provider string
	Model    string
	Content  core.ID
}

// NewKey builds the cache key for a piece of text under a provider/model.
func NewKey(provider, model, text string) Key {
	return Key{
		Provider: provider,
		Model:    model,
		Content:  core.IDFromContent(text),
	}
}

// String returns the flat store key.
func (k Key) String() string {
	return k.Provider + ":" + k.Model + ":" + strconv.FormatUint(uint64(k.Content), 16)
}
