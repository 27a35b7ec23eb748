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


package core

// ProcessingStatus is the pipeline state of a document.
//
// The happy path advances strictly in order:
//
//	received → converting → converted → chunking → embedding → indexed
//
// StatusFailed is reachable from any non-terminal state. StatusIndexed
// and StatusFailed are terminal; failed documents may be reprocessed,
// which restarts the pipeline from conversion.
type ProcessingStatus string

const (
	StatusReceived   ProcessingStatus = "received"
	StatusConverting ProcessingStatus = "converting"
	StatusConverted  ProcessingStatus = "converted"
	StatusChunking   ProcessingStatus = "chunking"
	StatusEmbedding  ProcessingStatus = "embedding"
	StatusIndexed    ProcessingStatus = "indexed"
	StatusFailed     ProcessingStatus = "failed"
)

// statusOrder gives each in-pipeline status its position on the happy path.
var statusOrder = map[ProcessingStatus]int{
	StatusReceived:   0,
	StatusConverting: 1,
	StatusConverted:  2,
	StatusChunking:   3,
	StatusEmbedding:  4,
	StatusIndexed:    5,
}

// Valid reports whether s is a known status value.
func (s ProcessingStatus) Valid() bool {
	if s == StatusFailed {
		return true
	}
	_, ok := statusOrder[s]
	return ok
}

// Terminal reports whether the pipeline stops at this status.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusIndexed || s == StatusFailed
}

// CanTransition reports whether moving from s to next is a legal
// state-machine step: one forward step on the happy path, any
// non-terminal state to failed, or failed back to received on retry.
func (s ProcessingStatus) CanTransition(next ProcessingStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if next == StatusFailed {
		return !s.Terminal()
	}
	if s == StatusFailed {
		return next == StatusReceived || next == StatusConverting
	}
	cur, ok := statusOrder[s]
	if !ok {
		return false
	}
	nxt, ok := statusOrder[next]
	if !ok {
		return false
	}
	return nxt == cur+1
}

// String returns the wire name of the status.
func (s ProcessingStatus) String() string {
	return string(s)
}
