package llmcall

import (
	"github.com/lectern-dev/lectern/internal/defra"
	"github.com/lectern-dev/lectern/internal/providers"
)

// Collection is the DefraDB collection holding call records.
const Collection = "LLMCall"

// Recorder handles fire-and-forget LLM call recording via a Sink.
type Recorder struct {
	sink *defra.Sink
}

// NewRecorder creates a new LLM call recorder.
func NewRecorder(sink *defra.Sink) *Recorder {
	return &Recorder{sink: sink}
}

// Record captures an LLM call asynchronously.
// This is non-blocking - the write is queued and batched.
func (r *Recorder) Record(result *providers.ChatResult, opts RecordOptions) {
	if r == nil || r.sink == nil {
		return // No sink configured, skip recording
	}

	call := FromChatResult(result, opts)
	if call == nil {
		return
	}
	r.sink.Send(defra.WriteOp{
		Op:         defra.OpCreate,
		Collection: Collection,
		Document:   call.ToMap(),
	})
}

// RecordCall captures an already-constructed Call asynchronously.
func (r *Recorder) RecordCall(call *Call) {
	if r == nil || r.sink == nil || call == nil {
		return
	}

	r.sink.Send(defra.WriteOp{
		Op:         defra.OpCreate,
		Collection: Collection,
		Document:   call.ToMap(),
	})
}
