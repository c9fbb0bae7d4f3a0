package engine

import "sync"

// TransferBuffer accumulates chunked binary frames per session until a
// message is complete. The transport guarantees chunks of one message arrive
// in order and are never interleaved with another message for the same
// session, so the final flag alone delimits messages.
type TransferBuffer struct {
	mu        sync.Mutex
	transfers map[string][]byte
}

func NewTransferBuffer() *TransferBuffer {
	return &TransferBuffer{transfers: make(map[string][]byte)}
}

// AppendChunk concatenates chunk onto the session's in-flight accumulation,
// creating it if absent. When final is true the accumulated frame is removed
// and returned; otherwise the returned bool is false.
func (t *TransferBuffer) AppendChunk(sessionID string, chunk []byte, final bool) ([]byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	buf, ok := t.transfers[sessionID]
	if !ok {
		// Copy: the caller may reuse the chunk's backing array.
		buf = append([]byte(nil), chunk...)
	} else {
		buf = append(buf, chunk...)
	}

	if final {
		delete(t.transfers, sessionID)
		return buf, true
	}

	t.transfers[sessionID] = buf
	return nil, false
}

// Discard drops any in-flight accumulation for the session. Called on close
// so a half-received message cannot leak.
func (t *TransferBuffer) Discard(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.transfers, sessionID)
}

// Pending reports whether the session has an in-flight accumulation.
func (t *TransferBuffer) Pending(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.transfers[sessionID]
	return ok
}
