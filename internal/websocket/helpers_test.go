package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rofiliofernandes/somudai/internal/metrics"
)

var handleSeq atomic.Int64

// fakeHandle records every frame it accepts
type fakeHandle struct {
	id string

	mu         sync.Mutex
	frames     []*Message
	failWith   error
	closed     bool
	closeCalls int
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{id: fmt.Sprintf("h-%d", handleSeq.Add(1))}
}

func (f *fakeHandle) ID() string { return f.id }

func (f *fakeHandle) Send(m *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	if f.closed {
		return ErrConnectionClosed
	}
	f.frames = append(f.frames, m)
	return nil
}

func (f *fakeHandle) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeHandle) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.closeCalls++
}

func (f *fakeHandle) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

func (f *fakeHandle) received() []*Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Message, len(f.frames))
	copy(out, f.frames)
	return out
}

func (f *fakeHandle) receivedOfType(msgType string) []*Message {
	var out []*Message
	for _, m := range f.received() {
		if m.Type == msgType {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeHandle) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCalls
}

func testMetrics() *metrics.Metrics {
	return metrics.NewForRegistry(prometheus.NewRegistry())
}

func lastPresence(h *fakeHandle) (int, bool) {
	frames := h.receivedOfType(MessageTypePresence)
	if len(frames) == 0 {
		return 0, false
	}
	return frames[len(frames)-1].Payload.(PresencePayload).OnlineUsers, true
}

func jsonDecode(resp *http.Response, v interface{}) error {
	return json.NewDecoder(resp.Body).Decode(v)
}
