package testutils

import (
	"context"
	"sync"
	"time"

	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/protocol"
	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/trigger"
	"github.com/shubham-shewale/price-widget/pkg/coordinator"
	"github.com/shubham-shewale/price-widget/pkg/models"
)

// MockClient simulates a connected websocket surface
type MockClient struct {
	IDVal    string
	Messages []protocol.WSResponse // Stores responses passed to SendJSON
	RawBytes []string              // Stores raw bytes
	Closed   bool
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id, Messages: make([]protocol.WSResponse, 0)}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()

	if resp, ok := v.(protocol.WSResponse); ok {
		m.Messages = append(m.Messages, resp)
	}
}

func (m *MockClient) SendBytes(b []byte) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RawBytes = append(m.RawBytes, string(b))
}

func (m *MockClient) LastMsgType() string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return ""
	}
	return m.Messages[len(m.Messages)-1].Type
}

// Views returns every view delivered to this client, oldest first
func (m *MockClient) Views() []coordinator.View {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	var out []coordinator.View
	for _, msg := range m.Messages {
		if v, ok := msg.Data.(coordinator.View); ok && msg.Type == protocol.TypeView {
			out = append(out, v)
		}
	}
	return out
}

// MockRequester records explicit refresh requests
type MockRequester struct {
	Requests [][]models.InstanceID
	Full     bool
	Mu       sync.Mutex
}

func (m *MockRequester) Request(ids ...models.InstanceID) bool {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Full {
		return false
	}
	m.Requests = append(m.Requests, ids)
	return true
}

// Pass is one recorded call to MockRefresher.Refresh
type Pass struct {
	IDs []models.InstanceID
}

// MockRefresher records refresh passes and reports every id as rendered.
// Block, when set, is waited on inside Refresh to hold a pass open.
type MockRefresher struct {
	Passes   []Pass
	Block    chan struct{}
	inflight int
	MaxSeen  int
	Mu       sync.Mutex
}

func (m *MockRefresher) Refresh(ctx context.Context, ids []models.InstanceID) coordinator.Result {
	m.Mu.Lock()
	m.inflight++
	if m.inflight > m.MaxSeen {
		m.MaxSeen = m.inflight
	}
	m.Passes = append(m.Passes, Pass{IDs: append([]models.InstanceID(nil), ids...)})
	block := m.Block
	m.Mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
		}
	}

	m.Mu.Lock()
	m.inflight--
	m.Mu.Unlock()
	return coordinator.Result{Rendered: ids}
}

func (m *MockRefresher) PassCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Passes)
}

func (m *MockRefresher) LastPass() Pass {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Passes) == 0 {
		return Pass{}
	}
	return m.Passes[len(m.Passes)-1]
}

// StaticSource is a fixed instance list
type StaticSource []models.InstanceID

func (s StaticSource) Instances() []models.InstanceID { return s }

// MockObserver records trigger kinds in order
type MockObserver struct {
	Kinds []trigger.Kind
	Mu    sync.Mutex
}

func (m *MockObserver) Observe(kind trigger.Kind, _ coordinator.Result, _ time.Duration) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Kinds = append(m.Kinds, kind)
}

func (m *MockObserver) Count(kind trigger.Kind) int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	n := 0
	for _, k := range m.Kinds {
		if k == kind {
			n++
		}
	}
	return n
}
