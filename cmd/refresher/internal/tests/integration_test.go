package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket" // Using Gorilla for the test CLIENT
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/gateway"
	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/hub"
	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/metrics"
	"github.com/shubham-shewale/price-widget/cmd/refresher/internal/trigger"
	"github.com/shubham-shewale/price-widget/pkg/coordinator"
	"github.com/shubham-shewale/price-widget/pkg/models"
	"github.com/shubham-shewale/price-widget/pkg/store"
)

type env struct {
	server *httptest.Server
	mr     *miniredis.Miniredis
	store  *store.RedisStore
}

func startServer(t *testing.T) *env {
	mr := miniredis.RunT(t)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := store.NewRedisStore(rdb, "", zap.NewNop())

	surfaces := hub.NewHub(zap.NewNop(), "open:main")
	coord, err := coordinator.New(st, surfaces, coordinator.Options{
		Schema:        models.DefaultSchema(),
		ShowTimestamp: true,
		Launch:        "open:main",
		Concurrency:   2,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("coordinator: %v", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, func() int { return len(surfaces.Instances()) })
	driver := trigger.NewDriver(coord, surfaces, st, m, trigger.Options{RequestBuffer: 8}, zap.NewNop())
	surfaces.SetRequester(driver)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		driver.Run(ctx)
	}()

	server := httptest.NewServer(gateway.NewRouter(surfaces, driver, reg, zap.NewNop()))
	t.Cleanup(func() {
		server.Close()
		cancel()
		<-done
	})

	return &env{server: server, mr: mr, store: st}
}

func connectWS(t *testing.T, serverURL string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	wsConn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect to websocket: %v", err)
	}
	return wsConn
}

type message struct {
	Type    string           `json:"type"`
	Status  string           `json:"status"`
	Message string           `json:"message"`
	Data    coordinator.View `json:"data"`
}

// readType reads until a message of the wanted type arrives
func readType(t *testing.T, conn *websocket.Conn, want string) message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("Waiting for %q: %v", want, err)
		}
		var msg message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("Bad frame %s: %v", raw, err)
		}
		if msg.Type == want {
			return msg
		}
	}
}

func slot(v coordinator.View, name coordinator.SlotName) string {
	text, _ := v.Text(name)
	return text
}

func TestEndToEnd_AttachThenProducerWrite(t *testing.T) {
	e := startServer(t)
	wsConn := connectWS(t, e.server.URL)
	defer wsConn.Close()

	wsConn.WriteMessage(websocket.TextMessage, []byte(`{"action":"attach","payload":{"instances":["W1"]},"id":"t1"}`))

	if msg := readType(t, wsConn, "ack"); msg.Status != "success" {
		t.Errorf("Expected attach success, got: %+v", msg)
	}

	// Nothing written yet: placeholder with the launch action still bound
	first := readType(t, wsConn, "view").Data
	if slot(first, coordinator.SlotPrice) != coordinator.DefaultPricePlaceholder {
		t.Errorf("Expected placeholder, got %+v", first)
	}
	if first.Click == nil || first.Click.Action != "open:main" {
		t.Errorf("Expected tap handler bound, got %+v", first.Click)
	}

	err := e.store.SetMany(context.Background(), map[string]string{"tv_price": "999", "tv_date": "12:00"})
	if err != nil {
		t.Fatalf("SetMany: %v", err)
	}

	second := readType(t, wsConn, "view").Data
	if slot(second, coordinator.SlotPrice) != "999" || slot(second, coordinator.SlotTimestamp) != "12:00" {
		t.Errorf("Expected 999 / 12:00 after producer write, got %+v", second)
	}
}

func TestEndToEnd_TwoSurfacesSameRecord(t *testing.T) {
	e := startServer(t)
	e.mr.Set("widget:tv_price", "999")
	e.mr.Set("widget:tv_date", "12:00")

	c1 := connectWS(t, e.server.URL)
	defer c1.Close()
	c2 := connectWS(t, e.server.URL)
	defer c2.Close()

	c1.WriteMessage(websocket.TextMessage, []byte(`{"action":"attach","payload":{"instances":["W1"]}}`))
	c2.WriteMessage(websocket.TextMessage, []byte(`{"action":"attach","payload":{"instances":["W2"]}}`))

	v1 := readType(t, c1, "view").Data
	v2 := readType(t, c2, "view").Data

	for _, v := range []coordinator.View{v1, v2} {
		if slot(v, coordinator.SlotPrice) != "999" || slot(v, coordinator.SlotTimestamp) != "12:00" {
			t.Errorf("Expected identical 999 / 12:00, got %+v", v)
		}
	}
	if v1.Instance != "W1" || v2.Instance != "W2" {
		t.Errorf("Views delivered to the wrong surfaces: %s, %s", v1.Instance, v2.Instance)
	}
}

func TestEndToEnd_HTTPRefresh(t *testing.T) {
	e := startServer(t)
	wsConn := connectWS(t, e.server.URL)
	defer wsConn.Close()

	wsConn.WriteMessage(websocket.TextMessage, []byte(`{"action":"attach","payload":{"instances":["W1"]}}`))
	readType(t, wsConn, "view")

	// Write behind the store's back: no change notification is published
	e.mr.Set("widget:tv_price", "1,234,000")

	resp, err := http.Post(e.server.URL+"/refresh", "application/json", bytes.NewBufferString(`{"instances":["W1"]}`))
	if err != nil {
		t.Fatalf("POST /refresh: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("Expected 202, got %d", resp.StatusCode)
	}

	v := readType(t, wsConn, "view").Data
	if slot(v, coordinator.SlotPrice) != "1,234,000" {
		t.Errorf("Expected explicit refresh to pick up the new price, got %+v", v)
	}
}

func TestEndToEnd_InvalidJSON(t *testing.T) {
	e := startServer(t)
	wsConn := connectWS(t, e.server.URL)
	defer wsConn.Close()

	wsConn.WriteMessage(websocket.TextMessage, []byte(`{ "action": "atta`))

	msg := readType(t, wsConn, "error")
	if msg.Message != "Invalid JSON" {
		t.Errorf("Expected Invalid JSON error, got: %+v", msg)
	}
}

func TestEndToEnd_MaxMessageSize(t *testing.T) {
	e := startServer(t)
	wsConn := connectWS(t, e.server.URL)
	defer wsConn.Close()

	hugePayload := strings.Repeat("a", 513*1024)
	hugeMsg := fmt.Sprintf(`{"action":"attach", "payload": {"instances": ["%s"]}}`, hugePayload)

	err := wsConn.WriteMessage(websocket.TextMessage, []byte(hugeMsg))
	// Depending on timing, write might succeed, but Read should fail (Disconnect)
	if err == nil {
		wsConn.SetReadDeadline(time.Now().Add(1 * time.Second))
		_, _, err := wsConn.ReadMessage()
		if err == nil {
			t.Error("Server should have closed connection for huge message, but it stayed open")
		}
	}
}

func TestEndToEnd_MetricsAndHealth(t *testing.T) {
	e := startServer(t)
	wsConn := connectWS(t, e.server.URL)
	defer wsConn.Close()

	wsConn.WriteMessage(websocket.TextMessage, []byte(`{"action":"attach","payload":{"instances":["W1"]}}`))
	readType(t, wsConn, "view")

	// The pass is observed right after the view is sent, so poll briefly
	wants := []string{`widget_refresh_total{trigger="request"} 1`, `widget_instances_total{outcome="rendered"} 1`, "widget_active_instances 1"}
	var body string
	for i := 0; i < 20; i++ {
		body = scrape(t, e.server.URL+"/metrics")
		if containsAll(body, wants) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	for _, want := range wants {
		if !strings.Contains(body, want) {
			t.Errorf("Metrics output missing %s", want)
		}
	}

	health, err := http.Get(e.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer health.Body.Close()
	var h map[string]int
	json.NewDecoder(health.Body).Decode(&h)
	if h["instances"] != 1 {
		t.Errorf("Expected 1 active instance, got %v", h)
	}
}

func scrape(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	return body.String()
}

func containsAll(s string, subs []string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
