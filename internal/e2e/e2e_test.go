// Package e2e exercises the assembled service over real HTTP, including
// the websocket upgrade path that handler-level tests cannot reach.
package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	analytics "github.com/smallbiznis/pulse/internal/analytics/domain"
	analyticsvc "github.com/smallbiznis/pulse/internal/analytics/service"
	"github.com/smallbiznis/pulse/internal/cache"
	"github.com/smallbiznis/pulse/internal/clock"
	"github.com/smallbiznis/pulse/internal/config"
	"github.com/smallbiznis/pulse/internal/kv"
	"github.com/smallbiznis/pulse/internal/realtime"
	records "github.com/smallbiznis/pulse/internal/records/domain"
	recordsvc "github.com/smallbiznis/pulse/internal/records/service"
	"github.com/smallbiznis/pulse/internal/seed"
	"github.com/smallbiznis/pulse/internal/server"
	"github.com/smallbiznis/pulse/internal/stream"
	"github.com/smallbiznis/pulse/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	srv   *httptest.Server
	conn  *gorm.DB
	clock *clock.FakeClock
	org   snowflake.ID
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func startEnv(t *testing.T, org snowflake.ID) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := conn.AutoMigrate(
		&records.Client{},
		&records.Invoice{},
		&records.InvoiceLineItem{},
		&records.Quote{},
		&records.Expense{},
		&analytics.Snapshot{},
		&analytics.CategoryBreakdown{},
		&analytics.ClientEntry{},
		&analytics.PerformanceMetric{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(day(2024, 6, 15))
	nop := zap.NewNop()
	store := kv.NewMemoryStore(fake)
	source := recordsvc.NewSource(recordsvc.Params{DB: conn, Log: nop})

	cfg := config.Config{
		HTTPAddr: ":0",
		Stream: config.StreamConfig{
			DefaultInterval: 30 * time.Second,
			MinInterval:     10 * time.Second,
			MaxInterval:     300 * time.Second,
			WriteTimeout:    time.Second,
		},
	}

	realtimeSvc := realtime.New(realtime.Params{Source: source, Store: store, Log: nop, Clock: fake})
	web := server.NewServer(server.ServerParams{
		Gin:   server.NewEngine(),
		Cfg:   cfg,
		DB:    conn,
		Store: store,
		Cache: cache.New(cache.Params{Store: store, Log: nop, Clock: fake}),
		AnalyticsSvc: analyticsvc.NewService(analyticsvc.Params{
			DB:     conn,
			Log:    nop,
			GenID:  node,
			Clock:  fake,
			Source: source,
		}),
		RealtimeSvc: realtimeSvc,
		Streams: stream.NewFactory(stream.Params{
			Engine: realtimeSvc,
			Clock:  fake,
			Log:    nop,
			Config: cfg,
		}),
		Clock: fake,
		Log:   nop,
	})

	srv := httptest.NewServer(web.Engine())
	t.Cleanup(srv.Close)

	return testEnv{srv: srv, conn: conn, clock: fake, org: org}
}

func (e testEnv) seedRecords(t *testing.T) {
	t.Helper()

	client := records.Client{
		ID: e.org*100 + 1, OrgID: e.org, Name: "Initech", IsActive: true,
		CreatedAt: day(2024, 6, 1),
	}
	if err := e.conn.Create(&client).Error; err != nil {
		t.Fatalf("seed client: %v", err)
	}

	paid := day(2024, 6, 10)
	invoices := []records.Invoice{
		{ID: e.org*100 + 11, OrgID: e.org, ClientID: client.ID, Status: records.InvoiceStatusPaid,
			TotalAmount: decimal.NewFromInt(5000), IssuedAt: day(2024, 6, 2), PaidAt: &paid},
		{ID: e.org*100 + 12, OrgID: e.org, ClientID: client.ID, Status: records.InvoiceStatusSent,
			TotalAmount: decimal.NewFromInt(2000), IssuedAt: day(2024, 6, 7)},
	}
	if err := e.conn.Create(&invoices).Error; err != nil {
		t.Fatalf("seed invoices: %v", err)
	}

	expense := records.Expense{
		ID: e.org*100 + 21, OrgID: e.org, Category: "software",
		Amount: decimal.NewFromInt(1200), Date: day(2024, 6, 4),
	}
	if err := e.conn.Create(&expense).Error; err != nil {
		t.Fatalf("seed expense: %v", err)
	}
}

func (e testEnv) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	return e.do(t, http.MethodGet, path)
}

func (e testEnv) do(t *testing.T, method, path string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("X-Org-ID", e.org.String())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s body: %v", path, err)
	}
	return resp, body
}

func TestDashboardFlowOverHTTP(t *testing.T) {
	env := startEnv(t, 7001)
	env.seedRecords(t)

	resp, body := env.get(t, "/api/dashboard/overview")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("overview: expected 200, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Cache") != "MISS" {
		t.Fatalf("expected cold cache, got %q", resp.Header.Get("X-Cache"))
	}
	snapshot := body["snapshot"].(map[string]any)
	if snapshot["total_revenue"] != "7000" {
		t.Fatalf("expected revenue 7000, got %v", snapshot["total_revenue"])
	}

	resp, _ = env.get(t, "/api/dashboard/overview")
	if resp.Header.Get("X-Cache") != "HIT" {
		t.Fatalf("expected warm cache, got %q", resp.Header.Get("X-Cache"))
	}

	extra := records.Invoice{
		ID: env.org*100 + 13, OrgID: env.org, ClientID: env.org*100 + 1,
		Status: records.InvoiceStatusPaid, TotalAmount: decimal.NewFromInt(3000),
		IssuedAt: day(2024, 6, 13),
	}
	if err := env.conn.Create(&extra).Error; err != nil {
		t.Fatalf("seed extra invoice: %v", err)
	}

	resp, _ = env.do(t, http.MethodPost, "/api/dashboard/refresh")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d", resp.StatusCode)
	}

	resp, body = env.get(t, "/api/dashboard/overview")
	if resp.Header.Get("X-Cache") != "MISS" {
		t.Fatalf("expected invalidated cache after refresh, got %q", resp.Header.Get("X-Cache"))
	}
	snapshot = body["snapshot"].(map[string]any)
	if snapshot["total_revenue"] != "10000" {
		t.Fatalf("expected refreshed revenue 10000, got %v", snapshot["total_revenue"])
	}
}

func TestWebsocketStreamOverHTTP(t *testing.T) {
	env := startEnv(t, 7002)
	env.seedRecords(t)

	wsURL := strings.Replace(env.srv.URL, "http", "ws", 1) +
		"/ws/dashboard?org_id=" + env.org.String()
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer conn.Close()
	defer resp.Body.Close()

	read := func(wantType string) map[string]any {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for {
			if err := conn.SetReadDeadline(deadline); err != nil {
				t.Fatalf("set read deadline: %v", err)
			}
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("waiting for %s: %v", wantType, err)
			}
			if msg["type"] == wantType {
				return msg
			}
		}
	}

	established := read("connection.established")
	if established["org_id"] != env.org.String() {
		t.Fatalf("expected org %s, got %v", env.org, established["org_id"])
	}

	update := read("dashboard.update")
	data := update["data"].(map[string]any)
	if _, ok := data["performance_score"].(float64); !ok {
		t.Fatalf("expected numeric performance_score, got %v", data["performance_score"])
	}

	if err := conn.WriteJSON(map[string]any{
		"type":   "configure",
		"config": map[string]any{"update_interval": 15},
	}); err != nil {
		t.Fatalf("send configure: %v", err)
	}
	ack := read("configuration.updated")
	ackCfg := ack["config"].(map[string]any)
	if ackCfg["update_interval"] != 15.0 {
		t.Fatalf("expected interval 15, got %v", ackCfg["update_interval"])
	}

	if err := conn.WriteJSON(map[string]any{"type": "request_update"}); err != nil {
		t.Fatalf("send request_update: %v", err)
	}
	read("dashboard.update")

	if err := conn.WriteJSON(map[string]any{"type": "ping"}); err != nil {
		t.Fatalf("send ping: %v", err)
	}
	read("pong")
}

func TestDemoSeedPopulatesDashboard(t *testing.T) {
	env := startEnv(t, seed.DemoOrgID)

	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	if err := seed.EnsureDemoOrg(env.conn, node, env.clock.Now()); err != nil {
		t.Fatalf("seed demo org: %v", err)
	}
	// Reseeding must be a no-op.
	if err := seed.EnsureDemoOrg(env.conn, node, env.clock.Now()); err != nil {
		t.Fatalf("reseed demo org: %v", err)
	}
	var count int64
	if err := env.conn.Model(&records.Client{}).Where("org_id = ?", seed.DemoOrgID).Count(&count).Error; err != nil {
		t.Fatalf("count demo clients: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 demo clients, got %d", count)
	}

	resp, body := env.get(t, "/api/dashboard/overview")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("overview: expected 200, got %d", resp.StatusCode)
	}
	snapshot := body["snapshot"].(map[string]any)
	if snapshot["total_revenue"] != "7000" {
		t.Fatalf("expected demo revenue 7000, got %v", snapshot["total_revenue"])
	}
}
