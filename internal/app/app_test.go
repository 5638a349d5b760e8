package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gasflow/internal/config"
	"gasflow/internal/history"
	"gasflow/internal/kvstore"
	"gasflow/internal/poller"
)

func testApp(t *testing.T) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Oracle: config.OracleConfig{
			BaseURL:        "http://127.0.0.1:0",
			RequestTimeout: time.Second,
			Seed:           7,
		},
		Poller: config.PollerConfig{
			RefreshInterval: 15 * time.Second,
			HistorySize:     30,
			MaxRetries:      3,
			TrackEthPrice:   true,
		},
		Store:    config.StoreConfig{Backend: "file", Path: filepath.Join(dir, "state.yaml")},
		Alerting: config.AlertingConfig{Cooldown: time.Minute, KeepLast: 5},
		Export:   config.ExportConfig{MaxDataPoints: 1000},
	}
	out := &bytes.Buffer{}
	a := NewApp(cfg, zerolog.Nop())
	a.Out = out
	return a, out
}

func seedChart(t *testing.T, a *App, points []history.Point) {
	t.Helper()
	ctx := context.Background()
	backend, err := kvstore.Open(ctx, a.Config.Store)
	if err != nil {
		t.Fatalf("打开存储失败: %v", err)
	}
	defer backend.Close()
	if err := kvstore.NewValue[[]history.Point](backend, poller.KeyChartData, nil).Set(ctx, points); err != nil {
		t.Fatalf("写入缓存失败: %v", err)
	}
}

func chartPoints(start time.Time, n int) []history.Point {
	pts := make([]history.Point, n)
	for i := range pts {
		base := int64(10 + i)
		pts[i] = history.Point{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Safe:      decimal.NewFromInt(base),
			Propose:   decimal.NewFromInt(base + 5),
			Fast:      decimal.NewFromInt(base + 10),
		}
	}
	return pts
}

func TestStatusWithoutAPIKey(t *testing.T) {
	a, out := testApp(t)
	if err := a.Status(context.Background()); err != nil {
		t.Fatalf("Status 失败: %v", err)
	}
	text := out.String()
	for _, want := range []string{"no-api-key", "ready", "Standard", "ETH"} {
		if !strings.Contains(text, want) {
			t.Fatalf("输出缺少 %q:\n%s", want, text)
		}
	}
}

func TestStatusPersistsChartAcrossRuns(t *testing.T) {
	a, _ := testApp(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := a.Status(ctx); err != nil {
			t.Fatalf("Status 失败: %v", err)
		}
	}
	points, err := a.cachedPoints(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(points) != 2 {
		t.Fatalf("缓存应累计 2 个点, 实际 %d", len(points))
	}
}

func TestPrefsCommands(t *testing.T) {
	a, out := testApp(t)
	ctx := context.Background()

	if err := a.PrefsSet(ctx, "currency", "gbp"); err != nil {
		t.Fatalf("PrefsSet 失败: %v", err)
	}
	if !strings.Contains(out.String(), "GBP") {
		t.Fatalf("输出应包含 GBP:\n%s", out.String())
	}
	if err := a.PrefsSet(ctx, "gas_threshold", "abc"); err == nil {
		t.Fatal("非法阈值应报错")
	}

	out.Reset()
	if err := a.PrefsToggleTheme(ctx); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "theme: dark" {
		t.Fatalf("out=%q", out.String())
	}

	out.Reset()
	if err := a.PrefsReset(ctx); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := a.PrefsShow(ctx); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "USD") || !strings.Contains(out.String(), "light") {
		t.Fatalf("重置后应恢复默认:\n%s", out.String())
	}
}

func TestExportFromCachedChart(t *testing.T) {
	a, _ := testApp(t)
	start := time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC)
	seedChart(t, a, chartPoints(start, 10))

	from := start.Add(2 * time.Minute)
	to := start.Add(8 * time.Minute)
	csvPath := filepath.Join(t.TempDir(), "out", "samples.csv")
	pngPath := filepath.Join(t.TempDir(), "samples.png")

	err := a.Export(context.Background(), ExportOptions{From: &from, To: &to, CSVPath: csvPath, PNGPath: pngPath})
	if err != nil {
		t.Fatalf("Export 失败: %v", err)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// header + [from, to)
	if len(records) != 7 {
		t.Fatalf("应导出 6 行数据, 实际 %d", len(records)-1)
	}
	if records[1][2] != "17" {
		t.Fatalf("首行 standard 应为 17, 实际 %s", records[1][2])
	}
	if info, err := os.Stat(pngPath); err != nil || info.Size() == 0 {
		t.Fatalf("PNG 未生成: %v", err)
	}
}

func TestExportRequiresOutput(t *testing.T) {
	a, _ := testApp(t)
	if err := a.Export(context.Background(), ExportOptions{}); err == nil {
		t.Fatal("未指定输出时应报错")
	}
}

func TestDownsampleRows(t *testing.T) {
	rows := rowsFromPoints(chartPoints(time.Unix(0, 0), 100))
	got := downsampleRows(rows, 10)
	if len(got) != 10 {
		t.Fatalf("len=%d", len(got))
	}
	if !got[0].At.Equal(rows[0].At) || !got[9].At.Equal(rows[99].At) {
		t.Fatal("降采样应保留首尾")
	}
	if len(downsampleRows(rows, 1)) != 1 {
		t.Fatal("max=1 时应只保留最新一点")
	}
}

func TestShowFromCachedChart(t *testing.T) {
	a, out := testApp(t)
	seedChart(t, a, chartPoints(time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC), 5))

	if err := a.Show(context.Background(), ShowOptions{Limit: 2}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	// header, 2 rows, footer
	if len(lines) != 4 {
		t.Fatalf("输出行数不正确:\n%s", out.String())
	}
	if !strings.HasPrefix(lines[1], "2024-03-06T12:04:00Z") {
		t.Fatalf("最新样本应排在最前: %s", lines[1])
	}
	if !strings.Contains(lines[3], "2 of 5") {
		t.Fatalf("footer=%s", lines[3])
	}
}

func TestHistoryWritesCSV(t *testing.T) {
	a, out := testApp(t)
	csvPath := filepath.Join(t.TempDir(), "history.csv")
	if err := a.History(context.Background(), HistoryOptions{Range: "7d", CSVPath: csvPath}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "169 points") {
		t.Fatalf("out=%s", out.String())
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(strings.TrimSpace(string(data)), "\n"); n != 169 {
		t.Fatalf("CSV 应有 169 行数据, 实际 %d", n)
	}

	if err := a.History(context.Background(), HistoryOptions{Range: "1y"}); err == nil {
		t.Fatal("非法范围应报错")
	}
}

func TestEstimateWithExplicitEthPrice(t *testing.T) {
	a, out := testApp(t)
	err := a.Estimate(context.Background(), EstimateOptions{
		TxType:   "SIMPLE_TRANSFER",
		Currency: "USD",
		EthPrice: decimal.NewNullDecimal(decimal.NewFromInt(2000)),
	})
	if err != nil {
		t.Fatal(err)
	}
	text := out.String()
	if !strings.Contains(text, "ETH Transfer (21000 gas)") || !strings.Contains(text, "$2000.00") {
		t.Fatalf("out=%s", text)
	}

	if err := a.Estimate(context.Background(), EstimateOptions{TxType: "NOPE", Currency: "USD"}); err == nil {
		t.Fatal("未知交易类型应报错")
	}
}

func TestSimulateAlertRequiresChannel(t *testing.T) {
	a, _ := testApp(t)
	if err := a.SimulateAlert(context.Background(), decimal.NewFromInt(5), 25); err == nil {
		t.Fatal("无告警通道时应报错")
	}
}

func TestSimulateAlertTelegram(t *testing.T) {
	var received map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	a, out := testApp(t)
	a.Config.Alerting.Telegram = config.TelegramConfig{Enabled: true, BotToken: "token", ChatID: "chat", APIBase: srv.URL}

	// threshold<=0 falls back to the stored preference (25)
	if err := a.SimulateAlert(context.Background(), decimal.NewFromInt(12), 0); err != nil {
		t.Fatalf("SimulateAlert 失败: %v", err)
	}
	if received["chat_id"] != "chat" || !strings.Contains(out.String(), "Gas fees dropped to") {
		t.Fatalf("received=%v out=%s", received, out.String())
	}

	if err := a.SimulateAlert(context.Background(), decimal.NewFromInt(40), 25); err == nil {
		t.Fatal("高于阈值不应告警")
	}
}

func TestPruneRequiresDatabase(t *testing.T) {
	a, _ := testApp(t)
	if err := a.Prune(context.Background(), time.Hour); err == nil {
		t.Fatal("未配置数据库时应报错")
	}
}
