package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"gasflow/internal/alerting"
	"gasflow/internal/gasdata"
	"gasflow/internal/history"
	"gasflow/internal/kvstore"
	"gasflow/internal/poller"
	"gasflow/internal/prefs"
)

type fakeController struct {
	snap      poller.Snapshot
	refreshed int
	err       error
}

func (f *fakeController) DismissAlert(id string) bool {
	for i, n := range f.snap.Alerts {
		if n.ID == id {
			f.snap.Alerts = append(f.snap.Alerts[:i], f.snap.Alerts[i+1:]...)
			return true
		}
	}
	return false
}

func (f *fakeController) Snapshot() poller.Snapshot { return f.snap }

func (f *fakeController) Refresh(context.Context) error {
	f.refreshed++
	return f.err
}

func newTestServer(t *testing.T, ctrl *fakeController) (*httptest.Server, *prefs.Store) {
	t.Helper()
	store := prefs.NewStore(kvstore.NewMemory())
	s := New(Options{}, ctrl, store, history.NewGenerator(5), zerolog.Nop())
	s.now = func() time.Time { return time.Date(2024, 3, 6, 12, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func readySnapshot() poller.Snapshot {
	return poller.Snapshot{
		Sample: &gasdata.GasPriceSample{
			Safe:    decimal.NewFromInt(10),
			Propose: decimal.NewFromInt(20),
			Fast:    decimal.NewFromInt(30),
		},
		Status:   gasdata.StatusLiveData,
		EthPrice: decimal.NewNullDecimal(decimal.NewFromInt(2000)),
		Phase:    poller.PhaseReady,
	}
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})
	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", err, resp)
	}
	resp.Body.Close()
}

func TestSnapshot(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{snap: readySnapshot()})

	resp, err := http.Get(srv.URL + "/api/snapshot")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Sample struct {
			Propose string `json:"propose"`
		} `json:"sample"`
		Status       string  `json:"status"`
		ErrorMessage *string `json:"error_message"`
		Phase        string  `json:"phase"`
	}
	decodeBody(t, resp, &body)
	if body.Sample.Propose != "20" || body.Status != "live-data" || body.ErrorMessage != nil || body.Phase != "ready" {
		t.Fatalf("body=%+v", body)
	}
}

func TestRefresh(t *testing.T) {
	ctrl := &fakeController{snap: readySnapshot()}
	srv, _ := newTestServer(t, ctrl)

	resp, err := http.Post(srv.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || ctrl.refreshed != 1 {
		t.Fatalf("status=%d refreshed=%d", resp.StatusCode, ctrl.refreshed)
	}

	ctrl.err = poller.ErrInFlight
	resp, err = http.Post(srv.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("进行中应返回 409, 实际 %d", resp.StatusCode)
	}
}

func TestHistory(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})

	resp, err := http.Get(srv.URL + "/api/history?range=7d")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Range  string            `json:"range"`
		Points []json.RawMessage `json:"points"`
		Stats  history.Stats     `json:"stats"`
	}
	decodeBody(t, resp, &body)
	if body.Range != "7d" || len(body.Points) != 7*24+1 || body.Stats.Max.IsZero() {
		t.Fatalf("range=%s points=%d", body.Range, len(body.Points))
	}

	resp, _ = http.Get(srv.URL + "/api/history?range=1y")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("非法范围应返回 400, 实际 %d", resp.StatusCode)
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	srv, store := newTestServer(t, &fakeController{})

	resp, err := http.Get(srv.URL + "/api/preferences")
	if err != nil {
		t.Fatal(err)
	}
	var got prefs.Preferences
	decodeBody(t, resp, &got)
	if got != prefs.Defaults() {
		t.Fatalf("默认偏好不正确: %+v", got)
	}

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/api/preferences", strings.NewReader(`{"currency":"EUR","gas_threshold":18}`))
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	decodeBody(t, resp, &got)
	if got.Currency != "EUR" || got.GasThreshold != 18 || got.Theme != prefs.ThemeLight {
		t.Fatalf("部分更新应保留其他字段: %+v", got)
	}

	stored, _ := store.Load(context.Background())
	if stored != got {
		t.Fatalf("stored=%+v", stored)
	}

	req, _ = http.NewRequest(http.MethodPut, srv.URL+"/api/preferences", strings.NewReader(`{"currency":"XYZ"}`))
	resp, _ = http.DefaultClient.Do(req)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("非法币种应返回 400, 实际 %d", resp.StatusCode)
	}
}

func TestToggleTheme(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})
	resp, err := http.Post(srv.URL+"/api/preferences/theme/toggle", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if body["theme"] != "dark" {
		t.Fatalf("body=%v", body)
	}
}

func TestEstimate(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{snap: readySnapshot()})

	resp, err := http.Get(srv.URL + "/api/estimate?tx=SIMPLE_TRANSFER&currency=USD")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		GasLimit uint64 `json:"gas_limit"`
		Standard struct {
			ETH  decimal.Decimal `json:"eth"`
			Fiat decimal.Decimal `json:"fiat"`
		} `json:"standard"`
	}
	decodeBody(t, resp, &body)
	// 20 gwei * 21000 = 0.00042 ETH, * 2000 = 0.84 USD
	if body.GasLimit != 21000 || !body.Standard.ETH.Equal(decimal.RequireFromString("0.00042")) || !body.Standard.Fiat.Equal(decimal.RequireFromString("0.84")) {
		t.Fatalf("body=%+v", body)
	}

	resp, _ = http.Get(srv.URL + "/api/estimate?tx=UNKNOWN")
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("未知交易类型应返回 400, 实际 %d", resp.StatusCode)
	}
}

func TestEstimateWithoutSample(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})
	resp, err := http.Get(srv.URL + "/api/estimate")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("无样本应返回 503, 实际 %d", resp.StatusCode)
	}
}

func TestTipWraps(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})
	resp, err := http.Get(srv.URL + "/api/tips/-1")
	if err != nil {
		t.Fatal(err)
	}
	var body struct {
		Count int `json:"count"`
		Tip   struct {
			Title string `json:"title"`
		} `json:"tip"`
	}
	decodeBody(t, resp, &body)
	if body.Count == 0 || body.Tip.Title == "" {
		t.Fatalf("body=%+v", body)
	}
}

func TestHistoryConcurrentRequests(t *testing.T) {
	srv, _ := newTestServer(t, &fakeController{})

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(srv.URL + "/api/history?range=7d")
			if err != nil {
				errs <- err
				return
			}
			defer resp.Body.Close()
			var body struct {
				Points []json.RawMessage `json:"points"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				errs <- err
				return
			}
			if len(body.Points) != 7*24+1 {
				errs <- fmt.Errorf("points=%d", len(body.Points))
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("并发请求历史数据失败: %v", err)
	}
}

func TestDismissAlert(t *testing.T) {
	ctrl := &fakeController{snap: readySnapshot()}
	ctrl.snap.Alerts = []alerting.Notification{{ID: "a1"}, {ID: "a2"}}
	srv, _ := newTestServer(t, ctrl)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/alerts/a1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("删除告警应返回 204, 实际 %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/alerts")
	if err != nil {
		t.Fatal(err)
	}
	var alerts []alerting.Notification
	decodeBody(t, resp, &alerts)
	if len(alerts) != 1 || alerts[0].ID != "a2" {
		t.Fatalf("alerts=%+v", alerts)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/api/alerts/missing", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("未知告警应返回 404, 实际 %d", resp.StatusCode)
	}
}
