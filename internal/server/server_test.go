package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/shaunagostinho/xr25-dash/internal/ecu"
	"github.com/shaunagostinho/xr25-dash/internal/sample"
)

func newTestServer(t *testing.T) (*Server, *ecu.Synchronizer, sample.Channels) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.path = filepath.Join(t.TempDir(), "config.yaml")

	channels, err := sample.DefaultChannels(sample.DefaultThresholds(), 16)
	if err != nil {
		t.Fatal(err)
	}
	latest := &sample.Latest{}
	syncer := ecu.NewSynchronizer(ecu.SyncConfig{
		Decoder: ecu.Fenix3{},
		Sinks:   []ecu.Sink{latest, channels},
	})

	srv := New(cfg, Deps{
		Sync:     syncer,
		Latest:   latest,
		Channels: channels,
		Registry: ecu.NewRegistry(),
		Decoder:  "Fenix3",
	}, nil)
	return srv, syncer, channels
}

// feed runs one session over two complete Fenix3 frames.
func feed(t *testing.T, syncer *ecu.Synchronizer) {
	t.Helper()
	raw := ecu.NewRawFrame(35)
	raw[23] = 192 // 14 V
	wire := ecu.AppendFrame(nil, raw)
	wire = ecu.AppendFrame(wire, raw)
	wire = ecu.AppendHeader(wire)
	if err := syncer.Start(context.Background(), bytes.NewReader(wire)); err != nil {
		t.Fatal(err)
	}
	if err := syncer.Wait(); err != nil {
		t.Fatal(err)
	}
}

func get(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestAPIStatsAndHistory(t *testing.T) {
	srv, syncer, _ := newTestServer(t)
	feed(t, syncer)
	h := srv.routes()

	rec := get(t, h, "/api/stats")
	var st ecu.Stats
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if st.Frames != 2 {
		t.Errorf("stats = %+v", st)
	}

	rec = get(t, h, "/api/history?channel=Battery&n=8")
	if rec.Code != 200 {
		t.Fatalf("history status %d", rec.Code)
	}
	var hist struct {
		Channel struct{ Name string }
		Samples []struct {
			Value *float64
			Alert bool
		}
	}
	if err := json.NewDecoder(rec.Body).Decode(&hist); err != nil {
		t.Fatal(err)
	}
	if hist.Channel.Name != "Battery" || len(hist.Samples) != 2 {
		t.Fatalf("history = %+v", hist)
	}
	if v := hist.Samples[0].Value; v == nil || *v != 14 {
		t.Errorf("battery sample = %v", v)
	}

	if rec := get(t, h, "/api/history?channel=Nope"); rec.Code != 404 {
		t.Errorf("unknown channel status %d", rec.Code)
	}
	if rec := get(t, h, "/api/history?channel=RPM&n=x"); rec.Code != 400 {
		t.Errorf("bad n status %d", rec.Code)
	}
}

func TestAPIDecoders(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := get(t, srv.routes(), "/api/decoders")
	var body struct {
		Decoders []string
		Active   string
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Active != "Fenix3" || len(body.Decoders) != 3 {
		t.Errorf("decoders = %+v", body)
	}
}

func TestAPIConfig(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.routes()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/config", strings.NewReader(`{"display":{"pageHz":8}}`))
	h.ServeHTTP(rec, req)
	if rec.Code != 200 {
		t.Fatalf("POST status %d: %s", rec.Code, rec.Body)
	}

	rec = get(t, h, "/api/config")
	var cfg struct {
		Display struct{ PageHz int }
		ECU     struct{ Decoder string }
	}
	if err := json.NewDecoder(rec.Body).Decode(&cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Display.PageHz != 8 || cfg.ECU.Decoder != "Fenix3" {
		t.Errorf("config = %+v", cfg)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/config", nil))
	if rec.Code != 405 {
		t.Errorf("DELETE status %d", rec.Code)
	}
}

func TestPageMessage(t *testing.T) {
	srv, syncer, _ := newTestServer(t)
	if _, _, ok := srv.pageMessage(time.Time{}); ok {
		t.Fatal("page message before any frame")
	}
	feed(t, syncer)

	msg, at, ok := srv.pageMessage(time.Time{})
	if !ok {
		t.Fatal("no page message")
	}
	if msg.Frame.Battery != 14 || len(msg.Frame.Known) == 0 {
		t.Errorf("frame = %+v", msg.Frame)
	}
	if s, ok := msg.Samples["Battery"]; !ok || s.Value != 14 {
		t.Errorf("samples = %+v", msg.Samples)
	}
	if _, _, ok := srv.pageMessage(at); ok {
		t.Error("same frame sent twice")
	}
}

func TestWebSocketHello(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Decoder  string
		Channels []struct{ Name string }
		Config   *struct{ HistorySize int }
		Stats    *ecu.Stats
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Decoder != "Fenix3" || len(msg.Channels) != 6 || msg.Config == nil || msg.Stats == nil {
		t.Errorf("hello = %+v", msg)
	}
	if msg.Config.HistorySize != 512 {
		t.Errorf("historySize = %d", msg.Config.HistorySize)
	}
}
