package reader

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/FocuswithJustin/versestream/core/artifact"
	"github.com/FocuswithJustin/versestream/core/library"
	"github.com/FocuswithJustin/versestream/core/scripture"
	"github.com/FocuswithJustin/versestream/core/search"
	"github.com/FocuswithJustin/versestream/core/stream"
)

// fixtureTranslation has Genesis 1-5 and Exodus 1-2, two verses per chapter.
func fixtureTranslation() *scripture.Translation {
	chapters := func(n int) []scripture.Chapter {
		out := make([]scripture.Chapter, n)
		for i := range out {
			out[i] = scripture.Chapter{Number: i + 1, Verses: []scripture.Verse{
				{Number: 1, Text: fmt.Sprintf("first verse of chapter %d", i+1)},
				{Number: 2, Text: fmt.Sprintf("second verse of chapter %d", i+1)},
			}}
		}
		return out
	}
	genesis := chapters(5)
	genesis[2].Verses[0].Text = "Now the serpent was more subtil than any beast of the field."
	return &scripture.Translation{
		Code:     "KJV",
		Name:     "King James Version",
		Language: "en",
		Books: []scripture.Book{
			{ID: 1, Name: "Genesis", Chapters: genesis},
			{ID: 2, Name: "Exodus", Chapters: chapters(2)},
		},
	}
}

// newTestServer serves a library holding KJV and a corrupt BAD translation.
func newTestServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	dir := t.TempDir()
	tr := fixtureTranslation()
	if _, err := artifact.WriteTranslation(artifact.TranslationPath(dir, tr.Code, false), tr); err != nil {
		t.Fatal(err)
	}
	if _, err := artifact.WriteIndex(artifact.IndexPath(dir, tr.Code, false), search.Build(tr, search.Options{})); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "BAD.json"), []byte("not json"), 0644); err != nil {
		t.Fatal(err)
	}

	lib, err := library.Open(dir, library.Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { lib.Close() })

	cfg.Library = lib
	if cfg.PreloadCount == 0 {
		cfg.PreloadCount = 1
	}
	if cfg.MaxLoadedChapters == 0 {
		cfg.MaxLoadedChapters = 3
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(srv.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string) (int, APIResponse, http.Header) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode, body, resp.Header
}

// decodeData re-decodes the Data field of a response into v.
func decodeData(t *testing.T, body APIResponse, v interface{}) {
	t.Helper()
	raw, err := json.Marshal(body.Data)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatal(err)
	}
}

func TestNew_RequiresLibrary(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without a library")
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	status, body, header := getJSON(t, ts.URL+"/healthz")
	if status != http.StatusOK || !body.Success {
		t.Fatalf("status = %d, body = %+v", status, body)
	}
	if header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing security headers")
	}
	if header.Get("X-Request-ID") == "" {
		t.Error("missing request id")
	}
}

func TestTranslations(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	status, body, _ := getJSON(t, ts.URL+"/translations")
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var list []struct {
		Code    string `json:"code"`
		Kind    string `json:"kind"`
		Indexed bool   `json:"indexed"`
	}
	decodeData(t, body, &list)
	if len(list) != 2 || list[0].Code != "BAD" || list[1].Code != "KJV" {
		t.Fatalf("translations = %+v", list)
	}
	if list[1].Kind != "json" || !list[1].Indexed || list[0].Indexed {
		t.Errorf("translations = %+v", list)
	}
	if body.Meta == nil || body.Meta.Total != 2 {
		t.Errorf("meta = %+v", body.Meta)
	}
}

func TestBooks(t *testing.T) {
	_, ts := newTestServer(t, Config{})

	tests := []struct {
		code       string
		wantStatus int
		wantError  string
	}{
		{"KJV", http.StatusOK, ""},
		{"NOPE", http.StatusNotFound, "NOT_FOUND"},
		{"BAD", http.StatusServiceUnavailable, "UNAVAILABLE"},
		{"-x", http.StatusBadRequest, "INVALID_TRANSLATION"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, body, _ := getJSON(t, ts.URL+"/translations/"+tt.code+"/books")
			if status != tt.wantStatus {
				t.Fatalf("status = %d, want %d", status, tt.wantStatus)
			}
			if tt.wantError != "" {
				if body.Error == nil || body.Error.Code != tt.wantError {
					t.Errorf("error = %+v, want %s", body.Error, tt.wantError)
				}
				return
			}
			var books []BookEntry
			decodeData(t, body, &books)
			want := []BookEntry{{1, "Genesis", 5}, {2, "Exodus", 2}}
			if fmt.Sprint(books) != fmt.Sprint(want) {
				t.Errorf("books = %+v, want %+v", books, want)
			}
		})
	}

	_, body, _ := getJSON(t, ts.URL+"/translations/BAD/books")
	if body.Error.Message != UnavailableMessage {
		t.Errorf("message = %q", body.Error.Message)
	}
}

func TestSearch(t *testing.T) {
	srv, ts := newTestServer(t, Config{})

	tests := []struct {
		name       string
		query      string
		wantStatus int
	}{
		{"missing translation", "q=serpent", http.StatusBadRequest},
		{"missing query", "t=KJV", http.StatusBadRequest},
		{"bad limit", "t=KJV&q=serpent&limit=x", http.StatusBadRequest},
		{"zero limit", "t=KJV&q=serpent&limit=0", http.StatusBadRequest},
		{"unknown translation", "t=NOPE&q=serpent", http.StatusNotFound},
		{"no index", "t=BAD&q=serpent", http.StatusNotFound},
		{"ok", "t=KJV&q=serpent&limit=5", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, _, _ := getJSON(t, ts.URL+"/search?"+tt.query)
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
		})
	}

	_, body, _ := getJSON(t, ts.URL+"/search?t=KJV&q=serpent")
	var res SearchResult
	decodeData(t, body, &res)
	if len(res.Hits) == 0 {
		t.Fatal("no hits for serpent")
	}
	if h := res.Hits[0]; h.Book != 1 || h.Chapter != 3 || h.Verse != 1 {
		t.Errorf("first hit = %+v", h)
	}

	_, body, _ = getJSON(t, ts.URL+"/search?t=KJV&q=zzzzzz")
	decodeData(t, body, &res)
	if res.Hits == nil || len(res.Hits) != 0 {
		t.Errorf("hits = %#v, want empty list", res.Hits)
	}

	if got := testutil.ToFloat64(srv.Metrics().searches.WithLabelValues("ok")); got != 3 {
		t.Errorf("ok searches = %v, want 3", got)
	}
}

func TestNotFoundRoute(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	status, body, _ := getJSON(t, ts.URL+"/nope")
	if status != http.StatusNotFound || body.Success {
		t.Errorf("status = %d, body = %+v", status, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	getJSON(t, ts.URL+"/healthz")

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`versestream_http_requests_total{method="GET",route="/healthz",status="200"} 1`,
		"versestream_reader_active_sessions 0",
		"go_goroutines",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestCORS(t *testing.T) {
	_, ts := newTestServer(t, Config{AllowedOrigins: []string{"https://allowed.example"}})

	tests := []struct {
		origin     string
		wantStatus int
		wantHeader string
	}{
		{"https://allowed.example", http.StatusNoContent, "https://allowed.example"},
		{"https://other.example", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/translations", nil)
			req.Header.Set("Origin", tt.origin)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.wantHeader {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

// dial opens a reading session and consumes the welcome message.
func dial(t *testing.T, ts *httptest.Server) (*websocket.Conn, string) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/read"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	welcome := readResponse(t, conn)
	if welcome.Type != TypeWelcome || welcome.Session == "" {
		t.Fatalf("welcome = %+v", welcome)
	}
	return conn, welcome.Session
}

func readResponse(t *testing.T, conn *websocket.Conn) Response {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var resp Response
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("read: %v", err)
	}
	return resp
}

func roundTrip(t *testing.T, conn *websocket.Conn, cmd Command) Response {
	t.Helper()
	if err := conn.WriteJSON(cmd); err != nil {
		t.Fatalf("write: %v", err)
	}
	return readResponse(t, conn)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReadSession(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	conn, _ := dial(t, ts)

	resp := roundTrip(t, conn, Command{Op: OpInit, Translation: "KJV", Book: 1, Chapter: 3})
	if resp.Type != TypeItems || resp.Translation != "KJV" {
		t.Fatalf("init = %+v", resp)
	}
	if *resp.Window != (stream.Bounds{Book: 1, Lower: 2, Upper: 4}) || resp.Loaded != 3 {
		t.Errorf("init window = %+v, loaded = %d", *resp.Window, resp.Loaded)
	}
	if len(resp.Items) != 9 || resp.Items[0].Kind != stream.KindHeader || resp.Items[0].BookName != "Genesis" {
		t.Errorf("init items = %+v", resp.Items)
	}

	resp = roundTrip(t, conn, Command{Op: OpNext})
	if resp.Window.Upper != 5 || resp.Loaded != 3 {
		t.Errorf("next window = %+v, loaded = %d", *resp.Window, resp.Loaded)
	}
	if *resp.Focus != (stream.ChapterKey{Book: 1, Chapter: 5}) {
		t.Errorf("next focus = %+v", *resp.Focus)
	}

	resp = roundTrip(t, conn, Command{Op: OpPrev})
	if resp.Window.Lower != 2 || resp.Loaded != 3 {
		t.Errorf("prev window = %+v, loaded = %d", *resp.Window, resp.Loaded)
	}

	resp = roundTrip(t, conn, Command{Op: OpJump, Ref: "Exodus 2:1"})
	if resp.Type != TypeItems || resp.Index == nil {
		t.Fatalf("jump = %+v", resp)
	}
	if got := resp.Items[*resp.Index]; got.Book != 2 || got.Chapter != 2 || got.Verse != 1 {
		t.Errorf("jump target = %+v", got)
	}
	if *resp.Window != (stream.Bounds{Book: 2, Lower: 1, Upper: 2}) {
		t.Errorf("jump window = %+v", *resp.Window)
	}

	// Leviticus is not in the translation.
	resp = roundTrip(t, conn, Command{Op: OpReset, Book: 3, Chapter: 1})
	if resp.Type != TypeItems || *resp.Window != (stream.Bounds{Book: 2, Lower: 1, Upper: 2}) {
		t.Errorf("invalid reset = %+v", resp)
	}

	resp = roundTrip(t, conn, Command{Op: OpReset, Book: 1, Chapter: 1})
	if *resp.Window != (stream.Bounds{Book: 1, Lower: 1, Upper: 2}) {
		t.Errorf("reset window = %+v", *resp.Window)
	}

	resp = roundTrip(t, conn, Command{Op: OpJump, Ref: "Hezekiah 1"})
	if resp.Type != TypeError || resp.Error == "" {
		t.Errorf("bad jump = %+v", resp)
	}

	m := srv.Metrics()
	if got := testutil.ToFloat64(m.sessions); got != 1 {
		t.Errorf("active sessions = %v", got)
	}
	if got := testutil.ToFloat64(m.commands.WithLabelValues(OpJump, "ok")); got != 1 {
		t.Errorf("jump ok = %v", got)
	}
	if got := testutil.ToFloat64(m.evictions); got != 2 {
		t.Errorf("evictions = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.chapterLoads); got < 9 {
		t.Errorf("chapter loads = %v", got)
	}

	conn.Close()
	waitFor(t, "session to close", func() bool { return srv.Sessions() == 0 })
	if got := testutil.ToFloat64(m.sessions); got != 0 {
		t.Errorf("active sessions after close = %v", got)
	}
}

func TestReadSession_Errors(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	conn, _ := dial(t, ts)

	resp := roundTrip(t, conn, Command{Op: OpNext})
	if resp.Type != TypeError || resp.Error != "session not initialized" {
		t.Errorf("next before init = %+v", resp)
	}

	resp = roundTrip(t, conn, Command{Op: "scroll"})
	if resp.Error != "unknown op" {
		t.Errorf("unknown op = %+v", resp)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{")); err != nil {
		t.Fatal(err)
	}
	if resp = readResponse(t, conn); resp.Error != "malformed command" {
		t.Errorf("malformed = %+v", resp)
	}
}

func TestReadSession_Unavailable(t *testing.T) {
	_, ts := newTestServer(t, Config{})
	conn, _ := dial(t, ts)

	for _, code := range []string{"BAD", "NOPE"} {
		resp := roundTrip(t, conn, Command{Op: OpInit, Translation: code})
		if resp.Type != TypeError || resp.Error != UnavailableMessage {
			t.Errorf("init %s = %+v", code, resp)
		}
	}

	// A failed init keeps the working loader.
	if resp := roundTrip(t, conn, Command{Op: OpInit, Translation: "KJV"}); resp.Type != TypeItems {
		t.Fatalf("init KJV = %+v", resp)
	}
	if resp := roundTrip(t, conn, Command{Op: OpInit, Translation: "BAD"}); resp.Type != TypeError {
		t.Fatalf("init BAD = %+v", resp)
	}
	if resp := roundTrip(t, conn, Command{Op: OpNext}); resp.Type != TypeItems || resp.Translation != "KJV" {
		t.Errorf("next after failed init = %+v", resp)
	}
}

func TestReadSession_DefaultTranslation(t *testing.T) {
	_, ts := newTestServer(t, Config{DefaultTranslation: "KJV"})
	conn, _ := dial(t, ts)

	resp := roundTrip(t, conn, Command{Op: OpInit})
	if resp.Type != TypeItems || *resp.Window != (stream.Bounds{Book: 1, Lower: 1, Upper: 2}) {
		t.Errorf("init = %+v", resp)
	}
}

func TestReadSession_RateLimit(t *testing.T) {
	_, ts := newTestServer(t, Config{MessageRate: 0.001, MessageBurst: 1})
	conn, _ := dial(t, ts)

	if resp := roundTrip(t, conn, Command{Op: OpInit, Translation: "KJV"}); resp.Type != TypeItems {
		t.Fatalf("first command = %+v", resp)
	}
	if resp := roundTrip(t, conn, Command{Op: OpNext}); resp.Error != "rate limit exceeded" {
		t.Errorf("second command = %+v", resp)
	}
}

func TestReadSession_Origin(t *testing.T) {
	_, ts := newTestServer(t, Config{AllowedOrigins: []string{"https://allowed.example"}})
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/read"

	header := http.Header{"Origin": []string{"https://other.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %+v", resp)
	}

	header.Set("Origin", "https://allowed.example")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("allowed origin: %v", err)
	}
	conn.Close()
}

func TestServer_CloseEndsSessions(t *testing.T) {
	srv, ts := newTestServer(t, Config{})
	conn, _ := dial(t, ts)
	waitFor(t, "session to register", func() bool { return srv.Sessions() == 1 })

	srv.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected the connection to close")
	}
	if srv.Sessions() != 0 {
		t.Errorf("Sessions() = %d after Close", srv.Sessions())
	}

	// New connections are refused once the hub is gone.
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/read"
	if c, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		c.SetReadDeadline(time.Now().Add(5 * time.Second))
		if _, _, err := c.ReadMessage(); err == nil {
			t.Error("expected refused session to close")
		}
		c.Close()
	}
}
