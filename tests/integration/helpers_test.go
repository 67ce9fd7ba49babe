package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/kdimtricp/laptimer/internal/api"
	"github.com/kdimtricp/laptimer/internal/database"
	"github.com/kdimtricp/laptimer/internal/lapping"
	"github.com/kdimtricp/laptimer/internal/session"
	"github.com/kdimtricp/laptimer/internal/storage"
	"github.com/kdimtricp/laptimer/internal/timeutil"
)

var epoch = time.Date(2018, 1, 17, 10, 0, 0, 0, time.UTC)

type TestServer struct {
	Server   *httptest.Server
	App      *api.App
	DB       *database.DB
	Sessions *session.Service
	Logs     storage.Storage
	Clock    *timeutil.MockClock
	DBPath   string
}

func setupTestServer(t *testing.T) *TestServer {
	t.Helper()

	tempDir := t.TempDir()

	logs, err := storage.NewLocalStorage(filepath.Join(tempDir, "logs"))
	if err != nil {
		t.Fatalf("Failed to create log storage: %v", err)
	}

	dbPath := filepath.Join(tempDir, "test.db")
	db, err := database.NewDB(database.Config{SQLitePath: dbPath})
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	if err := db.MigrateUp(); err != nil {
		db.Close()
		t.Fatalf("Failed to migrate database: %v", err)
	}

	sessionRepo := database.NewSessionRepository(db)
	lapRepo := database.NewLapRepository(db)
	clock := timeutil.NewMockClock(epoch)

	sessions, err := session.NewService(sessionRepo, lapRepo, logs, session.Config{
		Lapping: lapping.DefaultConfig(),
		Clock:   clock,
	})
	if err != nil {
		db.Close()
		t.Fatalf("Failed to create session service: %v", err)
	}

	app := &api.App{
		Sessions:    sessions,
		SessionRepo: sessionRepo,
		LapRepo:     lapRepo,
	}

	return &TestServer{
		Server:   httptest.NewServer(api.NewRouter(app)),
		App:      app,
		DB:       db,
		Sessions: sessions,
		Logs:     logs,
		Clock:    clock,
		DBPath:   dbPath,
	}
}

// Cleanup closes sessions before the server so open streams end.
func (ts *TestServer) Cleanup() {
	ts.Sessions.Close()
	ts.Server.Close()
	ts.DB.Close()
}

func (ts *TestServer) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}

	resp, err := http.Post(ts.Server.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	return resp
}

func (ts *TestServer) get(t *testing.T, path string) *http.Response {
	t.Helper()

	resp, err := http.Get(ts.Server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	return resp
}

func (ts *TestServer) delete(t *testing.T, path string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, ts.Server.URL+path, nil)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE %s failed: %v", path, err)
	}
	return resp
}

func (ts *TestServer) createSession(t *testing.T, model string) string {
	t.Helper()

	resp := ts.post(t, "/sessions", map[string]string{"model": model})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected status %d, got %d", http.StatusCreated, resp.StatusCode)
	}

	var created struct {
		ID string `json:"id"`
	}
	readJSON(t, resp, &created)
	if created.ID == "" {
		t.Fatal("Expected session id in response")
	}
	return created.ID
}

func readJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("Expected status %d, got %d", want, resp.StatusCode)
	}
}

func countRows(ts *TestServer, table string) (int, error) {
	var count int
	err := ts.DB.Conn().QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count)
	return count, err
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}
