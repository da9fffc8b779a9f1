//go:build integration

// Package integration contains integration tests for the group-buying engine.
//
// These tests verify the interaction between components against a real PostgreSQL:
// - API tests: full HTTP request cycle through handlers, engine and repositories
// - WebSocket tests: transition and pool events reaching subscribers
// - Database tests: migrations, concurrency, rollback
//
// Run with: go test -tags=integration ./tests/integration/...
package integration

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"

	"groupbuy/internal/api"
	"groupbuy/internal/api/middleware"
	"groupbuy/internal/repository"
	"groupbuy/internal/service"
	"groupbuy/internal/websocket"
	"groupbuy/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TestConfig contains configuration for integration tests
type TestConfig struct {
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestServer encapsulates all components needed for integration testing
type TestServer struct {
	DB     *sql.DB
	Store  *repository.Store
	Engine *service.Engine
	Hub    *websocket.Hub
	Server *httptest.Server
}

// getTestConfig returns configuration from environment variables or defaults
func getTestConfig() TestConfig {
	return TestConfig{
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "groupbuy_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB connects, migrates and truncates. Skips the test when the database is unreachable.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := getTestConfig()
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := repository.Open(ctx, dsn, 10)
	if err != nil {
		t.Skipf("Skipping integration test: cannot connect to database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := repository.Migrate(ctx, db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	cleanupTestTables(t, db)
	return db
}

// SetupTestServer creates a complete test server: engine publishing to the hub, full router
func SetupTestServer(t *testing.T) *TestServer {
	t.Helper()
	db := SetupTestDB(t)
	log := utils.NewNop()

	store := repository.NewStore(db)
	hub := websocket.NewHub(nil, log)

	engine, err := service.NewEngine(service.EngineDeps{
		Store:     service.NewSQLStore(store),
		Publisher: hub,
		Logger:    log,
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	router := api.SetupRoutes(&api.Dependencies{
		Orders: engine,
		Pools:  engine,
		Stats:  engine,
		Stream: http.HandlerFunc(hub.ServeWS),
		Ping:   store.Ping,
		Auth:   middleware.AuthConfig{Logger: log},
		Logger: log,
	})
	server := httptest.NewServer(router)

	t.Cleanup(func() {
		server.Close()
		cancel()
		<-hubDone
	})

	return &TestServer{DB: db, Store: store, Engine: engine, Hub: hub, Server: server}
}

// cleanupTestTables truncates all engine tables
func cleanupTestTables(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec(`TRUNCATE TABLE order_history, pool_participants, orders, pool_groups, actors CASCADE`); err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

// Do sends a JSON request and decodes the response into out (when non-nil)
func (ts *TestServer) Do(t *testing.T, method, path string, body, out interface{}) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}
