package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRun_MissingConfigFile(t *testing.T) {
	err := run(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil || !strings.Contains(err.Error(), "failed to load configuration") {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestRun_InvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("http:\n  port: 70000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := run(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestRun_StartsAndStopsOnCancel(t *testing.T) {
	dir := t.TempDir()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	catalog, err := filepath.Abs(filepath.Join("..", "..", "assessments.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	config := fmt.Sprintf(`http:
  host: 127.0.0.1
  port: %d
database:
  path: %s
logging:
  level: warn
  directory: ""
  console: false
assessments:
  catalog_path: %s
shutdown:
  timeout: 5s
`, port, filepath.Join(dir, "examguard.db"), catalog)
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(config), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, path) }()

	// Wait until the server answers, then ask it to stop
	deadline := time.Now().Add(5 * time.Second)
	for {
		conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			_ = conn.Close()
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server never listened: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
