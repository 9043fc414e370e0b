package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"examguard/internal/app"
	"examguard/internal/config"
	"examguard/pkg/types"
)

// testConfig points the database at dir and the catalog at the repository copy
func testConfig(dir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.Database.DatabasePath = filepath.Join(dir, "examguard.db")
	cfg.Assessments.CatalogPath = filepath.Join("..", "..", "assessments.yaml")
	cfg.Proctor.Interval = 20 * time.Millisecond
	cfg.Proctor.BackoffInterval = 20 * time.Millisecond
	return cfg
}

// startApp boots the whole service on a loopback port and returns its base URL
func startApp(t *testing.T, cfg *config.Config) (*app.Application, string) {
	t.Helper()
	application, err := app.NewApplication(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	if err := application.Serve(context.Background(), ln); err != nil {
		t.Fatalf("Serve: %v", err)
	}
	return application, "http://" + application.GetAddr()
}

func stopApp(t *testing.T, application *app.Application) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func call(t *testing.T, method, url string, body, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

type frame struct {
	Type       string          `json:"type"`
	RequestID  string          `json:"requestId"`
	SessionID  string          `json:"sessionId"`
	RollNumber string          `json:"rollNumber"`
	Content    json.RawMessage `json:"content"`
}

// client is a browser stand-in. Perception requests are answered with an
// empty frame; every other frame is queued for the test.
type client struct {
	conn   *websocket.Conn
	frames chan frame

	writeMu sync.Mutex
}

func dial(t *testing.T, baseURL, pathAndQuery string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + pathAndQuery
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", pathAndQuery, err)
	}

	c := &client{conn: conn, frames: make(chan frame, 256)}
	go c.readLoop()
	t.Cleanup(func() { _ = conn.Close() })
	return c
}

func (c *client) readLoop() {
	defer close(c.frames)
	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}
		if f.Type == types.MessagePerceptionRequest {
			result := types.PerceptionResult{Faces: &types.FaceResult{FrameWidth: 640, FrameHeight: 480}}
			_ = c.send(types.MessagePerceptionResult, f.RequestID, result)
			continue
		}
		select {
		case c.frames <- f:
		default:
		}
	}
}

func (c *client) send(msgType, requestID string, content interface{}) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(types.InboundMessage{Type: msgType, RequestID: requestID, Content: raw})
}

// expect skips frames until one of msgType satisfies match
func (c *client) expect(t *testing.T, msgType string, match func(frame) bool) frame {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-c.frames:
			if !ok {
				t.Fatalf("socket closed while waiting for %s", msgType)
			}
			if f.Type == msgType && (match == nil || match(f)) {
				return f
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", msgType)
		}
	}
}
