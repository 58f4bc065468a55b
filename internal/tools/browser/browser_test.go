package browser

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/operator/internal/compute"
)

type recordedCall struct {
	Action string
	Params map[string]any
}

func serveBrowser(t *testing.T, respond func(action string) map[string]any) (*compute.Client, *[]recordedCall) {
	t.Helper()
	var calls []recordedCall
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Action string         `json:"action"`
			Params map[string]any `json:"params"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		calls = append(calls, recordedCall{Action: req.Action, Params: req.Params})
		_ = json.NewEncoder(w).Encode(respond(req.Action))
	}))
	t.Cleanup(server.Close)
	return compute.NewClient(server.URL, 0), &calls
}

func TestNavigateInjectsWaitAndSettles(t *testing.T) {
	client, calls := serveBrowser(t, func(string) map[string]any {
		return map[string]any{"status": "success", "data": map[string]any{"url": "https://example.com"}}
	})
	tool := New(client, 20*time.Millisecond)

	start := time.Now()
	res, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"navigate","params":{"url":"https://example.com"}}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected error result: %s", res.Content)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("navigate returned after %v, want settle delay of at least 20ms", elapsed)
	}

	if len(*calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(*calls))
	}
	sent := (*calls)[0]
	if sent.Params["wait_until"] != "domcontentloaded" {
		t.Errorf("wait_until = %v", sent.Params["wait_until"])
	}
	if sent.Params["timeout"] != float64(30000) {
		t.Errorf("timeout = %v, want 30000", sent.Params["timeout"])
	}
}

func TestNavigateKeepsCallerTimeout(t *testing.T) {
	client, calls := serveBrowser(t, func(string) map[string]any {
		return map[string]any{"status": "success"}
	})
	tool := New(client, time.Millisecond)

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"navigate","params":{"url":"https://example.com","timeout":5000}}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if (*calls)[0].Params["timeout"] != float64(5000) {
		t.Errorf("timeout = %v, caller value must win", (*calls)[0].Params["timeout"])
	}
}

func TestBackendErrorBecomesToolError(t *testing.T) {
	client, _ := serveBrowser(t, func(string) map[string]any {
		return map[string]any{"status": "error", "error": "element not found"}
	})
	tool := New(client, time.Millisecond)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"click","params":{"selector":"#gone"}}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error result")
	}
	if !strings.Contains(res.Content, "element not found") {
		t.Errorf("content = %q, want backend error text", res.Content)
	}
}

func TestScreenshotResultCarriesImage(t *testing.T) {
	client, _ := serveBrowser(t, func(string) map[string]any {
		return map[string]any{"status": "success", "data": map[string]any{"image_base64": "Zm9v"}}
	})
	tool := New(client, time.Millisecond)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"screenshot"}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.Image == nil || res.Image.DataBase64 != "Zm9v" {
		t.Fatalf("result = %+v, want image payload", res)
	}
}

func TestContentFormattedAsJSON(t *testing.T) {
	client, _ := serveBrowser(t, func(string) map[string]any {
		return map[string]any{"status": "success", "data": map[string]any{"text": "page body", "title": "Example"}}
	})
	tool := New(client, time.Millisecond)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{"action":"get_content","params":{"text":true}}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(res.Content, `"text": "page body"`) {
		t.Errorf("content = %q, want indented JSON", res.Content)
	}
}

func TestMissingAction(t *testing.T) {
	client, _ := serveBrowser(t, func(string) map[string]any {
		return map[string]any{"status": "success"}
	})
	tool := New(client, time.Millisecond)

	res, err := tool.Execute(context.Background(), json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !res.IsError {
		t.Error("expected error result for missing action")
	}
}
