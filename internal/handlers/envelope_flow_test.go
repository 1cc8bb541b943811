package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"tablefs/internal/dispatch"
	"tablefs/internal/storage"
)

// newFlowHandler wires the envelope handler to a real SQLite-backed repo so
// whole request sequences can be exercised end to end.
func newFlowHandler(t *testing.T) *EnvelopeHandler {
	t.Helper()

	db, err := storage.New(filepath.Join(t.TempDir(), "flow.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := storage.Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	return NewEnvelopeHandler(dispatch.New(storage.NewEntryRepo(db)), testToken, testInstance)
}

func doPost(t *testing.T, handler *EnvelopeHandler, body string) Envelope {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/api/fs", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	return decodeEnvelope(t, w)
}

func TestFlow_WriteThenRead(t *testing.T) {
	handler := newFlowHandler(t)

	env := doPost(t, handler,
		`{"action": "write", "payload": {"name": "a.txt", "content": "hi", "isFolder": false}}`)
	if env.Type != "ack" {
		t.Fatalf("write type = %q, payload = %v", env.Type, env.Payload)
	}

	id := env.Payload.(map[string]any)["id"].(float64)
	if id <= 0 {
		t.Fatalf("write returned id %v, want a positive numeric id", id)
	}

	env = doPost(t, handler, fmt.Sprintf(`{"action": "read", "payload": {"id": %d}}`, int64(id)))
	if env.Type != "ack" {
		t.Fatalf("read type = %q, payload = %v", env.Type, env.Payload)
	}

	got := env.Payload.(map[string]any)
	if got["name"] != "a.txt" || got["content"] != "hi" {
		t.Errorf("read payload = %v, want name a.txt content hi", got)
	}
}

func TestFlow_UpdateThenRead(t *testing.T) {
	handler := newFlowHandler(t)

	env := doPost(t, handler,
		`{"action": "write", "payload": {"name": "a.txt", "content": "v1", "isFolder": false}}`)
	id := int64(env.Payload.(map[string]any)["id"].(float64))

	env = doPost(t, handler,
		fmt.Sprintf(`{"action": "write", "payload": {"id": %d, "content": "v2"}}`, id))
	if env.Type != "ack" {
		t.Fatalf("update type = %q, payload = %v", env.Type, env.Payload)
	}

	env = doPost(t, handler, fmt.Sprintf(`{"action": "read", "payload": {"id": %d}}`, id))
	if got := env.Payload.(map[string]any)["content"]; got != "v2" {
		t.Errorf("read content = %v, want v2", got)
	}
}

func TestFlow_DeleteSubtree(t *testing.T) {
	handler := newFlowHandler(t)

	env := doPost(t, handler,
		`{"action": "write", "payload": {"name": "a", "isFolder": true}}`)
	aID := int64(env.Payload.(map[string]any)["id"].(float64))

	env = doPost(t, handler,
		fmt.Sprintf(`{"action": "write", "payload": {"parentId": %d, "name": "b.txt", "content": "x"}}`, aID))
	if env.Type != "ack" {
		t.Fatalf("nested write failed: %v", env.Payload)
	}

	env = doPost(t, handler, fmt.Sprintf(`{"action": "delete", "payload": {"id": %d}}`, aID))
	if env.Type != "ack" {
		t.Fatalf("delete type = %q, payload = %v", env.Type, env.Payload)
	}
	if removed := env.Payload.(map[string]any)["removed"]; removed != float64(2) {
		t.Errorf("delete removed = %v, want 2", removed)
	}

	env = doPost(t, handler, `{"action": "list", "payload": {}}`)
	entries := env.Payload.(map[string]any)["entries"].([]any)
	if len(entries) != 0 {
		t.Errorf("list after delete = %v, want empty", entries)
	}
}

func TestFlow_ListOrdering(t *testing.T) {
	handler := newFlowHandler(t)

	for _, body := range []string{
		`{"action": "write", "payload": {"name": "zeta.txt", "isFolder": false}}`,
		`{"action": "write", "payload": {"name": "beta", "isFolder": true}}`,
		`{"action": "write", "payload": {"name": "alpha.txt", "isFolder": false}}`,
	} {
		if env := doPost(t, handler, body); env.Type != "ack" {
			t.Fatalf("write failed: %v", env.Payload)
		}
	}

	env := doPost(t, handler, `{"action": "list", "payload": {}}`)
	entries := env.Payload.(map[string]any)["entries"].([]any)

	want := []string{"beta", "alpha.txt", "zeta.txt"}
	if len(entries) != len(want) {
		t.Fatalf("list returned %d entries, want %d", len(entries), len(want))
	}
	for i, name := range want {
		got := entries[i].(map[string]any)["name"]
		if got != name {
			t.Errorf("entries[%d].name = %v, want %q", i, got, name)
		}
	}
}

func TestFlow_InitIdempotent(t *testing.T) {
	handler := newFlowHandler(t)

	for i := 0; i < 2; i++ {
		env := doPost(t, handler, `{"action": "init", "payload": {}}`)
		if env.Type != "ack" {
			t.Fatalf("init run %d type = %q, payload = %v", i+1, env.Type, env.Payload)
		}
		if table := env.Payload.(map[string]any)["table"]; table != "entries" {
			t.Errorf("init table = %v, want entries", table)
		}
	}
}

func TestFlow_DeleteMissingIDRemovesNothing(t *testing.T) {
	handler := newFlowHandler(t)

	env := doPost(t, handler, `{"action": "delete", "payload": {"id": 4242}}`)
	if env.Type != "ack" {
		t.Fatalf("delete type = %q, payload = %v", env.Type, env.Payload)
	}
	if removed := env.Payload.(map[string]any)["removed"]; removed != float64(0) {
		t.Errorf("delete removed = %v, want 0", removed)
	}
}

func TestFlow_ResponseIsPrettyPrinted(t *testing.T) {
	handler := newFlowHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/fs",
		bytes.NewBufferString(`{"action": "list", "payload": {}}`))
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	var buf bytes.Buffer
	if err := json.Indent(&buf, w.Body.Bytes(), "", "  "); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if buf.String() != w.Body.String() {
		t.Error("response envelope is not pretty-printed")
	}
}
