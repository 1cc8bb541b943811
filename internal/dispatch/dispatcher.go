// Package dispatch routes named protocol actions to entry storage operations.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"tablefs/internal/storage"
)

// FailError is a request-level failure: the request was well-formed enough to
// dispatch but the operation could not be carried out. Handlers translate it
// into a REQUEST_FAILED nack; anything else is a system fault.
type FailError struct {
	Message string
}

func (e *FailError) Error() string {
	return e.Message
}

// Failf builds a FailError from a format string.
func Failf(format string, args ...any) *FailError {
	return &FailError{Message: fmt.Sprintf(format, args...)}
}

// Payload shapes per action. Pointer fields distinguish absent from zero so
// that, for example, an explicitly empty content string is stored as empty
// rather than collapsing to NULL.
type (
	// ListPayload selects the folder to list; a missing parentId means root.
	ListPayload struct {
		ParentID *int64 `json:"parentId"`
	}

	// ReadPayload names the file entry to read.
	ReadPayload struct {
		ID *int64 `json:"id"`
	}

	// WritePayload either updates an existing entry (id present) or creates
	// a new one (id absent).
	WritePayload struct {
		ID       *int64  `json:"id"`
		ParentID *int64  `json:"parentId"`
		Name     *string `json:"name"`
		Content  *string `json:"content"`
		IsFolder bool    `json:"isFolder"`
	}

	// DeletePayload names the root of the subtree to remove.
	DeletePayload struct {
		ID *int64 `json:"id"`
	}
)

// Dispatcher maps an action name to an entry store operation.
type Dispatcher struct {
	store storage.EntryStore
}

// New creates a Dispatcher over the given store.
func New(store storage.EntryStore) *Dispatcher {
	return &Dispatcher{store: store}
}

// Dispatch decodes the raw payload for the named action, runs the matching
// store operation and returns its result object. Request-level failures come
// back as *FailError values; the dispatcher never panics.
func (d *Dispatcher) Dispatch(ctx context.Context, action string, payload json.RawMessage) (any, error) {
	switch action {
	case "init":
		return d.handleInit(ctx)
	case "list":
		return d.handleList(ctx, payload)
	case "read":
		return d.handleRead(ctx, payload)
	case "write":
		return d.handleWrite(ctx, payload)
	case "delete":
		return d.handleDelete(ctx, payload)
	default:
		return nil, Failf("Unknown action: %q", action)
	}
}

func (d *Dispatcher) handleInit(ctx context.Context) (any, error) {
	table, err := d.store.Init(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok", "table": table}, nil
}

func (d *Dispatcher) handleList(ctx context.Context, payload json.RawMessage) (any, error) {
	var p ListPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}

	var parentID int64
	if p.ParentID != nil {
		parentID = *p.ParentID
	}

	items, err := d.store.List(ctx, parentID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"entries": items}, nil
}

func (d *Dispatcher) handleRead(ctx context.Context, payload json.RawMessage) (any, error) {
	var p ReadPayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}
	if p.ID == nil {
		return nil, Failf("Missing ID")
	}

	fc, err := d.store.Read(ctx, *p.ID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, Failf("File not found")
	}
	if err != nil {
		return nil, err
	}
	return fc, nil
}

func (d *Dispatcher) handleWrite(ctx context.Context, payload json.RawMessage) (any, error) {
	var p WritePayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}

	// Update path: content and modified time only, type and place are fixed.
	if p.ID != nil {
		err := d.store.Update(ctx, *p.ID, p.Content)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, Failf("File not found")
		}
		if err != nil {
			return nil, err
		}
		return map[string]any{"status": "ok", "id": *p.ID}, nil
	}

	var parentID int64
	if p.ParentID != nil {
		parentID = *p.ParentID
	}
	var name string
	if p.Name != nil {
		name = *p.Name
	}

	id, err := d.store.Create(ctx, parentID, name, p.Content, p.IsFolder)
	if errors.Is(err, storage.ErrParentNotFound) {
		return nil, Failf("Parent not found")
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok", "id": id}, nil
}

func (d *Dispatcher) handleDelete(ctx context.Context, payload json.RawMessage) (any, error) {
	var p DeletePayload
	if err := decode(payload, &p); err != nil {
		return nil, err
	}
	if p.ID == nil {
		return nil, Failf("Missing ID")
	}

	removed, err := d.store.Delete(ctx, *p.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"status": "ok", "removed": removed}, nil
}

// decode unmarshals a payload into its typed shape, reporting malformed
// payloads as request failures rather than system faults.
func decode(payload json.RawMessage, dest any) error {
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return Failf("Invalid payload: %v", err)
	}
	return nil
}
