package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_entry_store.go -package=mocks tablefs/internal/storage EntryStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no matching entry exists.
	ErrNotFound = errors.New("entry not found")

	// ErrParentNotFound is returned when a write names a parent id that
	// does not exist.
	ErrParentNotFound = errors.New("parent entry not found")
)

// EntryStore defines the interface for entry storage operations.
type EntryStore interface {
	// Init creates the schema if it does not exist and returns the table name.
	Init(ctx context.Context) (string, error)
	// List returns the direct children of parentID, folders before files,
	// alphabetical within each group. It never fails on an empty folder.
	List(ctx context.Context, parentID int64) ([]ListItem, error)
	// Read returns name and content of the file entry with the given id.
	// Returns ErrNotFound if the id is missing or belongs to a folder.
	Read(ctx context.Context, id int64) (*FileContent, error)
	// Create inserts a new entry and returns its generated id.
	Create(ctx context.Context, parentID int64, name string, content *string, isFolder bool) (int64, error)
	// Update replaces the content of an existing entry and refreshes its
	// modified time. Returns ErrNotFound when no row matches the id.
	Update(ctx context.Context, id int64, content *string) error
	// Delete removes the entry and its whole subtree, returning the number
	// of rows removed. A missing id removes nothing and is not an error.
	Delete(ctx context.Context, id int64) (int64, error)
}

// EntryRepo provides entry operations against the entries table.
// It implements the EntryStore interface.
type EntryRepo struct {
	db *sql.DB
}

// NewEntryRepo creates a new EntryRepo.
func NewEntryRepo(db *sql.DB) *EntryRepo {
	return &EntryRepo{db: db}
}

// Init runs the idempotent schema migration and reports the backing table.
func (r *EntryRepo) Init(ctx context.Context) (string, error) {
	if err := Migrate(r.db); err != nil {
		return "", fmt.Errorf("failed to initialize schema: %w", err)
	}
	return EntriesTable, nil
}

// List returns the direct children of parentID projected to
// {id, name, isFolder, modifiedAt}, folders first, then name ascending.
func (r *EntryRepo) List(ctx context.Context, parentID int64) ([]ListItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, is_folder, modified_at FROM entries
		 WHERE parent_id = ?
		 ORDER BY is_folder DESC, name ASC`,
		parentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	items := []ListItem{}
	for rows.Next() {
		var item ListItem
		var modifiedAtStr string
		if err := rows.Scan(&item.ID, &item.Name, &item.IsFolder, &modifiedAtStr); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		item.ModifiedAt, err = parseTimestamp(modifiedAtStr)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	return items, nil
}

// Read returns name and content of the non-folder entry with the given id.
// Returns ErrNotFound for a missing id or an id that belongs to a folder.
func (r *EntryRepo) Read(ctx context.Context, id int64) (*FileContent, error) {
	var fc FileContent
	err := r.db.QueryRowContext(ctx,
		"SELECT name, content FROM entries WHERE id = ? AND is_folder = 0",
		id,
	).Scan(&fc.Name, &fc.Content)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read entry: %w", err)
	}

	return &fc, nil
}

// Create inserts a new entry under parentID and returns the generated id.
// A nil content is stored as NULL; an empty string stays an empty string.
// A non-zero parentID must name an existing entry.
func (r *EntryRepo) Create(ctx context.Context, parentID int64, name string, content *string, isFolder bool) (int64, error) {
	if parentID != 0 {
		var exists int
		err := r.db.QueryRowContext(ctx,
			"SELECT 1 FROM entries WHERE id = ?", parentID,
		).Scan(&exists)
		if err == sql.ErrNoRows {
			return 0, ErrParentNotFound
		}
		if err != nil {
			return 0, fmt.Errorf("failed to check parent entry: %w", err)
		}
	}

	res, err := r.db.ExecContext(ctx,
		`INSERT INTO entries (name, parent_id, is_folder, content)
		 VALUES (?, ?, ?, ?)`,
		name, parentID, isFolder, content,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create entry: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get generated id: %w", err)
	}

	return id, nil
}

// Update replaces the content of the entry with the given id and refreshes
// modified_at. Name, parent and the folder flag are never touched here.
// Returns ErrNotFound when no row matches.
func (r *EntryRepo) Update(ctx context.Context, id int64, content *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE entries
		 SET content = ?, modified_at = strftime('%Y-%m-%d %H:%M:%f', 'now')
		 WHERE id = ?`,
		content, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete removes the entry with the given id and every transitive descendant
// in one statement. The recursive closure seeds with the target id and
// repeatedly unions in all entries whose parent_id is already in the set.
// The parent graph is assumed to be a forest; cycles are not defended.
func (r *EntryRepo) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`WITH RECURSIVE subtree(id) AS (
			SELECT id FROM entries WHERE id = ?
			UNION ALL
			SELECT e.id FROM entries e
			JOIN subtree s ON e.parent_id = s.id
		)
		DELETE FROM entries WHERE id IN (SELECT id FROM subtree)`,
		id,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete subtree: %w", err)
	}

	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return removed, nil
}

// parseTimestamp parses the millisecond text format written by the schema
// defaults, falling back to the formats older rows may carry.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("failed to parse timestamp %q", s)
}
