package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/daviddao/mailwatch/internal/types"
)

// StoredFile describes an uploaded file without its content.
type StoredFile struct {
	ID        string `db:"id" json:"id"`
	Name      string `db:"name" json:"name"`
	Size      int    `db:"size" json:"size"`
	CreatedAt string `db:"created_at" json:"created_at"`
}

// SaveFile stores content under a new id.
func (d *DB) SaveFile(ctx context.Context, name string, data []byte) (types.FileRef, error) {
	if data == nil {
		data = []byte{}
	}
	id := uuid.NewString()
	_, err := d.conn.ExecContext(ctx,
		"INSERT INTO files (id, name, size, content, created_at) VALUES (?, ?, ?, ?, ?)",
		id, name, len(data), data, Now(),
	)
	if err != nil {
		return types.FileRef{}, fmt.Errorf("save file %s: %w", name, err)
	}
	return types.FileRef{Path: id, Name: name}, nil
}

// ReadFile returns the name and content of a stored file.
func (d *DB) ReadFile(ctx context.Context, id string) (string, []byte, error) {
	var row struct {
		Name    string `db:"name"`
		Content []byte `db:"content"`
	}
	err := d.conn.GetContext(ctx, &row, "SELECT name, content FROM files WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("file %s not found", id)
	}
	if err != nil {
		return "", nil, fmt.Errorf("read file %s: %w", id, err)
	}
	return row.Name, row.Content, nil
}

// ListFiles returns stored files, newest first.
func (d *DB) ListFiles(ctx context.Context) ([]StoredFile, error) {
	var files []StoredFile
	err := d.conn.SelectContext(ctx, &files,
		"SELECT id, name, size, created_at FROM files ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	return files, nil
}
