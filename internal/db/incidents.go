package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/daviddao/mailwatch/internal/types"
)

// StoredIncident is an incident row.
type StoredIncident struct {
	ID          string         `db:"id" json:"id"`
	Mailbox     string         `db:"mailbox" json:"mailbox"`
	MessageID   string         `db:"message_id" json:"message_id"`
	Name        string         `db:"name" json:"name"`
	Details     sql.NullString `db:"details" json:"-"`
	Occurred    sql.NullString `db:"occurred" json:"-"`
	Labels      string         `db:"labels" json:"-"`
	Attachments string         `db:"attachments" json:"-"`
	RawJSON     string         `db:"raw_json" json:"-"`
	CreatedAt   string         `db:"created_at" json:"created_at"`
}

// Incident decodes the row back into an incident.
func (s StoredIncident) Incident() (types.Incident, error) {
	inc := types.Incident{
		Name:     s.Name,
		Details:  s.Details.String,
		Occurred: s.Occurred.String,
		RawJSON:  s.RawJSON,
	}
	if err := json.Unmarshal([]byte(s.Labels), &inc.Labels); err != nil {
		return types.Incident{}, fmt.Errorf("decode labels of %s: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(s.Attachments), &inc.Attachment); err != nil {
		return types.Incident{}, fmt.Errorf("decode attachments of %s: %w", s.ID, err)
	}
	return inc, nil
}

// messageID pulls the provider message id out of the incident's raw JSON.
func messageID(inc types.Incident) string {
	var email struct {
		ID string `json:"ID"`
	}
	if json.Unmarshal([]byte(inc.RawJSON), &email) == nil {
		return email.ID
	}
	return ""
}

// StoreIncidents inserts incidents, ignoring ones already stored for the
// same mailbox and message id. It returns how many rows were added.
func (d *DB) StoreIncidents(ctx context.Context, mailbox string, incidents []types.Incident) (int, error) {
	if len(incidents) == 0 {
		return 0, nil
	}

	tx, err := d.conn.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT OR IGNORE INTO incidents
			(id, mailbox, message_id, name, details, occurred, labels, attachments, raw_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	now := Now()
	stored := 0
	for _, inc := range incidents {
		id := uuid.NewString()
		msgID := messageID(inc)
		if msgID == "" {
			msgID = id
		}

		labels, err := json.Marshal(inc.Labels)
		if err != nil {
			return 0, fmt.Errorf("encode labels of %s: %w", msgID, err)
		}
		attachments := inc.Attachment
		if attachments == nil {
			attachments = []types.FileRef{}
		}
		atts, err := json.Marshal(attachments)
		if err != nil {
			return 0, fmt.Errorf("encode attachments of %s: %w", msgID, err)
		}

		res, err := stmt.ExecContext(ctx,
			id, mailbox, msgID, inc.Name, nullStr(inc.Details), nullStr(inc.Occurred),
			string(labels), string(atts), inc.RawJSON, now,
		)
		if err != nil {
			return 0, fmt.Errorf("insert incident %s: %w", msgID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			stored++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit incidents: %w", err)
	}
	return stored, nil
}

// IncidentCount returns the total number of stored incidents.
func (d *DB) IncidentCount(ctx context.Context) (int, error) {
	var n int
	err := d.conn.GetContext(ctx, &n, "SELECT COUNT(*) FROM incidents")
	return n, err
}

// ListIncidents returns the most recent incidents, newest first. An empty
// mailbox lists every mailbox; limit <= 0 means no limit.
func (d *DB) ListIncidents(ctx context.Context, mailbox string, limit int) ([]StoredIncident, error) {
	query := "SELECT * FROM incidents"
	var args []any
	if mailbox != "" {
		query += " WHERE mailbox = ?"
		args = append(args, mailbox)
	}
	query += " ORDER BY occurred DESC, created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	var rows []StoredIncident
	if err := d.conn.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return rows, nil
}

// GetIncident returns the incident stored for a provider message id.
func (d *DB) GetIncident(ctx context.Context, mailbox, msgID string) (*StoredIncident, error) {
	var row StoredIncident
	err := d.conn.GetContext(ctx, &row,
		"SELECT * FROM incidents WHERE mailbox = ? AND message_id = ?", mailbox, msgID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get incident %s: %w", msgID, err)
	}
	return &row, nil
}
