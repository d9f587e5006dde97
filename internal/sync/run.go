package sync

import (
	"context"
	"fmt"

	"github.com/daviddao/mailwatch/internal/types"
)

// CursorStore persists the fetch cursor between invocations.
type CursorStore interface {
	LoadCursor(ctx context.Context) (types.FetchCursor, error)
	SaveCursor(ctx context.Context, cursor types.FetchCursor) error
}

// IncidentSink receives the incidents of a cycle.
type IncidentSink interface {
	// StoreIncidents returns how many incidents were newly stored.
	StoreIncidents(ctx context.Context, mailbox string, incidents []types.Incident) (int, error)
	IncidentCount(ctx context.Context) (int, error)
}

// Run loads the cursor, fetches one cycle, hands the incidents to sink and
// only then saves the next cursor.
func Run(ctx context.Context, f *Fetcher, cursors CursorStore, sink IncidentSink, mailbox string) (*types.FetchSummary, error) {
	cursor, err := cursors.LoadCursor(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}

	batch, err := f.Fetch(ctx, cursor)
	if err != nil {
		return nil, err
	}

	stored, err := sink.StoreIncidents(ctx, mailbox, batch.Incidents)
	if err != nil {
		return nil, fmt.Errorf("store incidents: %w", err)
	}

	if err := cursors.SaveCursor(ctx, batch.Cursor); err != nil {
		return nil, fmt.Errorf("save cursor: %w", err)
	}

	total, err := sink.IncidentCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("count incidents: %w", err)
	}

	return &types.FetchSummary{
		Mailbox:     mailbox,
		FolderPath:  batch.Cursor.LastRunFolderPath,
		FolderID:    batch.Cursor.LastRunFolderID,
		Reset:       batch.Reset,
		Fetched:     len(batch.Incidents),
		Stored:      stored,
		NextCursor:  batch.Cursor,
		TotalStored: total,
	}, nil
}
