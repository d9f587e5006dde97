// Package sync runs incremental fetch cycles against one mail folder.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daviddao/mailwatch/internal/graph"
	"github.com/daviddao/mailwatch/internal/types"
)

// MessageSource is the part of the mail API a fetch cycle needs.
type MessageSource interface {
	ResolveFolder(ctx context.Context, path string) (types.Folder, error)
	ListMessages(ctx context.Context, folderID, receivedFrom string, top int) ([]graph.Message, error)
}

// IncidentMapper converts one message into an incident.
type IncidentMapper interface {
	ToIncident(ctx context.Context, msg graph.Message) (types.Incident, error)
}

// Fetcher pulls messages received since the last cycle.
type Fetcher struct {
	Source     MessageSource
	Mapper     IncidentMapper
	FolderPath string
	Lookback   time.Duration
	Limit      int

	// Clock defaults to time.Now.
	Clock func() time.Time
	Log   logrus.FieldLogger
}

// Batch is the outcome of one fetch cycle.
type Batch struct {
	// Cursor replaces the one passed in once the incidents are stored.
	Cursor    types.FetchCursor
	Incidents []types.Incident
	// Reset reports that the cycle ignored the previous cursor and started
	// Lookback before now.
	Reset bool
}

// FetchIncidents runs one cycle. The returned cursor replaces the one passed
// in; the caller persists it only when err is nil.
func (f *Fetcher) FetchIncidents(ctx context.Context, cursor types.FetchCursor) (types.FetchCursor, []types.Incident, error) {
	b, err := f.Fetch(ctx, cursor)
	if err != nil {
		return cursor, nil, err
	}
	return b.Cursor, b.Incidents, nil
}

// Fetch runs one cycle.
//
// When the cursor belongs to another folder path, or has never recorded a
// time, the folder is resolved again and fetching starts Lookback before
// now. Otherwise the cursor's folder id and time are reused and messages
// from the previous batch are dropped.
func (f *Fetcher) Fetch(ctx context.Context, cursor types.FetchCursor) (Batch, error) {
	start := f.now().UTC().Truncate(time.Second)
	startTime := types.FormatTime(start)

	folderID := cursor.LastRunFolderID
	exclude := cursor.LastRunIDs
	reset := false

	if cursor.LastRunFolderPath != f.FolderPath || folderID == "" {
		folder, err := f.Source.ResolveFolder(ctx, f.FolderPath)
		if err != nil {
			return Batch{}, fmt.Errorf("resolve folder %s: %w", f.FolderPath, err)
		}
		folderID = folder.ID
		reset = true
		f.log().WithFields(logrus.Fields{
			"folder_path": f.FolderPath,
			"folder_id":   folderID,
		}).Info("folder resolved, ignoring last run")
	}

	var last time.Time
	if !reset && cursor.LastRunTime != "" {
		t, err := types.ParseTime(cursor.LastRunTime)
		if err != nil {
			f.log().WithError(err).WithField("last_run_time", cursor.LastRunTime).Warn("unreadable last run time, starting over")
			reset = true
		} else {
			last = t
		}
	} else {
		reset = true
	}
	if reset {
		last = start.Add(-f.Lookback)
		exclude = nil
		f.log().WithField("from", types.FormatTime(last)).Info("initialize fetch")
	}

	// The API's "ge" filter returns the boundary message again, so the
	// window starts one second after the last received time.
	from := types.FormatTime(last.Add(time.Second))
	msgs, err := f.Source.ListMessages(ctx, folderID, from, f.Limit)
	if err != nil {
		return Batch{}, err
	}
	if f.Limit > 0 && len(msgs) > f.Limit {
		msgs = msgs[:f.Limit]
	}

	msgs = dropSeen(msgs, exclude)

	incidents := make([]types.Incident, 0, len(msgs))
	ids := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		inc, err := f.Mapper.ToIncident(ctx, msg)
		if err != nil {
			return Batch{}, fmt.Errorf("map message %s: %w", msg.ID, err)
		}
		incidents = append(incidents, inc)
		ids = append(ids, msg.ID)
	}

	next := types.FetchCursor{
		LastRunTime:       startTime,
		LastRunIDs:        ids,
		LastRunFolderID:   folderID,
		LastRunFolderPath: f.FolderPath,
	}
	if len(msgs) > 0 {
		next.LastRunTime = msgs[len(msgs)-1].ReceivedDateTime
	}

	f.log().WithFields(logrus.Fields{
		"fetched": len(incidents),
		"reset":   reset,
	}).Info("fetched incidents")

	return Batch{Cursor: next, Incidents: incidents, Reset: reset}, nil
}

func dropSeen(msgs []graph.Message, seen []string) []graph.Message {
	if len(seen) == 0 {
		return msgs
	}
	skip := make(map[string]bool, len(seen))
	for _, id := range seen {
		skip[id] = true
	}
	kept := msgs[:0:0]
	for _, m := range msgs {
		if !skip[m.ID] {
			kept = append(kept, m)
		}
	}
	return kept
}

func (f *Fetcher) now() time.Time {
	if f.Clock != nil {
		return f.Clock()
	}
	return time.Now()
}

func (f *Fetcher) log() logrus.FieldLogger {
	if f.Log != nil {
		return f.Log
	}
	return logrus.StandardLogger()
}
