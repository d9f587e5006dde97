package sync

import (
	"context"
	"errors"
	"io"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/daviddao/mailwatch/internal/graph"
	"github.com/daviddao/mailwatch/internal/types"
)

// fakeMailbox serves a fixed message set. When filter is true it applies
// the receivedDateTime window, widened by one second to mimic the API's
// inclusive boundary; otherwise it returns every message.
type fakeMailbox struct {
	folders  map[string]string
	messages []graph.Message
	filter   bool
	err      error

	resolveCalls int
	froms        []string
	folderIDs    []string
}

func (f *fakeMailbox) ResolveFolder(_ context.Context, path string) (types.Folder, error) {
	f.resolveCalls++
	id, ok := f.folders[path]
	if !ok {
		return types.Folder{}, &graph.FolderNotFoundError{Path: path}
	}
	return types.Folder{ID: id, DisplayName: path}, nil
}

func (f *fakeMailbox) ListMessages(_ context.Context, folderID, receivedFrom string, top int) ([]graph.Message, error) {
	f.froms = append(f.froms, receivedFrom)
	f.folderIDs = append(f.folderIDs, folderID)
	if f.err != nil {
		return nil, f.err
	}

	from, _ := types.ParseTime(receivedFrom)
	var out []graph.Message
	for _, m := range f.messages {
		received, _ := types.ParseTime(m.ReceivedDateTime)
		if f.filter && received.Before(from.Add(-time.Second)) {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ReceivedDateTime < out[j].ReceivedDateTime })
	return out, nil
}

type idMapper struct{}

func (idMapper) ToIncident(_ context.Context, msg graph.Message) (types.Incident, error) {
	return types.Incident{Name: msg.ID, Occurred: msg.ReceivedDateTime}, nil
}

func msg(id, received string) graph.Message {
	return graph.Message{ID: id, ReceivedDateTime: received}
}

func names(incidents []types.Incident) []string {
	out := []string{}
	for _, inc := range incidents {
		out = append(out, inc.Name)
	}
	return out
}

func newFetcher(src MessageSource, now time.Time) *Fetcher {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &Fetcher{
		Source:     src,
		Mapper:     idMapper{},
		FolderPath: "Inbox",
		Lookback:   15 * time.Minute,
		Limit:      50,
		Clock:      func() time.Time { return now },
		Log:        log,
	}
}

func TestFetchIncidentsDropsBoundaryMessage(t *testing.T) {
	src := &fakeMailbox{
		folders: map[string]string{"Inbox": "AAInbox"},
		messages: []graph.Message{
			msg("m1", "2024-01-01T00:00:00Z"),
			msg("m2", "2024-01-01T00:05:00Z"),
		},
	}
	f := newFetcher(src, time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC))

	next, incidents, err := f.FetchIncidents(context.Background(), types.FetchCursor{
		LastRunTime:       "2024-01-01T00:00:00Z",
		LastRunIDs:        []string{"m1"},
		LastRunFolderID:   "AAInbox",
		LastRunFolderPath: "Inbox",
	})
	if err != nil {
		t.Fatalf("FetchIncidents() error: %v", err)
	}

	if src.resolveCalls != 0 {
		t.Errorf("resolved folder %d times, want 0", src.resolveCalls)
	}
	if want := []string{"2024-01-01T00:00:01Z"}; !reflect.DeepEqual(src.froms, want) {
		t.Errorf("filter times = %v, want %v", src.froms, want)
	}
	if got := names(incidents); !reflect.DeepEqual(got, []string{"m2"}) {
		t.Errorf("incidents = %v, want [m2]", got)
	}
	want := types.FetchCursor{
		LastRunTime:       "2024-01-01T00:05:00Z",
		LastRunIDs:        []string{"m2"},
		LastRunFolderID:   "AAInbox",
		LastRunFolderPath: "Inbox",
	}
	if !reflect.DeepEqual(next, want) {
		t.Errorf("next cursor = %+v, want %+v", next, want)
	}
}

func TestFetchIncidentsEmptyAdvancesToStart(t *testing.T) {
	src := &fakeMailbox{folders: map[string]string{"Inbox": "AAInbox"}}
	now := time.Date(2024, 1, 1, 12, 30, 45, 500, time.UTC)
	f := newFetcher(src, now)

	next, incidents, err := f.FetchIncidents(context.Background(), types.FetchCursor{
		LastRunTime:       "2024-01-01T12:00:00Z",
		LastRunIDs:        []string{"old"},
		LastRunFolderID:   "AAInbox",
		LastRunFolderPath: "Inbox",
	})
	if err != nil {
		t.Fatalf("FetchIncidents() error: %v", err)
	}
	if len(incidents) != 0 {
		t.Errorf("got %d incidents, want 0", len(incidents))
	}
	if next.LastRunTime != "2024-01-01T12:30:45Z" {
		t.Errorf("LastRunTime = %q, want cycle start", next.LastRunTime)
	}
	if next.LastRunIDs == nil || len(next.LastRunIDs) != 0 {
		t.Errorf("LastRunIDs = %#v, want empty non-nil", next.LastRunIDs)
	}
}

func TestFetchIncidentsFolderChangeResets(t *testing.T) {
	src := &fakeMailbox{
		folders: map[string]string{"Inbox/Phishing": "AAPhish"},
		messages: []graph.Message{
			msg("p1", "2024-01-01T11:50:00Z"),
		},
	}
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	f := newFetcher(src, now)
	f.FolderPath = "Inbox/Phishing"

	next, incidents, err := f.FetchIncidents(context.Background(), types.FetchCursor{
		LastRunTime:       "2030-01-01T00:00:00Z",
		LastRunIDs:        []string{"p1"},
		LastRunFolderID:   "AAInbox",
		LastRunFolderPath: "Inbox",
	})
	if err != nil {
		t.Fatalf("FetchIncidents() error: %v", err)
	}

	if src.resolveCalls != 1 {
		t.Errorf("resolved folder %d times, want 1", src.resolveCalls)
	}
	if src.folderIDs[0] != "AAPhish" {
		t.Errorf("listed folder %q, want AAPhish", src.folderIDs[0])
	}
	if src.froms[0] != "2024-01-01T11:45:01Z" {
		t.Errorf("filter time = %q, want lookback window", src.froms[0])
	}
	if got := names(incidents); !reflect.DeepEqual(got, []string{"p1"}) {
		t.Errorf("incidents = %v, want [p1] (seen ids discarded on reset)", got)
	}
	if next.LastRunFolderPath != "Inbox/Phishing" || next.LastRunFolderID != "AAPhish" {
		t.Errorf("next cursor folder = %q/%q", next.LastRunFolderPath, next.LastRunFolderID)
	}
}

func TestFetchIncidentsInitialRun(t *testing.T) {
	src := &fakeMailbox{folders: map[string]string{"Inbox": "AAInbox"}}
	f := newFetcher(src, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))

	next, _, err := f.FetchIncidents(context.Background(), types.FetchCursor{})
	if err != nil {
		t.Fatalf("FetchIncidents() error: %v", err)
	}
	if src.resolveCalls != 1 {
		t.Errorf("resolved folder %d times, want 1", src.resolveCalls)
	}
	if src.froms[0] != "2024-03-01T08:45:01Z" {
		t.Errorf("filter time = %q", src.froms[0])
	}
	if next.LastRunFolderID != "AAInbox" {
		t.Errorf("LastRunFolderID = %q", next.LastRunFolderID)
	}
}

func TestFetchIncidentsTwoCyclesNoDuplicates(t *testing.T) {
	src := &fakeMailbox{
		folders: map[string]string{"Inbox": "AAInbox"},
		filter:  true,
		messages: []graph.Message{
			msg("m1", "2024-01-01T09:58:00Z"),
			msg("m2", "2024-01-01T09:59:30Z"),
			msg("m3", "2024-01-01T09:59:30Z"),
		},
	}
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	f := newFetcher(src, now)
	ctx := context.Background()

	cursor, first, err := f.FetchIncidents(ctx, types.FetchCursor{})
	if err != nil {
		t.Fatalf("cycle 1: %v", err)
	}
	if got := names(first); !reflect.DeepEqual(got, []string{"m1", "m2", "m3"}) {
		t.Fatalf("cycle 1 incidents = %v", got)
	}

	src.messages = append(src.messages, msg("m4", "2024-01-01T10:01:00Z"))
	f.Clock = func() time.Time { return now.Add(2 * time.Minute) }

	_, second, err := f.FetchIncidents(ctx, cursor)
	if err != nil {
		t.Fatalf("cycle 2: %v", err)
	}
	if got := names(second); !reflect.DeepEqual(got, []string{"m4"}) {
		t.Errorf("cycle 2 incidents = %v, want [m4]", got)
	}
	for _, n := range names(second) {
		for _, seen := range names(first) {
			if n == seen {
				t.Errorf("message %s emitted twice", n)
			}
		}
	}
}

func TestFetchIncidentsTruncatesToLimit(t *testing.T) {
	src := &fakeMailbox{
		folders: map[string]string{"Inbox": "AAInbox"},
		messages: []graph.Message{
			msg("a", "2024-01-01T00:00:10Z"),
			msg("b", "2024-01-01T00:00:20Z"),
			msg("c", "2024-01-01T00:00:30Z"),
		},
	}
	f := newFetcher(src, time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC))
	f.Limit = 2

	next, incidents, err := f.FetchIncidents(context.Background(), types.FetchCursor{})
	if err != nil {
		t.Fatalf("FetchIncidents() error: %v", err)
	}
	if got := names(incidents); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("incidents = %v, want [a b]", got)
	}
	if next.LastRunTime != "2024-01-01T00:00:20Z" {
		t.Errorf("LastRunTime = %q", next.LastRunTime)
	}
}

func TestFetchIncidentsPropagatesErrors(t *testing.T) {
	src := &fakeMailbox{
		folders: map[string]string{"Inbox": "AAInbox"},
		err:     errors.New("503 service unavailable"),
	}
	f := newFetcher(src, time.Now())
	prev := types.FetchCursor{LastRunTime: "2024-01-01T00:00:00Z", LastRunFolderID: "AAInbox", LastRunFolderPath: "Inbox"}

	next, incidents, err := f.FetchIncidents(context.Background(), prev)
	if err == nil {
		t.Fatal("expected error")
	}
	if incidents != nil || !reflect.DeepEqual(next, prev) {
		t.Errorf("on error got next=%+v incidents=%v, want previous cursor and nil", next, incidents)
	}
	if len(src.froms) != 1 {
		t.Errorf("listed %d times, want 1 (no retries)", len(src.froms))
	}
}

type memCursor struct {
	cursor types.FetchCursor
	saves  int
}

func (m *memCursor) LoadCursor(context.Context) (types.FetchCursor, error) { return m.cursor, nil }

func (m *memCursor) SaveCursor(_ context.Context, c types.FetchCursor) error {
	m.saves++
	m.cursor = c
	return nil
}

type memSink struct {
	incidents []types.Incident
}

func (m *memSink) StoreIncidents(_ context.Context, _ string, incs []types.Incident) (int, error) {
	m.incidents = append(m.incidents, incs...)
	return len(incs), nil
}

func (m *memSink) IncidentCount(context.Context) (int, error) { return len(m.incidents), nil }

func TestRunPersistsCursorAfterSuccess(t *testing.T) {
	src := &fakeMailbox{
		folders:  map[string]string{"Inbox": "AAInbox"},
		messages: []graph.Message{msg("m1", "2024-01-01T00:00:30Z")},
	}
	f := newFetcher(src, time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC))
	cursors := &memCursor{}
	sink := &memSink{}

	summary, err := Run(context.Background(), f, cursors, sink, "soc@example.com")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if cursors.saves != 1 || cursors.cursor.LastRunTime != "2024-01-01T00:00:30Z" {
		t.Errorf("cursor not saved: saves=%d cursor=%+v", cursors.saves, cursors.cursor)
	}
	if summary.Fetched != 1 || summary.Stored != 1 || summary.TotalStored != 1 || !summary.Reset {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRunReportsReset(t *testing.T) {
	now := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		cursor types.FetchCursor
		want   bool
	}{
		{
			name:   "valid cursor",
			cursor: types.FetchCursor{LastRunTime: "2024-01-01T00:59:00Z", LastRunFolderID: "AAInbox", LastRunFolderPath: "Inbox"},
			want:   false,
		},
		{
			name:   "missing folder id",
			cursor: types.FetchCursor{LastRunTime: "2024-01-01T00:59:00Z", LastRunFolderPath: "Inbox"},
			want:   true,
		},
		{
			name:   "unreadable time",
			cursor: types.FetchCursor{LastRunTime: "yesterday", LastRunFolderID: "AAInbox", LastRunFolderPath: "Inbox"},
			want:   true,
		},
		{
			name:   "other folder",
			cursor: types.FetchCursor{LastRunTime: "2024-01-01T00:59:00Z", LastRunFolderID: "AAArchive", LastRunFolderPath: "Archive"},
			want:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeMailbox{folders: map[string]string{"Inbox": "AAInbox"}}
			cursors := &memCursor{cursor: tt.cursor}

			summary, err := Run(context.Background(), newFetcher(src, now), cursors, &memSink{}, "soc@example.com")
			if err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			if summary.Reset != tt.want {
				t.Errorf("Reset = %v, want %v", summary.Reset, tt.want)
			}
		})
	}
}

func TestRunKeepsCursorOnFailure(t *testing.T) {
	src := &fakeMailbox{folders: map[string]string{"Inbox": "AAInbox"}, err: errors.New("boom")}
	f := newFetcher(src, time.Now())
	prev := types.FetchCursor{LastRunTime: "2024-01-01T00:00:00Z", LastRunFolderID: "AAInbox", LastRunFolderPath: "Inbox"}
	cursors := &memCursor{cursor: prev}

	if _, err := Run(context.Background(), f, cursors, &memSink{}, "soc@example.com"); err == nil {
		t.Fatal("expected error")
	}
	if cursors.saves != 0 || !reflect.DeepEqual(cursors.cursor, prev) {
		t.Errorf("cursor changed on failure: saves=%d cursor=%+v", cursors.saves, cursors.cursor)
	}
}

func TestParseLookback(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "15 minutes", want: 15 * time.Minute},
		{in: "1 minute", want: time.Minute},
		{in: "3 Days", want: 72 * time.Hour},
		{in: "2 weeks", want: 14 * 24 * time.Hour},
		{in: "12 hours", want: 12 * time.Hour},
		{in: "90m", want: 90 * time.Minute},
		{in: "", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "ten minutes", wantErr: true},
		{in: "5 fortnights", wantErr: true},
		{in: "-5m", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLookback(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLookback(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLookback(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
