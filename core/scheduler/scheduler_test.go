package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svitlobot/svitlo/core/logger"
	"github.com/svitlobot/svitlo/core/metrics"
	"github.com/svitlobot/svitlo/core/model"
	"github.com/svitlobot/svitlo/core/source"
	"github.com/svitlobot/svitlo/internal/eventbus"
)

type nopLogger struct{}

func (nopLogger) Debugf(string, ...any)         {}
func (nopLogger) Debugw(string, map[string]any) {}
func (nopLogger) Infof(string, ...any)          {}
func (nopLogger) Warnf(string, ...any)          {}
func (nopLogger) Errorf(string, ...any)         {}

var _ logger.Logger = nopLogger{}

// recordingLogger captures formatted log lines and structured debug fields.
type recordingLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
	debugw []map[string]any
}

func (l *recordingLogger) Debugf(string, ...any) {}

func (l *recordingLogger) Debugw(_ string, fields map[string]any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debugw = append(l.debugw, fields)
}

func (l *recordingLogger) Infof(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, fmt.Sprintf(format, args...))
}

func (l *recordingLogger) Warnf(string, ...any) {}

func (l *recordingLogger) Errorf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, args...))
}

var _ logger.Logger = (*recordingLogger)(nil)

type fakeFetcher struct {
	payloads map[string][]byte
	errs     map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return f.payloads[url], nil
}

// textAdapter treats the payload as the single schedule text of one group.
type textAdapter struct{ groupID string }

func (a textAdapter) Parse(raw []byte) (map[string][]model.RawScheduleEntry, error) {
	return map[string][]model.RawScheduleEntry{
		a.groupID: {{GroupID: a.groupID, DateLabel: "today", ScheduleText: string(raw)}},
	}, nil
}

type failingAdapter struct{}

func (failingAdapter) Parse([]byte) (map[string][]model.RawScheduleEntry, error) {
	return nil, source.ErrUnparseable
}

type memStore struct {
	mu        sync.Mutex
	snaps     map[string]*model.Snapshot
	upsertErr error
}

func newMemStore() *memStore { return &memStore{snaps: make(map[string]*model.Snapshot)} }

func key(sourceID, groupID string) string { return sourceID + "/" + groupID }

func (m *memStore) Get(_ context.Context, sourceID, groupID string) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[key(sourceID, groupID)]
	if !ok {
		return nil, nil
	}
	cp := *snap
	return &cp, nil
}

func (m *memStore) Upsert(_ context.Context, sourceID, groupID, today, tomorrow, hash string) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key(sourceID, groupID)
	prev := m.snaps[k]
	snap := &model.Snapshot{
		SourceID: sourceID, GroupID: groupID,
		Today: today, Tomorrow: tomorrow, ContentHash: hash,
		UpdatedAt: time.Now(),
	}
	if prev != nil {
		snap.PreviousToday = prev.Today
		snap.PreviousTomorrow = prev.Tomorrow
	}
	m.snaps[k] = snap
	return nil
}

func (m *memStore) Hash(_ context.Context, sourceID, groupID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap, ok := m.snaps[key(sourceID, groupID)]; ok {
		return snap.ContentHash, nil
	}
	return "", nil
}

type fakeDirectory struct {
	subs map[string][]string
	all  []string
}

func (d *fakeDirectory) ListRecipients(_ context.Context, sourceID, groupID string) ([]string, error) {
	return d.subs[key(sourceID, groupID)], nil
}

func (d *fakeDirectory) AllRecipients(context.Context) ([]string, error) { return d.all, nil }

type fakeChannel struct {
	mu      sync.Mutex
	sent    []string // recipient IDs in delivery order
	texts   map[string]string
	failFor map[string]bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{texts: make(map[string]string), failFor: make(map[string]bool)}
}

func (c *fakeChannel) Send(_ context.Context, recipientID, text string, _ bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFor[recipientID] {
		return errors.New("channel rejected")
	}
	c.sent = append(c.sent, recipientID)
	c.texts[recipientID] = text
	return nil
}

type recordingSink struct {
	mu         sync.Mutex
	cycles     []metrics.CycleEvent
	deliveries []metrics.DeliveryEvent
}

func (r *recordingSink) RecordCycle(ev metrics.CycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycles = append(r.cycles, ev)
	return nil
}

func (r *recordingSink) RecordDelivery(ev metrics.DeliveryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, ev)
	return nil
}

func testScheduler(fetcher *fakeFetcher, st *memStore, dir *fakeDirectory, ch *fakeChannel,
	sink metrics.Sink, sources ...Source) *Scheduler {
	cfg := Config{PollInterval: time.Hour, SendDelay: time.Millisecond}
	return New(cfg, sources, fetcher, st, dir, ch, sink, nil, nopLogger{})
}

func TestFirstObservationPersistsWithoutNotifying(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{"u": []byte("from 03:00 to 06:30")}}
	st := newMemStore()
	dir := &fakeDirectory{subs: map[string][]string{key("lviv", "1.1"): {"r1"}}}
	ch := newFakeChannel()
	s := testScheduler(fetcher, st, dir, ch, nil, Source{ID: "lviv", URL: "u", Adapter: textAdapter{"1.1"}})

	require.NoError(t, s.RunCycle(context.Background()))

	assert.Empty(t, ch.sent)
	snap, err := st.Get(context.Background(), "lviv", "1.1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "from 03:00 to 06:30", snap.Today)
	assert.NotEmpty(t, snap.ContentHash)
}

func TestUnchangedRepollStaysQuiet(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{"u": []byte("from 03:00 to 06:30")}}
	st := newMemStore()
	dir := &fakeDirectory{subs: map[string][]string{key("lviv", "1.1"): {"r1"}}}
	ch := newFakeChannel()
	s := testScheduler(fetcher, st, dir, ch, nil, Source{ID: "lviv", URL: "u", Adapter: textAdapter{"1.1"}})

	ctx := context.Background()
	require.NoError(t, s.RunCycle(ctx))
	require.NoError(t, s.RunCycle(ctx))
	require.NoError(t, s.RunCycle(ctx))

	assert.Empty(t, ch.sent)
}

func TestChangeNotifiesSubscribers(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{"u": []byte("from 03:00 to 06:30")}}
	st := newMemStore()
	dir := &fakeDirectory{subs: map[string][]string{key("lviv", "1.1"): {"r1", "r2"}}}
	ch := newFakeChannel()
	sink := &recordingSink{}
	s := testScheduler(fetcher, st, dir, ch, sink, Source{ID: "lviv", URL: "u", Adapter: textAdapter{"1.1"}})

	ctx := context.Background()
	require.NoError(t, s.RunCycle(ctx))
	fetcher.payloads["u"] = []byte("from 04:00 to 06:30")
	require.NoError(t, s.RunCycle(ctx))

	assert.Equal(t, []string{"r1", "r2"}, ch.sent)
	assert.Contains(t, ch.texts["r1"], "What changed:")
	assert.Contains(t, ch.texts["r1"], "04:00 - 06:30")
	assert.Contains(t, ch.texts["r1"], "03:00 - 06:30")

	require.Len(t, sink.cycles, 2)
	assert.Equal(t, 0, sink.cycles[0].GroupsChanged)
	assert.Equal(t, 1, sink.cycles[1].GroupsChanged)
	assert.Len(t, sink.deliveries, 2)
}

func TestSecondUnchangedPollAfterChangeDoesNotRenotify(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{"u": []byte("a from 01:00 to 02:00")}}
	st := newMemStore()
	dir := &fakeDirectory{subs: map[string][]string{key("lviv", "1.1"): {"r1"}}}
	ch := newFakeChannel()
	s := testScheduler(fetcher, st, dir, ch, nil, Source{ID: "lviv", URL: "u", Adapter: textAdapter{"1.1"}})

	ctx := context.Background()
	require.NoError(t, s.RunCycle(ctx))
	fetcher.payloads["u"] = []byte("b from 02:00 to 03:00")
	require.NoError(t, s.RunCycle(ctx))
	require.NoError(t, s.RunCycle(ctx))

	// Rotation happens on every poll, so after the unchanged third cycle
	// previous equals current and no further notification goes out.
	assert.Equal(t, []string{"r1"}, ch.sent)
	snap, _ := st.Get(ctx, "lviv", "1.1")
	assert.Equal(t, snap.Today, snap.PreviousToday)
}

func TestDeliveryFailureIsIsolated(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{"u": []byte("from 03:00 to 06:30")}}
	st := newMemStore()
	recipients := []string{"r1", "r2", "r3", "r4", "r5"}
	dir := &fakeDirectory{subs: map[string][]string{key("lviv", "1.1"): recipients}}
	ch := newFakeChannel()
	ch.failFor["r2"] = true
	sink := &recordingSink{}
	s := testScheduler(fetcher, st, dir, ch, sink, Source{ID: "lviv", URL: "u", Adapter: textAdapter{"1.1"}})

	ctx := context.Background()
	require.NoError(t, s.RunCycle(ctx))
	fetcher.payloads["u"] = []byte("from 05:00 to 06:30")
	require.NoError(t, s.RunCycle(ctx))

	assert.Equal(t, []string{"r1", "r3", "r4", "r5"}, ch.sent)

	failures := 0
	for _, d := range sink.deliveries {
		if !d.Success {
			failures++
		}
	}
	assert.Equal(t, 1, failures)
	assert.Len(t, sink.deliveries, 5)
}

func TestFetchErrorSkipsSourceOnly(t *testing.T) {
	fetcher := &fakeFetcher{
		payloads: map[string][]byte{"good": []byte("from 01:00 to 02:00")},
		errs:     map[string]error{"bad": errors.New("upstream unreachable")},
	}
	st := newMemStore()
	dir := &fakeDirectory{subs: map[string][]string{}}
	ch := newFakeChannel()
	sink := &recordingSink{}
	s := testScheduler(fetcher, st, dir, ch, sink,
		Source{ID: "down", URL: "bad", Adapter: textAdapter{"1.1"}},
		Source{ID: "up", URL: "good", Adapter: textAdapter{"2.1"}},
	)

	require.NoError(t, s.RunCycle(context.Background()))

	snap, _ := st.Get(context.Background(), "up", "2.1")
	assert.NotNil(t, snap)
	require.Len(t, sink.cycles, 1)
	assert.Equal(t, 1, sink.cycles[0].FetchErrors)
	assert.Equal(t, 1, sink.cycles[0].GroupsSeen)
}

func TestParseErrorSkipsSourceOnly(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{
		"a": []byte("garbage"),
		"b": []byte("from 01:00 to 02:00"),
	}}
	st := newMemStore()
	dir := &fakeDirectory{subs: map[string][]string{}}
	ch := newFakeChannel()
	sink := &recordingSink{}
	s := testScheduler(fetcher, st, dir, ch, sink,
		Source{ID: "broken", URL: "a", Adapter: failingAdapter{}},
		Source{ID: "fine", URL: "b", Adapter: textAdapter{"2.1"}},
	)

	require.NoError(t, s.RunCycle(context.Background()))

	require.Len(t, sink.cycles, 1)
	assert.Equal(t, 1, sink.cycles[0].ParseErrors)
	assert.Equal(t, 1, sink.cycles[0].GroupsSeen)
}

func TestEmptyFetchIsNotAnError(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{}}
	st := newMemStore()
	sink := &recordingSink{}
	s := testScheduler(fetcher, st, &fakeDirectory{}, newFakeChannel(), sink,
		Source{ID: "quiet", URL: "u", Adapter: textAdapter{"1.1"}})

	require.NoError(t, s.RunCycle(context.Background()))
	require.Len(t, sink.cycles, 1)
	assert.Equal(t, 0, sink.cycles[0].FetchErrors)
	assert.Equal(t, 0, sink.cycles[0].GroupsSeen)
}

func TestSnapshotWriteFailureAbortsCycle(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{"u": []byte("from 01:00 to 02:00")}}
	st := newMemStore()
	st.upsertErr = errors.New("disk full")
	s := testScheduler(fetcher, st, &fakeDirectory{}, newFakeChannel(), nil,
		Source{ID: "lviv", URL: "u", Adapter: textAdapter{"1.1"}})

	err := s.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist snapshot")
}

func TestBroadcastCommand(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{}}
	st := newMemStore()
	dir := &fakeDirectory{all: []string{"r1", "r2", "r3"}}
	ch := newFakeChannel()
	ch.failFor["r2"] = true

	bus := eventbus.New(4)
	cfg := Config{PollInterval: time.Hour, SendDelay: time.Millisecond}
	s := New(cfg, nil, fetcher, st, dir, ch, nil, bus.Commands(), nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	require.True(t, bus.Publish(eventbus.NewBroadcast("planned maintenance", true)))
	assert.Eventually(t, func() bool {
		ch.mu.Lock()
		defer ch.mu.Unlock()
		return len(ch.sent) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, []string{"r1", "r3"}, ch.sent)
	assert.Equal(t, "planned maintenance", ch.texts["r1"])
}

func TestPollNowCommand(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{"u": []byte("from 01:00 to 02:00")}}
	st := newMemStore()
	sink := &recordingSink{}
	bus := eventbus.New(4)
	cfg := Config{PollInterval: time.Hour, SendDelay: time.Millisecond}
	s := New(cfg, []Source{{ID: "lviv", URL: "u", Adapter: textAdapter{"1.1"}}},
		fetcher, st, &fakeDirectory{}, newFakeChannel(), sink, bus.Commands(), nopLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Run(ctx)
		close(done)
	}()

	// One immediate cycle at start, one more on demand.
	require.True(t, bus.Publish(eventbus.NewPollNow()))
	assert.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.cycles) >= 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestCycleOrderIsDeterministic(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{"u": []byte("x")}}
	st := newMemStore()
	adapter := multiAdapter{groups: []string{"2.2", "1.1", "1.2"}}
	dir := &fakeDirectory{subs: map[string][]string{
		key("lviv", "1.1"): {"a"},
		key("lviv", "1.2"): {"b"},
		key("lviv", "2.2"): {"c"},
	}}
	ch := newFakeChannel()
	s := testScheduler(fetcher, st, dir, ch, nil, Source{ID: "lviv", URL: "u", Adapter: adapter})

	ctx := context.Background()
	require.NoError(t, s.RunCycle(ctx))
	fetcher.payloads["u"] = []byte("y")
	require.NoError(t, s.RunCycle(ctx))

	assert.Equal(t, []string{"a", "b", "c"}, ch.sent)
}

func TestGridAllClearDayPersistsAndNotifies(t *testing.T) {
	outageDay := []byte(`{"days":[{"label":"today","groups":{"1.1":{"1":"no","2":"no","3":"no"}}}]}`)
	clearDay := []byte(`{"days":[{"label":"today","groups":{"1.1":{}}}]}`)
	fetcher := &fakeFetcher{payloads: map[string][]byte{"u": outageDay}}
	st := newMemStore()
	dir := &fakeDirectory{subs: map[string][]string{key("grid", "1.1"): {"r1"}}}
	ch := newFakeChannel()
	s := testScheduler(fetcher, st, dir, ch, nil,
		Source{ID: "grid", URL: "u", Adapter: source.NewGridAdapter(source.DefaultSlotTable())})

	ctx := context.Background()
	require.NoError(t, s.RunCycle(ctx))
	fetcher.payloads["u"] = clearDay
	require.NoError(t, s.RunCycle(ctx))

	// A day with power in every slot is still a schedule: it must rotate
	// the snapshot and announce the restoration.
	snap, err := st.Get(ctx, "grid", "1.1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "no outages", snap.Today)
	assert.Equal(t, "from 00:00 to 03:00", snap.PreviousToday)

	require.Equal(t, []string{"r1"}, ch.sent)
	assert.Contains(t, ch.texts["r1"], "Power restored in:")
	assert.Contains(t, ch.texts["r1"], "00:00 - 03:00")
}

func TestPerSourceLogCountsOwnChanges(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{
		"a": []byte("from 01:00 to 02:00"),
		"b": []byte("from 05:00 to 06:00"),
	}}
	st := newMemStore()
	log := &recordingLogger{}
	cfg := Config{PollInterval: time.Hour, SendDelay: time.Millisecond}
	s := New(cfg, []Source{
		{ID: "lviv", URL: "a", Adapter: textAdapter{"1.1"}},
		{ID: "kyiv", URL: "b", Adapter: textAdapter{"2.1"}},
	}, fetcher, st, &fakeDirectory{}, newFakeChannel(), nil, nil, log)

	ctx := context.Background()
	require.NoError(t, s.RunCycle(ctx))
	fetcher.payloads["a"] = []byte("from 02:00 to 03:00")
	require.NoError(t, s.RunCycle(ctx))

	// Only the first source changed in the second cycle; the second
	// source's line must not inherit the first one's count.
	assert.Contains(t, log.infos, "source lviv: 1 groups, 1 changed")
	assert.NotContains(t, log.infos, "source kyiv: 1 groups, 1 changed")
}

// vanishingStore accepts writes but never returns a snapshot.
type vanishingStore struct{ *memStore }

func (vanishingStore) Get(context.Context, string, string) (*model.Snapshot, error) {
	return nil, nil
}

func TestMissingSnapshotSkipsDelivery(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{"u": []byte("from 01:00 to 02:00")}}
	st := vanishingStore{newMemStore()}
	dir := &fakeDirectory{subs: map[string][]string{key("lviv", "1.1"): {"r1"}}}
	ch := newFakeChannel()
	log := &recordingLogger{}
	cfg := Config{PollInterval: time.Hour, SendDelay: time.Millisecond}
	s := New(cfg, []Source{{ID: "lviv", URL: "u", Adapter: textAdapter{"1.1"}}},
		fetcher, st, dir, ch, nil, nil, log)

	ctx := context.Background()
	require.NoError(t, s.RunCycle(ctx))
	fetcher.payloads["u"] = []byte("from 02:00 to 03:00")
	require.NoError(t, s.RunCycle(ctx))

	assert.Empty(t, ch.sent)
	require.NotEmpty(t, log.errors)
	last := log.errors[len(log.errors)-1]
	assert.Contains(t, last, "snapshot missing")
	assert.NotContains(t, last, "<nil>")
}

func TestCycleSummaryIsLoggedStructured(t *testing.T) {
	fetcher := &fakeFetcher{payloads: map[string][]byte{"u": []byte("from 01:00 to 02:00")}}
	st := newMemStore()
	log := &recordingLogger{}
	cfg := Config{PollInterval: time.Hour, SendDelay: time.Millisecond}
	s := New(cfg, []Source{{ID: "lviv", URL: "u", Adapter: textAdapter{"1.1"}}},
		fetcher, st, &fakeDirectory{}, newFakeChannel(), nil, nil, log)

	require.NoError(t, s.RunCycle(context.Background()))

	require.Len(t, log.debugw, 1)
	fields := log.debugw[0]
	assert.Equal(t, 1, fields["sources"])
	assert.Equal(t, 1, fields["groups_seen"])
	assert.Equal(t, 0, fields["groups_changed"])
	assert.Equal(t, 0, fields["fetch_errors"])
	assert.Equal(t, 0, fields["parse_errors"])
}

// multiAdapter yields one entry per group, all sharing the payload text.
type multiAdapter struct{ groups []string }

func (a multiAdapter) Parse(raw []byte) (map[string][]model.RawScheduleEntry, error) {
	out := make(map[string][]model.RawScheduleEntry, len(a.groups))
	for _, g := range a.groups {
		out[g] = []model.RawScheduleEntry{{GroupID: g, DateLabel: "today",
			ScheduleText: fmt.Sprintf("%s %s", g, raw)}}
	}
	return out, nil
}
