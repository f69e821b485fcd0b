package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mycelica/arbor/internal/graph"
)

// fakeStore records calls and can be told to fail writes.
type fakeStore struct {
	mu       sync.Mutex
	saves    [][]graph.Node
	patches  []graph.NodePatch
	editors  map[string]graph.ActiveEditor
	beats    int
	removed  []string
	failSave bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{editors: make(map[string]graph.ActiveEditor)}
}

func (f *fakeStore) SaveNodes(_ context.Context, _ string, nodes []graph.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errors.New("store unavailable")
	}
	f.saves = append(f.saves, nodes)
	return nil
}

func (f *fakeStore) UpdateNode(_ context.Context, _, _ string, patch graph.NodePatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errors.New("store unavailable")
	}
	f.patches = append(f.patches, patch)
	return nil
}

func (f *fakeStore) GetDocument(_ context.Context, docID, userID string) (*graph.Document, error) {
	if userID != "owner" {
		return nil, graph.ErrNotFound
	}
	return &graph.Document{ID: docID, OwnerID: userID}, nil
}

func (f *fakeStore) GetSharedDocument(_ context.Context, docID string) (*graph.Document, error) {
	if docID != "shared" {
		return nil, graph.ErrNotFound
	}
	return &graph.Document{ID: docID, Sharing: graph.Sharing{Shared: true}}, nil
}

func (f *fakeStore) UpdateActiveEditor(_ context.Context, e graph.ActiveEditor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats++
	f.editors[e.UserID] = e
	return nil
}

func (f *fakeStore) GetActiveEditors(_ context.Context, _ string) ([]graph.ActiveEditor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]graph.ActiveEditor, 0, len(f.editors))
	for _, e := range f.editors {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeStore) RemoveActiveEditor(_ context.Context, _, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.editors, userID)
	f.removed = append(f.removed, userID)
	return nil
}

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func (f *fakeStore) lastSave() []graph.Node {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[len(f.saves)-1]
}

func (f *fakeStore) setFail(v bool) {
	f.mu.Lock()
	f.failSave = v
	f.mu.Unlock()
}

// statusLog collects OnStatus callbacks.
type statusLog struct {
	mu  sync.Mutex
	seq []Status
}

func (s *statusLog) record(st Status) {
	s.mu.Lock()
	s.seq = append(s.seq, st)
	s.mu.Unlock()
}

func (s *statusLog) all() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Status(nil), s.seq...)
}

func testOptions(log *statusLog) Options {
	opts := Options{
		SaveDebounce:   40 * time.Millisecond,
		MirrorDebounce: 5 * time.Millisecond,
		SavedClear:     60 * time.Millisecond,
		ErrorClear:     60 * time.Millisecond,
		Heartbeat:      20 * time.Millisecond,
		RosterPoll:     20 * time.Millisecond,
	}
	if log != nil {
		opts.OnStatus = log.record
	}
	return opts
}

func nodesLabeled(label string) []graph.Node {
	return []graph.Node{
		{ID: "R", Children: []string{"A"}, Type: graph.TypeRoot, Label: "root"},
		{ID: "A", ParentID: graph.StrPtr("R"), X: 100, Level: 1, Label: label},
	}
}

const waitFor, tick = time.Second, 5 * time.Millisecond

func TestGateway_BurstCoalescesIntoOneSave(t *testing.T) {
	store := newFakeStore()
	g := NewGateway(store, "doc", testOptions(nil))

	for _, l := range []string{"a1", "a2", "a3", "a4", "a5"} {
		assert.True(t, g.RequestSave(nodesLabeled(l)))
	}
	assert.Equal(t, StatusSaving, g.Status())

	require.Eventually(t, func() bool { return store.saveCount() == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return store.saveCount() > 1 }, 150*time.Millisecond, tick)
	assert.Equal(t, "a5", store.lastSave()[1].Label, "last edit wins")
}

func TestGateway_SingleEditSavesOnceAfterQuiet(t *testing.T) {
	store := newFakeStore()
	g := NewGateway(store, "doc", testOptions(nil))

	g.RequestSave(nodesLabeled("x"))
	assert.Equal(t, 0, store.saveCount(), "not before the debounce")
	require.Eventually(t, func() bool { return store.saveCount() == 1 }, waitFor, tick)
	assert.Never(t, func() bool { return store.saveCount() > 1 }, 120*time.Millisecond, tick)
}

func TestGateway_StatusLifecycle(t *testing.T) {
	store := newFakeStore()
	log := &statusLog{}
	g := NewGateway(store, "doc", testOptions(log))

	g.RequestSave(nodesLabeled("x"))
	require.Eventually(t, func() bool { return g.Status() == StatusSaved }, waitFor, tick)
	require.Eventually(t, func() bool { return g.Status() == StatusIdle }, waitFor, tick)
	require.Eventually(t, func() bool { return len(log.all()) == 3 }, waitFor, tick)
	assert.Equal(t, []Status{StatusSaving, StatusSaved, StatusIdle}, log.all())
}

func TestGateway_IdenticalHashSkips(t *testing.T) {
	store := newFakeStore()
	g := NewGateway(store, "doc", testOptions(nil))

	g.RequestSave(nodesLabeled("x"))
	require.Eventually(t, func() bool { return store.saveCount() == 1 }, waitFor, tick)

	assert.False(t, g.RequestSave(nodesLabeled("x")))
	assert.Never(t, func() bool { return store.saveCount() > 1 }, 120*time.Millisecond, tick)
}

func TestGateway_FlagOnlyChangeSaves(t *testing.T) {
	store := newFakeStore()
	g := NewGateway(store, "doc", testOptions(nil))
	g.MarkSaved(nodesLabeled("x"))

	shared := nodesLabeled("x")
	shared[1].Shared = true
	require.Equal(t, HashNodes(nodesLabeled("x")), HashNodes(shared))
	assert.True(t, g.RequestSave(shared))
	g.Flush(context.Background())
	require.Equal(t, 1, store.saveCount())
	assert.True(t, store.lastSave()[1].Shared)

	assert.False(t, g.RequestSave(shared), "flags now match the stored state")
}

func TestGateway_RequestLeavesStatusCallbackToCaller(t *testing.T) {
	store := newFakeStore()
	log := &statusLog{}
	opts := testOptions(log)
	opts.SaveDebounce = time.Hour
	g := NewGateway(store, "doc", opts)

	scheduled, notify := g.Request(nodesLabeled("x"))
	assert.True(t, scheduled)
	assert.Equal(t, StatusSaving, g.Status())
	assert.Empty(t, log.all())
	notify()
	assert.Equal(t, []Status{StatusSaving}, log.all())

	scheduled, notify = g.Request(nodesLabeled("y"))
	assert.True(t, scheduled)
	notify()
	assert.Equal(t, []Status{StatusSaving}, log.all(), "already saving")
}

func TestGateway_RevertWithinWindowCancelsPendingSave(t *testing.T) {
	store := newFakeStore()
	g := NewGateway(store, "doc", testOptions(nil))
	g.MarkSaved(nodesLabeled("x"))

	assert.True(t, g.RequestSave(nodesLabeled("y")))
	assert.False(t, g.RequestSave(nodesLabeled("x")), "back to the stored state")
	assert.Equal(t, StatusIdle, g.Status())
	assert.Never(t, func() bool { return store.saveCount() > 0 }, 120*time.Millisecond, tick)
}

func TestGateway_FailureThenRetryOnNextEdit(t *testing.T) {
	store := newFakeStore()
	store.setFail(true)
	log := &statusLog{}
	g := NewGateway(store, "doc", testOptions(log))

	g.RequestSave(nodesLabeled("x"))
	require.Eventually(t, func() bool { return g.Status() == StatusError }, waitFor, tick)
	require.Eventually(t, func() bool { return g.Status() == StatusIdle }, waitFor, tick)
	assert.Equal(t, 0, store.saveCount())

	// no automatic retry
	assert.Never(t, func() bool { return g.Status() != StatusIdle }, 100*time.Millisecond, tick)

	store.setFail(false)
	assert.True(t, g.RequestSave(nodesLabeled("x")), "hash was unset by the failure")
	require.Eventually(t, func() bool { return store.saveCount() == 1 }, waitFor, tick)
}

func TestGateway_FlushWritesImmediately(t *testing.T) {
	store := newFakeStore()
	opts := testOptions(nil)
	opts.SaveDebounce = time.Hour
	g := NewGateway(store, "doc", opts)

	g.RequestSave(nodesLabeled("x"))
	g.Flush(context.Background())
	assert.Equal(t, 1, store.saveCount())
	assert.Equal(t, StatusSaved, g.Status())

	g.Flush(context.Background())
	assert.Equal(t, 1, store.saveCount(), "nothing pending")
}

func TestGateway_MirrorNeverWritesStore(t *testing.T) {
	store := newFakeStore()
	var mu sync.Mutex
	var mirrored [][]graph.Node
	opts := testOptions(nil)
	opts.Mirror = func(n []graph.Node) {
		mu.Lock()
		mirrored = append(mirrored, n)
		mu.Unlock()
	}
	g := NewGateway(store, "doc", opts)

	for _, l := range []string{"a", "b", "c"} {
		g.MirrorLocal(nodesLabeled(l))
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(mirrored) == 1
	}, waitFor, tick)
	mu.Lock()
	assert.Equal(t, "c", mirrored[0][1].Label)
	mu.Unlock()
	assert.Never(t, func() bool { return store.saveCount() > 0 }, 80*time.Millisecond, tick)
}

func TestGateway_UpdateNode(t *testing.T) {
	store := newFakeStore()
	g := NewGateway(store, "doc", testOptions(nil))
	label := "new"
	assert.True(t, g.UpdateNode(context.Background(), "A", graph.NodePatch{Label: &label}))
	assert.True(t, g.UpdateNode(context.Background(), "A", graph.NodePatch{}), "empty patch is a no-op")
	assert.Len(t, store.patches, 1)

	store.setFail(true)
	assert.False(t, g.UpdateNode(context.Background(), "A", graph.NodePatch{Label: &label}))
	assert.Equal(t, StatusError, g.Status())
}

func TestGateway_PresenceHeartbeatAndRoster(t *testing.T) {
	store := newFakeStore()
	var mu sync.Mutex
	var rosters [][]graph.ActiveEditor
	opts := testOptions(nil)
	opts.OnRoster = func(r []graph.ActiveEditor) {
		mu.Lock()
		rosters = append(rosters, r)
		mu.Unlock()
	}
	g := NewGateway(store, "doc", opts)

	g.StartPresence(context.Background(), graph.ActiveEditor{UserID: "u1", DisplayName: "One"}, true)
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return store.beats >= 3
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(rosters) >= 2 && len(rosters[len(rosters)-1]) == 1
	}, waitFor, tick)

	store.mu.Lock()
	e := store.editors["u1"]
	store.mu.Unlock()
	assert.Equal(t, "doc", e.DocumentID)
	assert.NotZero(t, e.LastSeen)

	g.StopPresence()
	store.mu.Lock()
	assert.Equal(t, []string{"u1"}, store.removed)
	assert.Empty(t, store.editors)
	beats := store.beats
	store.mu.Unlock()

	time.Sleep(60 * time.Millisecond)
	store.mu.Lock()
	assert.Equal(t, beats, store.beats, "no heartbeats after stop")
	store.mu.Unlock()
}

func TestGateway_UnsharedDocumentSkipsRoster(t *testing.T) {
	store := newFakeStore()
	called := make(chan struct{}, 1)
	opts := testOptions(nil)
	opts.OnRoster = func([]graph.ActiveEditor) { called <- struct{}{} }
	g := NewGateway(store, "doc", opts)

	g.StartPresence(context.Background(), graph.ActiveEditor{UserID: "u1"}, false)
	defer g.StopPresence()
	select {
	case <-called:
		t.Fatal("roster polled for an unshared document")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestLoadDocument_FallsBackToShared(t *testing.T) {
	store := newFakeStore()
	doc, err := LoadDocument(context.Background(), store, "mine", "owner")
	require.NoError(t, err)
	assert.Equal(t, "owner", doc.OwnerID)

	doc, err = LoadDocument(context.Background(), store, "shared", "visitor")
	require.NoError(t, err)
	assert.True(t, doc.Sharing.Shared)

	_, err = LoadDocument(context.Background(), store, "private", "visitor")
	assert.ErrorIs(t, err, graph.ErrNotFound)
}

func TestHashNodes(t *testing.T) {
	base := nodesLabeled("x")
	assert.Equal(t, HashNodes(base), HashNodes(graph.CloneNodes(base)))

	moved := nodesLabeled("x")
	moved[1].X = 101
	relabeled := nodesLabeled("y")
	reparented := nodesLabeled("x")
	reparented[1].ParentID = nil
	for _, other := range [][]graph.Node{moved, relabeled, reparented} {
		assert.NotEqual(t, HashNodes(base), HashNodes(other))
	}

	// fields outside the persisted shape do not count
	flagged := nodesLabeled("x")
	flagged[1].ManuallyPositioned = true
	flagged[1].UpdatedAt = 99
	assert.Equal(t, HashNodes(base), HashNodes(flagged))
}

func TestHashFlags(t *testing.T) {
	base := nodesLabeled("x")
	assert.Equal(t, HashFlags(base), HashFlags(nodesLabeled("y")), "labels are not flags")

	shared := nodesLabeled("x")
	shared[1].Shared = true
	pinned := nodesLabeled("x")
	pinned[1].ManuallyPositioned = true
	assert.NotEqual(t, HashFlags(base), HashFlags(shared))
	assert.NotEqual(t, HashFlags(base), HashFlags(pinned))
	assert.NotEqual(t, HashFlags(shared), HashFlags(pinned))
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var mu sync.Mutex
	calls := 0
	inc := func() {
		mu.Lock()
		calls++
		mu.Unlock()
	}
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return calls
	}

	d.Trigger(inc)
	d.Trigger(inc)
	assert.True(t, d.Pending())
	require.Eventually(t, func() bool { return count() == 1 }, waitFor, tick)
	assert.False(t, d.Pending())

	d.Trigger(inc)
	d.Cancel()
	assert.Never(t, func() bool { return count() > 1 }, 60*time.Millisecond, tick)

	d.Trigger(inc)
	assert.True(t, d.Flush())
	assert.Equal(t, 2, count())
	assert.False(t, d.Flush())
}
