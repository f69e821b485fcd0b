// Package session keeps the open editor tabs and a per-tab snapshot cache,
// and serializes the whole session into durable storage so a restart
// resumes exactly where it left off.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"mycelica/arbor/internal/graph"
	"mycelica/arbor/internal/viewport"
)

// ErrNoTab is returned for tab ids that are not open.
var ErrNoTab = errors.New("no such tab")

// Kind is the view a tab shows
type Kind string

const (
	KindGraph Kind = "graph" // whole document
	KindNode  Kind = "node"  // node-centered subview
)

// DocumentRef identifies what a tab shows: a document, optionally focused on
// one node.
type DocumentRef struct {
	DocumentID string `json:"documentId"`
	NodeID     string `json:"nodeId,omitempty"`
}

// Kind returns the tab kind implied by the ref.
func (r DocumentRef) Kind() Kind {
	if r.NodeID != "" {
		return KindNode
	}
	return KindGraph
}

// Tab is one open tab
type Tab struct {
	ID    string      `json:"id"`
	Label string      `json:"label"`
	Kind  Kind        `json:"kind"`
	Ref   DocumentRef `json:"documentRef"`
}

// Focus is where the tab was looking when it was left.
type Focus struct {
	NodeID   string            `json:"nodeId,omitempty"`
	Viewport viewport.Viewport `json:"viewport"`
}

// TabState is the cached snapshot of one tab
type TabState struct {
	TabID     string          `json:"tabId"`
	Document  *graph.Document `json:"document"`
	Nodes     []graph.Node    `json:"nodes"`
	Selection string          `json:"selection,omitempty"`
	Focus     Focus           `json:"focus"`
}

// Clone deep-copies the state.
func (s TabState) Clone() TabState {
	out := s
	if s.Document != nil {
		d := s.Document.Clone()
		out.Document = &d
	}
	out.Nodes = graph.CloneNodes(s.Nodes)
	return out
}

// blob is the durable session format.
type blob struct {
	Tabs        []Tab      `json:"tabs"`
	ActiveTabID string     `json:"activeTabId"`
	PerTabState []TabState `json:"perTabState"`
}

// Loader fetches a document for a tab.
type Loader func(ctx context.Context, ref DocumentRef) (*graph.Document, error)

// Options configures a TabStore.
type Options struct {
	Key    string // durable key; one session per key
	Loader Loader
	Logger logrus.FieldLogger

	// OnLoaded runs after an asynchronous load finishes (err non-nil on failure).
	OnLoaded func(tabID string, state TabState, err error)
}

// TabStore owns the open tabs and their cached state. Safe for concurrent use.
type TabStore struct {
	durable  Durable
	key      string
	loader   Loader
	log      logrus.FieldLogger
	onLoaded func(string, TabState, error)

	group singleflight.Group
	loads sync.WaitGroup

	mu     sync.Mutex
	tabs   []Tab
	active string
	cache  map[string]*TabState
}

// NewTabStore returns an empty store serializing into durable.
func NewTabStore(durable Durable, opts Options) *TabStore {
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	key := opts.Key
	if key == "" {
		key = "default"
	}
	return &TabStore{
		durable:  durable,
		key:      key,
		loader:   opts.Loader,
		log:      log.WithField("session", key),
		onLoaded: opts.OnLoaded,
		cache:    make(map[string]*TabState),
	}
}

// Tabs returns the open tabs in order.
func (s *TabStore) Tabs() []Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Tab(nil), s.tabs...)
}

// Active returns the active tab id ("" when no tabs are open).
func (s *TabStore) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// State returns a copy of the cached state of tabID.
func (s *TabStore) State(tabID string) (TabState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.cache[tabID]
	if !ok {
		return TabState{}, false
	}
	return st.Clone(), true
}

// OpenTab activates the tab showing ref, creating it if needed. A new tab
// takes its document from any cached tab of the same document, else it is
// loaded in the background. Returns the tab and whether its state is ready.
func (s *TabStore) OpenTab(ctx context.Context, ref DocumentRef, label string) (Tab, bool) {
	s.mu.Lock()
	for _, t := range s.tabs {
		if t.Ref == ref {
			s.active = t.ID
			_, ready := s.cache[t.ID]
			s.mu.Unlock()
			s.persist()
			return t, ready
		}
	}

	if label == "" {
		label = ref.DocumentID
		if ref.NodeID != "" {
			label = ref.NodeID
		}
	}
	tab := Tab{ID: uuid.NewString(), Label: label, Kind: ref.Kind(), Ref: ref}
	s.tabs = append(s.tabs, tab)
	s.active = tab.ID

	ready := false
	if src := s.cachedDocumentLocked(ref.DocumentID); src != nil {
		st := src.Clone()
		st.TabID = tab.ID
		st.Selection = ""
		st.Focus = Focus{NodeID: ref.NodeID}
		s.cache[tab.ID] = &st
		ready = true
	}
	s.mu.Unlock()

	if !ready {
		s.load(ctx, tab)
	}
	s.persist()
	return tab, ready
}

func (s *TabStore) cachedDocumentLocked(docID string) *TabState {
	for _, t := range s.tabs {
		if t.Ref.DocumentID != docID {
			continue
		}
		if st, ok := s.cache[t.ID]; ok && st.Document != nil {
			return st
		}
	}
	return nil
}

// load fetches the tab's document in the background. Concurrent loads of one
// document share a single fetch.
func (s *TabStore) load(ctx context.Context, tab Tab) {
	if s.loader == nil {
		return
	}
	s.loads.Add(1)
	go func() {
		defer s.loads.Done()
		v, err, _ := s.group.Do(tab.Ref.DocumentID, func() (interface{}, error) {
			return s.loader(ctx, tab.Ref)
		})
		loaded, _ := v.(*graph.Document)
		if err == nil && loaded == nil {
			err = fmt.Errorf("document %s: %w", tab.Ref.DocumentID, graph.ErrNotFound)
		}

		var st TabState
		if err == nil {
			doc := loaded.Clone()
			st = TabState{
				TabID:    tab.ID,
				Document: &doc,
				Nodes:    graph.CloneNodes(doc.Nodes),
				Focus:    Focus{NodeID: tab.Ref.NodeID},
			}
			s.mu.Lock()
			_, open := s.tabIndexLocked(tab.ID)
			if open {
				if _, cached := s.cache[tab.ID]; !cached {
					s.cache[tab.ID] = &st
				}
			}
			s.mu.Unlock()
			if !open {
				return
			}
			s.persist()
		} else {
			s.log.WithError(err).WithField("tab_id", tab.ID).Warn("tab load failed")
		}
		if s.onLoaded != nil {
			s.onLoaded(tab.ID, st, err)
		}
	}()
}

// Wait blocks until in-flight loads have finished.
func (s *TabStore) Wait() {
	s.loads.Wait()
}

// SwitchTab stores from (the leaving tab's live state) in the cache and
// activates toID. Returns toID's cached state, or ready=false while it loads.
func (s *TabStore) SwitchTab(ctx context.Context, from *TabState, toID string) (TabState, bool, error) {
	s.mu.Lock()
	i, ok := s.tabIndexLocked(toID)
	if !ok {
		s.mu.Unlock()
		return TabState{}, false, fmt.Errorf("switch to %s: %w", toID, ErrNoTab)
	}
	tab := s.tabs[i]
	if from != nil {
		if _, open := s.tabIndexLocked(from.TabID); open {
			st := from.Clone()
			s.cache[from.TabID] = &st
		}
	}
	s.active = toID
	st, cached := s.cache[toID]
	var out TabState
	if cached {
		out = st.Clone()
	}
	s.mu.Unlock()

	if !cached {
		s.load(ctx, tab)
	}
	s.persist()
	return out, cached, nil
}

// UpdateState applies fn to the cached state of tabID (creating it if
// absent) and persists the session.
func (s *TabStore) UpdateState(tabID string, fn func(*TabState)) error {
	s.mu.Lock()
	if _, ok := s.tabIndexLocked(tabID); !ok {
		s.mu.Unlock()
		return fmt.Errorf("update %s: %w", tabID, ErrNoTab)
	}
	st, ok := s.cache[tabID]
	if !ok {
		st = &TabState{TabID: tabID}
		s.cache[tabID] = st
	}
	fn(st)
	st.TabID = tabID
	s.mu.Unlock()
	s.persist()
	return nil
}

// CloseTab closes id and evicts its cache. If it was active, the tab to its
// left becomes active, else the first remaining tab. Returns the new active
// tab id ("" when none remain).
func (s *TabStore) CloseTab(id string) (string, error) {
	s.mu.Lock()
	i, ok := s.tabIndexLocked(id)
	if !ok {
		s.mu.Unlock()
		return "", fmt.Errorf("close %s: %w", id, ErrNoTab)
	}
	s.tabs = append(s.tabs[:i:i], s.tabs[i+1:]...)
	delete(s.cache, id)
	if s.active == id {
		switch {
		case len(s.tabs) == 0:
			s.active = ""
		case i > 0:
			s.active = s.tabs[i-1].ID
		default:
			s.active = s.tabs[0].ID
		}
	}
	active := s.active
	s.mu.Unlock()
	s.persist()
	return active, nil
}

func (s *TabStore) tabIndexLocked(id string) (int, bool) {
	for i, t := range s.tabs {
		if t.ID == id {
			return i, true
		}
	}
	return -1, false
}

// PersistSession serializes the whole session into durable storage.
func (s *TabStore) PersistSession() error {
	s.mu.Lock()
	b := blob{
		Tabs:        append([]Tab{}, s.tabs...),
		ActiveTabID: s.active,
		PerTabState: make([]TabState, 0, len(s.cache)),
	}
	for _, t := range s.tabs {
		if st, ok := s.cache[t.ID]; ok {
			b.PerTabState = append(b.PerTabState, *st)
		}
	}
	data, err := json.Marshal(b)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.durable.Save(s.key, data); err != nil {
		return fmt.Errorf("persist session: %w", err)
	}
	return nil
}

// persist saves the session; failures are logged and otherwise ignored.
func (s *TabStore) persist() {
	if err := s.PersistSession(); err != nil {
		s.log.WithError(err).Warn("session not persisted")
	}
}

// RestoreSession replaces the in-memory session with the durable one.
// Returns false, leaving the store untouched, when nothing usable is stored.
func (s *TabStore) RestoreSession() bool {
	data, err := s.durable.Load(s.key)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			s.log.WithError(err).Debug("session restore failed")
		}
		return false
	}
	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		s.log.WithError(err).Debug("stored session is corrupt")
		return false
	}
	if len(b.Tabs) == 0 {
		return false
	}

	cache := make(map[string]*TabState, len(b.PerTabState))
	ids := make(map[string]bool, len(b.Tabs))
	for _, t := range b.Tabs {
		ids[t.ID] = true
	}
	for i := range b.PerTabState {
		st := b.PerTabState[i]
		if ids[st.TabID] {
			cache[st.TabID] = &st
		}
	}
	active := b.ActiveTabID
	if !ids[active] {
		active = b.Tabs[0].ID
	}

	s.mu.Lock()
	s.tabs = b.Tabs
	s.active = active
	s.cache = cache
	s.mu.Unlock()
	s.log.WithField("tabs", len(b.Tabs)).Debug("session restored")
	return true
}
