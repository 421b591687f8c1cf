package prereq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/neurobridge-prereq/internal/data/graph"
	types "github.com/yungbote/neurobridge-prereq/internal/domain"
	"github.com/yungbote/neurobridge-prereq/internal/normalization"
	"github.com/yungbote/neurobridge-prereq/internal/pkg/dbctx"
)

// scriptedOracle decomposes from a fixed table keyed by canonical topic and
// covers from a second table keyed by prerequisite. Unknown topics have no
// prerequisites and nothing covers them.
type scriptedOracle struct {
	mu         sync.Mutex
	prereqs    map[string][]string
	covers     map[string]string
	decomposed []string
	lineages   map[string][]string
	coverCalls int
	decompErr  error
}

func newScriptedOracle(prereqs map[string][]string) *scriptedOracle {
	table := map[string][]string{}
	for k, v := range prereqs {
		table[normalization.TopicKey(k)] = v
	}
	return &scriptedOracle{prereqs: table, covers: map[string]string{}, lineages: map[string][]string{}}
}

func (o *scriptedOracle) Decompose(ctx context.Context, topic string, lineage []string) ([]string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.decompErr != nil {
		return nil, o.decompErr
	}
	key := normalization.TopicKey(topic)
	o.decomposed = append(o.decomposed, key)
	o.lineages[key] = append([]string(nil), lineage...)
	return o.prereqs[key], nil
}

func (o *scriptedOracle) FindCoverage(ctx context.Context, topic string, candidates []string) (types.Coverage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.coverCalls++
	if c, ok := o.covers[normalization.TopicKey(topic)]; ok {
		return types.CoveredBy(c), nil
	}
	return types.NotCovered(), nil
}

type plannerOracle struct {
	*scriptedOracle
	masteries []string
	err       error
}

func (p *plannerOracle) Masteries(ctx context.Context, topic string) ([]string, error) {
	return p.masteries, p.err
}

type recordingPublisher struct {
	mu      sync.Mutex
	signals []types.Signal
	err     error
}

func (r *recordingPublisher) Publish(ctx context.Context, sig types.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.signals = append(r.signals, sig)
	return nil
}

func (r *recordingPublisher) count(kind types.SignalKind, nodeID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.signals {
		if s.Kind == kind && s.NodeID == nodeID {
			n++
		}
	}
	return n
}

// memoryRecords is a map-backed NodeRecordRepo.
type memoryRecords struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*types.NodeRecord
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{rows: map[uuid.UUID]*types.NodeRecord{}}
}

func (m *memoryRecords) Create(dbc dbctx.Context, row *types.NodeRecord) (*types.NodeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.OwnerID == row.OwnerID && r.TopicKey == row.TopicKey {
			return nil, gorm.ErrDuplicatedKey
		}
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	cp := *row
	m.rows[row.ID] = &cp
	return row, nil
}

func (m *memoryRecords) GetOrCreate(dbc dbctx.Context, row *types.NodeRecord) (*types.NodeRecord, bool, error) {
	if existing, _ := m.GetByOwnerAndKey(dbc, row.OwnerID, row.TopicKey); existing != nil {
		return existing, false, nil
	}
	created, err := m.Create(dbc, row)
	return created, err == nil, err
}

func (m *memoryRecords) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.NodeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryRecords) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.NodeRecord, error) {
	var out []*types.NodeRecord
	for _, id := range ids {
		if r, _ := m.GetByID(dbc, id); r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRecords) GetByOwnerAndKey(dbc dbctx.Context, ownerID uuid.UUID, key string) (*types.NodeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.OwnerID == ownerID && r.TopicKey == key {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryRecords) GetByOwner(dbc dbctx.Context, ownerID uuid.UUID) ([]*types.NodeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.NodeRecord
	for _, r := range m.rows {
		if r.OwnerID == ownerID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryRecords) AppendStatus(dbc dbctx.Context, id uuid.UUID, snap types.StatusSnapshot) (*types.NodeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	r.LearningStatus = datatypes.NewJSONType(append(r.LearningStatus.Data(), snap))
	cp := *r
	return &cp, nil
}

func (m *memoryRecords) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

// flakyStore fails selected operations.
type flakyStore struct {
	graph.Store
	childrenErr error
	insertErr   error
	setErr      error
}

func (f *flakyStore) Children(ctx context.Context, ownerID uuid.UUID, id string) ([]types.TopicNode, error) {
	if f.childrenErr != nil {
		return nil, f.childrenErr
	}
	return f.Store.Children(ctx, ownerID, id)
}

func (f *flakyStore) InsertVertex(ctx context.Context, node types.TopicNode) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.Store.InsertVertex(ctx, node)
}

func (f *flakyStore) SetStatus(ctx context.Context, ownerID uuid.UUID, id string, status types.NodeStatus) error {
	if f.setErr != nil {
		return f.setErr
	}
	return f.Store.SetStatus(ctx, ownerID, id, status)
}

var errBoom = errors.New("boom")

// seedGraph creates a root and the given completed base topics.
func seedGraph(t *testing.T, store graph.Store, ownerID uuid.UUID, bases ...string) {
	t.Helper()
	ctx := context.Background()
	if err := store.InsertVertex(ctx, types.TopicNode{ID: types.RootKey, OwnerID: ownerID, Kind: types.KindRoot, Topic: "root", Status: types.StatusCompleted}); err != nil {
		t.Fatalf("insert root: %v", err)
	}
	for _, b := range bases {
		addNode(t, store, ownerID, b, types.StatusCompleted, types.RootKey)
	}
}

// addNode inserts a vertex keyed by its topic and links it from parents.
// Root parents get a base edge, others a prerequisite edge.
func addNode(t *testing.T, store graph.Store, ownerID uuid.UUID, topic string, status types.NodeStatus, parents ...string) string {
	t.Helper()
	ctx := context.Background()
	id := normalization.TopicKey(topic)
	kind := types.KindTopic
	for _, p := range parents {
		if p == types.RootKey {
			kind = types.KindBase
		}
	}
	if err := store.InsertVertex(ctx, types.TopicNode{ID: id, OwnerID: ownerID, Kind: kind, Topic: topic, Status: status, RecordRef: uuid.New()}); err != nil {
		t.Fatalf("insert %s: %v", id, err)
	}
	for _, p := range parents {
		label := types.EdgePrerequisite
		if p == types.RootKey {
			label = types.EdgeBase
		}
		if err := store.InsertEdge(ctx, ownerID, types.Edge{From: p, To: id, Label: label}); err != nil {
			t.Fatalf("edge %s->%s: %v", p, id, err)
		}
	}
	return id
}

func fixedNow() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
