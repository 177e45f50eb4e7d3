package convar

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store persists archived variables.
type Store interface {
	Load(ctx context.Context, name string) (value string, ok bool, err error)
	Save(ctx context.Context, name, value string) error
}

// StoredValue is a value seen in the store.
type StoredValue struct {
	Name     string
	Value    string
	Revision int64 // store revision of the write; zero when unknown
}

// Table is the set of variables known to the server, keyed by lower-cased
// name. Archived variables are loaded from and saved to the store.
type Table struct {
	vars    map[string]*Var
	store   Store
	timeout time.Duration
	logger  *zap.Logger
}

// NewTable returns an empty table. store and logger may be nil.
func NewTable(store Store, logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{
		vars:    make(map[string]*Var),
		store:   store,
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

// SetStoreTimeout bounds each store call.
func (t *Table) SetStoreTimeout(d time.Duration) {
	t.timeout = d
}

// Create returns the variable called name, creating it with def and flags if
// it does not exist yet. An existing variable gains the extra flags. A newly
// archived variable takes its stored value when the store has one.
func (t *Table) Create(name, def string, flags Flag) *Var {
	key := strings.ToLower(name)
	v, ok := t.vars[key]
	if !ok {
		v = newVar(name, def, 0)
		t.vars[key] = v
	}
	added := flags &^ v.flags
	v.flags |= flags
	if t.store != nil && added&FlagArchive != 0 {
		t.load(v)
		v.OnChange(t.save)
	}
	return v
}

// Find looks a variable up by name, ignoring case.
func (t *Table) Find(name string) (*Var, bool) {
	v, ok := t.vars[strings.ToLower(name)]
	return v, ok
}

// Vars returns every variable ordered by name.
func (t *Table) Vars() []*Var {
	out := make([]*Var, 0, len(t.vars))
	for _, v := range t.vars {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (t *Table) load(v *Var) {
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	value, ok, err := t.store.Load(ctx, v.name)
	if err != nil {
		t.logger.Warn("load archived variable", zap.String("name", v.name), zap.Error(err))
		return
	}
	if ok {
		v.value = value
	}
}

// save runs as a change callback of archived variables.
func (t *Table) save(v *Var, _, value string, origin Origin) {
	if origin == OriginStore {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if err := t.store.Save(ctx, v.name, value); err != nil {
		t.logger.Warn("save archived variable", zap.String("name", v.name), zap.Error(err))
	}
}

// MemoryStore is a Store kept in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Load(_ context.Context, name string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[strings.ToLower(name)]
	return v, ok, nil
}

func (m *MemoryStore) Save(_ context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[strings.ToLower(name)] = value
	return nil
}
