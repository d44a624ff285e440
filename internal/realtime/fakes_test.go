package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/HammerMeetNail/oasis/internal/logging"
	"github.com/HammerMeetNail/oasis/internal/models"
	"github.com/HammerMeetNail/oasis/internal/services"
)

func quietLogger() *logging.Logger {
	return logging.New().SetOutput(&bytes.Buffer{})
}

// fakeConn is an in-memory FrameConn. Frames pushed to inbound are returned
// by ReadFrame; everything sent is recorded.
type fakeConn struct {
	id      string
	userID  string
	inbound chan []byte

	mu      sync.Mutex
	sent    [][]byte
	closed  bool
	sendErr error
	active  time.Time
	done    chan struct{}
}

func newFakeConn(userID string) *fakeConn {
	return &fakeConn{
		id:      uuid.NewString(),
		userID:  userID,
		inbound: make(chan []byte, 16),
		active:  time.Now(),
		done:    make(chan struct{}),
	}
}

func (f *fakeConn) ID() string     { return f.id }
func (f *fakeConn) UserID() string { return f.userID }

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnectionClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.done)
	}
	return nil
}

func (f *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case data, ok := <-f.inbound:
		if !ok {
			return nil, io.EOF
		}
		return data, nil
	case <-f.done:
		return nil, ErrConnectionClosed
	}
}

func (f *fakeConn) LastActive() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// frames decodes every sent frame into a generic map.
func (f *fakeConn) frames(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.sent))
	for _, raw := range f.sent {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("sent frame is not json: %s", raw)
		}
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) framesOfType(t *testing.T, typ string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range f.frames(t) {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

// memoryStore backs every engine dependency with maps.
type memoryStore struct {
	mu        sync.Mutex
	users     map[string]*models.User
	friends   map[string]map[string]bool
	locations map[string]*models.LocationRecord
	upsertErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:     make(map[string]*models.User),
		friends:   make(map[string]map[string]bool),
		locations: make(map[string]*models.LocationRecord),
	}
}

func (m *memoryStore) addUser(id, name string, level models.PrivacyLevel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = &models.User{ID: id, Name: name, PrivacyLevel: level}
}

func (m *memoryStore) befriend(a, b string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		if m.friends[pair[0]] == nil {
			m.friends[pair[0]] = make(map[string]bool)
		}
		m.friends[pair[0]][pair[1]] = true
	}
}

func (m *memoryStore) setLocation(id string, lat, lon float64, city, country string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[id] = &models.LocationRecord{
		UserID: id, Latitude: lat, Longitude: lon,
		City: &city, Country: &country, UpdatedAt: time.Now(),
	}
}

func (m *memoryStore) UpsertLocation(ctx context.Context, userID string, update models.LocationUpdate) (*models.LocationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return nil, m.upsertErr
	}
	if _, ok := m.users[userID]; !ok {
		return nil, services.ErrUserNotFound
	}
	rec := &models.LocationRecord{UserID: userID, Latitude: update.Latitude, Longitude: update.Longitude, UpdatedAt: time.Now()}
	if update.City != "" {
		c := update.City
		rec.City = &c
	}
	if update.Country != "" {
		c := update.Country
		rec.Country = &c
	}
	m.locations[userID] = rec
	copied := *rec
	return &copied, nil
}

func (m *memoryStore) GetLocation(ctx context.Context, userID string) (*models.LocationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.locations[userID]; ok {
		copied := *rec
		return &copied, nil
	}
	return nil, services.ErrLocationNotFound
}

func (m *memoryStore) GetFriendIDs(ctx context.Context, userID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.friends[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *memoryStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, services.ErrUserNotFound
}

func (m *memoryStore) UpdatePrivacyLevel(ctx context.Context, id string, level models.PrivacyLevel) (models.PrivacyLevel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return "", services.ErrUserNotFound
	}
	prev := u.PrivacyLevel
	u.PrivacyLevel = level
	return prev, nil
}

func (m *memoryStore) ListFriendLocations(ctx context.Context, userID string) ([]models.FriendLocation, error) {
	ids, _ := m.GetFriendIDs(ctx, userID)
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.FriendLocation, 0, len(ids))
	for _, id := range ids {
		fl := models.FriendLocation{User: *m.users[id]}
		if rec, ok := m.locations[id]; ok {
			copied := *rec
			fl.Location = &copied
		}
		out = append(out, fl)
	}
	return out, nil
}

// inlinePool runs submitted tasks synchronously.
type inlinePool struct {
	mu    sync.Mutex
	tasks int
	full  bool
}

func (p *inlinePool) TrySubmit(task Task) bool {
	p.mu.Lock()
	if p.full {
		p.mu.Unlock()
		return false
	}
	p.tasks++
	p.mu.Unlock()
	task()
	return true
}

type recordingProximity struct {
	mu     sync.Mutex
	checks []services.ProximityCheck
}

func (r *recordingProximity) Check(ctx context.Context, check services.ProximityCheck) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks = append(r.checks, check)
	return 0
}

type testRig struct {
	store     *memoryStore
	registry  *Registry
	engine    *Engine
	proximity *recordingProximity
}

func newTestRig() *testRig {
	store := newMemoryStore()
	registry := NewRegistry(quietLogger())
	proximity := &recordingProximity{}
	engine := NewEngine(EngineDeps{
		Locations: store,
		Friends:   store,
		Users:     store,
		Snapshots: store,
		Registry:  registry,
		Proximity: proximity,
		Pool:      &inlinePool{},
		Logger:    quietLogger(),
	})
	return &testRig{store: store, registry: registry, engine: engine, proximity: proximity}
}

// connect opens a session for userID over a fake connection.
func (r *testRig) connect(t *testing.T, userID string) (*Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn(userID)
	s := NewSession(userID, conn, r.registry, r.engine, quietLogger())
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open session for %s: %v", userID, err)
	}
	return s, conn
}
