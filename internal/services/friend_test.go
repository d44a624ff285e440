package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
)

// memoryGraph answers the friendship statements against in-memory state so
// relation properties can be checked end to end.
type memoryGraph struct {
	users map[string]bool
	edges map[[2]string]bool
}

func newMemoryGraph(users ...string) *memoryGraph {
	g := &memoryGraph{users: make(map[string]bool), edges: make(map[[2]string]bool)}
	for _, u := range users {
		g.users[u] = true
	}
	return g
}

func (g *memoryGraph) queryRow(ctx context.Context, sql string, args ...any) Row {
	id := args[0].(string)
	switch {
	case strings.Contains(sql, "FOR UPDATE"):
		if !g.users[id] {
			return fakeRow{scanFunc: func(dest ...any) error { return pgx.ErrNoRows }}
		}
		return rowFromValues(id)
	case strings.Contains(sql, "EXISTS"):
		return rowFromValues(g.users[id])
	}
	return fakeRow{scanFunc: func(dest ...any) error { return errors.New("unexpected query") }}
}

func (g *memoryGraph) exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	a, b := args[0].(string), args[1].(string)
	switch {
	case strings.Contains(sql, "INSERT INTO friendships"):
		g.edges[[2]string{a, b}] = true
		g.edges[[2]string{b, a}] = true
	case strings.Contains(sql, "DELETE FROM friendships"):
		delete(g.edges, [2]string{a, b})
		delete(g.edges, [2]string{b, a})
	default:
		return nil, errors.New("unexpected exec")
	}
	return fakeCommandTag{}, nil
}

func (g *memoryGraph) db() *fakeDB {
	tx := &fakeTx{QueryRowFunc: g.queryRow, ExecFunc: g.exec}
	return &fakeDB{
		QueryRowFunc: g.queryRow,
		ExecFunc:     g.exec,
		BeginFunc:    func(ctx context.Context) (Tx, error) { return tx, nil },
		QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
			id := args[0].(string)
			var ids []string
			for edge := range g.edges {
				if edge[0] == id {
					ids = append(ids, edge[1])
				}
			}
			sort.Strings(ids)
			rows := &fakeRows{}
			for _, f := range ids {
				rows.rows = append(rows.rows, []any{f})
			}
			return rows, nil
		},
	}
}

func friendIDs(t *testing.T, svc *FriendService, id string) []string {
	t.Helper()
	ids, err := svc.GetFriendIDs(context.Background(), id)
	if err != nil {
		t.Fatalf("GetFriendIDs(%s): %v", id, err)
	}
	return ids
}

func TestFriendService_AddFriendship_Symmetric(t *testing.T) {
	g := newMemoryGraph("a", "b")
	svc := NewFriendService(g.db())

	if err := svc.AddFriendship(context.Background(), "a", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := friendIDs(t, svc, "a"); len(got) != 1 || got[0] != "b" {
		t.Fatalf("expected a->b, got %v", got)
	}
	if got := friendIDs(t, svc, "b"); len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected b->a, got %v", got)
	}
}

func TestFriendService_AddFriendship_Idempotent(t *testing.T) {
	g := newMemoryGraph("a", "b")
	svc := NewFriendService(g.db())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.AddFriendship(ctx, "a", "b"); err != nil {
			t.Fatalf("add #%d: %v", i+1, err)
		}
	}
	if len(g.edges) != 2 {
		t.Fatalf("expected exactly two directed edges, got %d", len(g.edges))
	}
}

func TestFriendService_AddFriendship_Self(t *testing.T) {
	svc := NewFriendService(&fakeDB{})
	if err := svc.AddFriendship(context.Background(), "a", "a"); !errors.Is(err, ErrCannotFriendSelf) {
		t.Fatalf("expected ErrCannotFriendSelf, got %v", err)
	}
}

func TestFriendService_AddFriendship_UnknownUsers(t *testing.T) {
	g := newMemoryGraph("a")
	svc := NewFriendService(g.db())

	if err := svc.AddFriendship(context.Background(), "a", "zed"); !errors.Is(err, ErrFriendNotFound) {
		t.Fatalf("expected ErrFriendNotFound, got %v", err)
	}
	if err := svc.AddFriendship(context.Background(), "ghost", "a"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if len(g.edges) != 0 {
		t.Fatalf("expected no edges, got %v", g.edges)
	}
}

func TestFriendService_AddFriendship_MissingLowerIDResolvesSides(t *testing.T) {
	g := newMemoryGraph("mia")
	svc := NewFriendService(g.db())
	ctx := context.Background()

	// "adam" sorts first, so its lock fails before "mia" is touched.
	if err := svc.AddFriendship(ctx, "mia", "adam"); !errors.Is(err, ErrFriendNotFound) {
		t.Fatalf("expected ErrFriendNotFound, got %v", err)
	}
	if err := svc.AddFriendship(ctx, "zed", "adam"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound when neither exists, got %v", err)
	}
}

func TestFriendService_RemoveFriendship_BothDirections(t *testing.T) {
	g := newMemoryGraph("a", "b", "c")
	svc := NewFriendService(g.db())
	ctx := context.Background()

	_ = svc.AddFriendship(ctx, "a", "b")
	_ = svc.AddFriendship(ctx, "a", "c")

	if err := svc.RemoveFriendship(ctx, "b", "a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := friendIDs(t, svc, "a"); len(got) != 1 || got[0] != "c" {
		t.Fatalf("expected only c, got %v", got)
	}
	if got := friendIDs(t, svc, "b"); len(got) != 0 {
		t.Fatalf("expected b to have no friends, got %v", got)
	}
}

func TestFriendService_RemoveFriendship_MissingEdgeIsNoop(t *testing.T) {
	g := newMemoryGraph("a", "b")
	svc := NewFriendService(g.db())
	if err := svc.RemoveFriendship(context.Background(), "a", "b"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestFriendService_GetFriendIDs_QueryError(t *testing.T) {
	db := &fakeDB{QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
		return nil, errors.New("boom")
	}}
	if _, err := NewFriendService(db).GetFriendIDs(context.Background(), "a"); err == nil {
		t.Fatal("expected error")
	}
}

func TestFriendService_GetFriendIDs_RowsError(t *testing.T) {
	rows := &fakeRows{rows: [][]any{{"b"}}, err: errors.New("stream broke")}
	db := &fakeDB{QueryFunc: func(ctx context.Context, sql string, args ...any) (Rows, error) {
		return rows, nil
	}}
	_, err := NewFriendService(db).GetFriendIDs(context.Background(), "a")
	if err == nil || !strings.Contains(err.Error(), "iterating friend ids") {
		t.Fatalf("expected iteration error, got %v", err)
	}
	if !rows.closed {
		t.Fatal("expected rows to be closed")
	}
}
