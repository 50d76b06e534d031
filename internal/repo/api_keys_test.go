package repo

import (
	"context"
	"errors"
	"testing"

	"concierge/internal/db"
	"concierge/internal/domain"
	"concierge/internal/migrate"
)

func newTestRepo(t *testing.T) Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return Repo{DB: conn}
}

func TestAPIKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	keys := []domain.APIKey{
		{ID: "k1", ActorID: "front-desk", Name: "lobby tablet", KeyHash: HashAPIKey("ck_one"), CreatedAt: "2026-01-01T10:00:00Z"},
		{ID: "k2", ActorID: "front-desk", KeyHash: HashAPIKey("ck_two"), CreatedAt: "2026-01-02T10:00:00Z"},
		{ID: "k3", ActorID: "night-audit", KeyHash: HashAPIKey("ck_three")},
	}
	for _, k := range keys {
		if err := r.InsertAPIKey(ctx, nil, k); err != nil {
			t.Fatalf("insert %s: %v", k.ID, err)
		}
	}

	got, err := r.GetAPIKeyByHash(ctx, HashAPIKey("  ck_one "))
	if err != nil || got.ActorID != "front-desk" || got.Name != "lobby tablet" {
		t.Fatalf("lookup: %+v %v", got, err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, HashAPIKey("ck_unknown")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	desk, err := r.ListAPIKeys(ctx, "front-desk")
	if err != nil || len(desk) != 2 || desk[0].ID != "k2" {
		t.Fatalf("list front-desk: %+v %v", desk, err)
	}
	all, err := r.ListAPIKeys(ctx, "")
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %+v %v", all, err)
	}

	if err := r.DeleteAPIKey(ctx, "k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := r.DeleteAPIKey(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
	if _, err := r.GetAPIKeyByHash(ctx, HashAPIKey("ck_one")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoked key still resolves: %v", err)
	}
}

func TestInsertAPIKeyValidates(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)
	cases := map[string]domain.APIKey{
		"no id":      {ActorID: "a", KeyHash: HashAPIKey("x")},
		"no actor":   {ID: "k", KeyHash: HashAPIKey("x")},
		"plain text": {ID: "k", ActorID: "a", KeyHash: "ck_plaintext"},
	}
	for name, k := range cases {
		if err := r.InsertAPIKey(ctx, nil, k); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	ok := domain.APIKey{ID: "k", ActorID: "a", KeyHash: HashAPIKey("x")}
	if err := r.InsertAPIKey(ctx, nil, ok); err != nil {
		t.Fatalf("insert: %v", err)
	}
	dup := domain.APIKey{ID: "k2", ActorID: "a", KeyHash: HashAPIKey("x")}
	if err := r.InsertAPIKey(ctx, nil, dup); err == nil {
		t.Fatalf("duplicate hash accepted")
	}
}
