//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/protype-ai/protype/internal/log"
	"github.com/protype-ai/protype/internal/store"
)

// startPostgres runs a disposable PostgreSQL container and returns a
// migrated store bound to it.
func startPostgres(t *testing.T) (*store.DB, *store.Store) {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("protype_test"),
		postgres.WithUsername("protype_test"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("starting postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := store.OpenPostgres(connStr)
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := store.Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	s, err := store.New(db, log.NewNop())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	return db, s
}

func TestPostgresRoundTrip(t *testing.T) {
	_, s := startPostgres(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, "What is gravity?", "An attractive force.", 0.5, "user", "test"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := s.Upsert(ctx, "what is GRAVITY?", "Curvature of spacetime.", 0.7, "gemini_flash_direct", "test"); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}

	got, err := s.Get(ctx, "What is gravity?")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Answer != "Curvature of spacetime." {
		t.Errorf("answer = %q, want the updated one", got.Answer)
	}
	if got.Weight != 0.7 {
		t.Errorf("weight = %v, want 0.7", got.Weight)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 after normalized upserts", count)
	}
}

func TestPostgresUpsertPreservesCreated(t *testing.T) {
	_, s := startPostgres(t)
	ctx := context.Background()

	if err := s.Upsert(ctx, "What is light?", "Radiation.", 0.5, "user", "alice"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	first, err := s.Get(ctx, "What is light?")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if err := s.Upsert(ctx, "What is light?", "Electromagnetic radiation.", 0.6, "wikipedia", "bob"); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	second, err := s.Get(ctx, "What is light?")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed on update: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
	if second.CreatedBy != "alice" {
		t.Errorf("created_by = %q, want original actor", second.CreatedBy)
	}
	if second.ModifiedBy != "bob" {
		t.Errorf("modified_by = %q", second.ModifiedBy)
	}
}

func TestPostgresScan(t *testing.T) {
	_, s := startPostgres(t)
	ctx := context.Background()

	seed := map[string]string{
		"What is gravity?":        "A force.",
		"What is gravity on Mars": "Weaker than on Earth.",
		"What is light?":          "Radiation.",
	}
	for q, a := range seed {
		if err := s.Upsert(ctx, q, a, 0.5, "user", "test"); err != nil {
			t.Fatalf("Upsert(%q): %v", q, err)
		}
	}

	hits, err := s.Scan(ctx, "gravity", 10)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(hits) != 2 {
		t.Errorf("scan hits = %d, want 2", len(hits))
	}
}

func TestPostgresDialectRebind(t *testing.T) {
	db, _ := startPostgres(t)

	if db.Dialect() != store.DialectPostgres {
		t.Fatalf("dialect = %v", db.Dialect())
	}
	got := db.Rebind("SELECT * FROM knowledge WHERE question = ? AND weight > ?")
	want := "SELECT * FROM knowledge WHERE question = $1 AND weight > $2"
	if got != want {
		t.Errorf("Rebind = %q, want %q", got, want)
	}
}
