// Package testhelpers runs the account store against a throwaway postgres
// container for integration tests.
package testhelpers

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-accounts/pkg/database"
	"github.com/ekaya-inc/ekaya-accounts/pkg/retry"
)

const (
	PostgresImage = "postgres:16-alpine"
	testDatabase  = "ekaya_accounts_test"
)

// appTables lists every migrated table, children before parents.
var appTables = []string{"interactions", "external_facts", "plans", "question_templates", "accounts"}

// TestDB is one migrated database shared by every test in the package run.
type TestDB struct {
	Container *postgres.PostgresContainer
	DB        *database.DB
	ConnStr   string
}

var (
	shared     *TestDB
	sharedErr  error
	sharedOnce sync.Once
)

// GetTestDB starts the container on first use. Tests are skipped under -short.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test needs Docker; skipped in short mode")
	}

	sharedOnce.Do(func() {
		shared, sharedErr = startTestDB(context.Background())
	})
	if sharedErr != nil {
		t.Fatalf("test database unavailable: %v", sharedErr)
	}
	return shared
}

func startTestDB(ctx context.Context) (*TestDB, error) {
	container, err := postgres.Run(ctx, PostgresImage,
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername("ekaya"),
		postgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("container connection string: %w", err)
	}

	startup := retry.Policy{Attempts: 10, Base: 200 * time.Millisecond, Cap: 2 * time.Second, Factor: 2}
	db, err := database.NewConnection(ctx, connStr, database.PoolOptions{MaxConns: 8, Startup: &startup}, zap.NewNop())
	if err != nil {
		return nil, err
	}

	sqlDB, err := database.OpenSQL(connStr)
	if err != nil {
		return nil, fmt.Errorf("open migration handle: %w", err)
	}
	defer sqlDB.Close()

	if err := database.RunMigrations(sqlDB, zap.NewNop()); err != nil {
		return nil, fmt.Errorf("migrate test database: %w", err)
	}

	return &TestDB{Container: container, DB: db, ConnStr: connStr}, nil
}

// ScopedContext holds one pooled connection for the rest of the test, the way
// the scope middleware does for a request.
func (tdb *TestDB) ScopedContext(t *testing.T) context.Context {
	t.Helper()

	ctx := context.Background()
	scope, err := tdb.DB.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	t.Cleanup(scope.Close)
	return database.SetScope(ctx, scope)
}

// Truncate empties every application table.
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	for _, table := range appTables {
		if _, err := tdb.DB.Exec(context.Background(), "TRUNCATE "+table+" CASCADE"); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}

// SeedAccount inserts a minimal account row and returns its id.
func (tdb *TestDB) SeedAccount(t *testing.T, name, industry string) uuid.UUID {
	t.Helper()

	var id uuid.UUID
	err := tdb.DB.QueryRow(context.Background(),
		`INSERT INTO accounts (company_name, industry, country) VALUES ($1, $2, 'US') RETURNING id`,
		name, industry).Scan(&id)
	if err != nil {
		t.Fatalf("seed account %q: %v", name, err)
	}
	return id
}
