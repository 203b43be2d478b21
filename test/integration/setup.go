package integration

import (
	"context"
	"testing"
	"time"

	kvpostgres "stockwatch/internal/kv/postgres"
	"stockwatch/internal/model"
	"stockwatch/internal/repository"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestDB represents a test database instance.
type TestDB struct {
	Container *postgres.PostgresContainer
	Pool      *pgxpool.Pool
	Backend   *kvpostgres.Backend
	ConnStr   string
}

// SetupTestDB creates a PostgreSQL test container, a connection pool and a
// migrated key-value backend on top of it.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	// Create PostgreSQL container
	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	// Get connection string
	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		t.Fatalf("failed to parse connection string: %v", err)
	}
	poolConfig.MaxConns = 20

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		t.Fatalf("failed to create connection pool: %v", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	backend := kvpostgres.New(pool, zerolog.Nop())
	if err := backend.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return &TestDB{
		Container: postgresContainer,
		Pool:      pool,
		Backend:   backend,
		ConnStr:   connStr,
	}
}

// SeedCatalogue inserts two categories and three products through the
// repositories and returns the products keyed by ID.
func SeedCatalogue(t *testing.T, testDB *TestDB) map[string]*model.Product {
	t.Helper()

	ctx := context.Background()
	logger := zerolog.Nop()
	categoryRepo := repository.NewCategoryRepository(testDB.Backend, logger)
	productRepo := repository.NewProductRepository(testDB.Backend, logger)
	createdAt := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

	categories := []*model.Category{
		{Name: "Hand Tools", DefaultThreshold: 5, CreatedAt: createdAt},
		{Name: "Garden", DefaultThreshold: 2, CreatedAt: createdAt},
	}
	for _, c := range categories {
		if err := categoryRepo.Create(ctx, c); err != nil {
			t.Fatalf("failed to seed category %s: %v", c.Name, err)
		}
	}

	override := int64(10)
	products := []*model.Product{
		{ID: "P001", Name: "Hammer", Price: decimal.RequireFromString("12.50"), Quantity: 20, Category: "Hand Tools", CreatedAt: createdAt},
		{ID: "P002", Name: "Trowel", Price: decimal.RequireFromString("4.99"), Quantity: 3, Category: "Garden", CreatedAt: createdAt},
		{ID: "P003", Name: "Saw", Price: decimal.RequireFromString("30.00"), Quantity: 12, Category: "Hand Tools", OverrideThreshold: &override, CreatedAt: createdAt},
	}

	seeded := make(map[string]*model.Product, len(products))
	for _, p := range products {
		if err := productRepo.Create(ctx, p); err != nil {
			t.Fatalf("failed to seed product %s: %v", p.ID, err)
		}
		seeded[p.ID] = p
	}
	return seeded
}

// CleanupDB removes every stored item.
func CleanupDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	if _, err := pool.Exec(context.Background(), "DELETE FROM kv_items"); err != nil {
		t.Logf("failed to clean kv_items: %v", err)
	}
}
