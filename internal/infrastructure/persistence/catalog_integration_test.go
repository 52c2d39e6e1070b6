package persistence_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/ilramdhan/doorcalc/internal/domain/entity"
	"github.com/ilramdhan/doorcalc/internal/infrastructure/persistence"
	"github.com/ilramdhan/doorcalc/pkg/database"
)

// setupTestDB starts PostgreSQL, applies the migrations and returns a pool
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "doorcalc_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://test:test@%s:%s/doorcalc_test?sslmode=disable", host, port.Port())

	m, err := database.NewMigrator(filepath.Join("..", "..", "..", "migrations"), dsn)
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestCatalogRepository_Postgres(t *testing.T) {
	pool := setupTestDB(t)
	ctx := context.Background()
	repo := persistence.NewCatalogRepository(pool)

	doorsID := uuid.New()
	interiorID := uuid.New()
	n, err := repo.Categories().CreateBatch(ctx, []*entity.Category{{
		ID:   doorsID,
		Name: "Двери",
		Subcategories: []*entity.Category{
			{ID: interiorID, Name: "Межкомнатные"},
		},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	now := time.Now().UTC().Truncate(time.Second)
	oak := &entity.Product{
		ID: uuid.New(), SKU: "DOOR-OAK-001", Name: "Дуб", CategoryID: interiorID,
		BasePrice: 4500, StockQuantity: 12,
		Properties: map[string]any{"material": "oak", "thickness": "40 мм"},
		Images:     []string{"oak-1.jpg", "oak-2.jpg"},
		CreatedAt:  now, UpdatedAt: now,
	}
	pine := &entity.Product{
		ID: uuid.New(), SKU: "DOOR-PIN-002", Name: "Сосна", CategoryID: interiorID,
		BasePrice: 3000, Properties: map[string]any{"material": "pine"},
		CreatedAt: now.Add(time.Minute), UpdatedAt: now,
	}
	n, err = repo.Products().CreateBatch(ctx, []*entity.Product{oak, pine})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := repo.Products().GetBySKU(ctx, "DOOR-OAK-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, oak.ID, got.ID)
	assert.Equal(t, 4500.0, got.BasePrice)
	assert.Equal(t, "oak", got.Properties["material"])
	assert.Equal(t, []string{"oak-1.jpg", "oak-2.jpg"}, got.Images)

	got, err = repo.Products().GetByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)

	priceMin := 3500.0
	list, err := repo.Products().List(ctx, entity.ProductFilter{CategoryID: &interiorID, PriceMin: &priceMin})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "DOOR-OAK-001", list[0].SKU)

	list, err = repo.Products().List(ctx, entity.ProductFilter{})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "DOOR-PIN-002", list[0].SKU, "newest first")

	stats, err := repo.Products().Stats(ctx, &interiorID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalCount)
	assert.Equal(t, 3750.0, stats.AvgPrice)
	assert.Equal(t, 7500.0, stats.TotalValue)

	stats, err = repo.Products().Stats(ctx, &doorsID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalCount)

	props, err := repo.Products().ListProperties(ctx, interiorID, 10)
	require.NoError(t, err)
	assert.Len(t, props, 2)

	categories, err := repo.Categories().List(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	assert.Equal(t, "Двери", categories[0].Name)
	require.NotNil(t, categories[1].ParentID)
	assert.Equal(t, doorsID, *categories[1].ParentID)
	assert.Equal(t, int64(2), categories[1].ProductsCount)

	count, err := repo.Products().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}
