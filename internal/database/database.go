package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aegismod/aegis/internal/database/migrations"
	"github.com/aegismod/aegis/internal/setup/config"
	"github.com/bytedance/sonic"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bunjson"
	"github.com/uptrace/bun/migrate"
	"go.uber.org/zap"
)

// Client is the surface the rest of the application sees for PostgreSQL
// access.
type Client interface {
	// Model returns the repository containing all model operations.
	Model() *Repository
	// Service returns the service containing all service operations.
	Service() *Service
	// Close gracefully shuts down the database connection.
	Close() error
	// DB returns the underlying bun.DB instance.
	DB() *bun.DB
}

type pgClient struct {
	db      *bun.DB
	logger  *zap.Logger
	repo    *Repository
	service *Service
}

// jsonProviderOnce ensures the bun JSON provider is swapped exactly once,
// even when several clients are opened in one process.
var jsonProviderOnce sync.Once //nolint:gochecknoglobals // -

// NewConnection opens a bun client over pgdriver, attaches the query hook,
// and optionally brings the schema up to date before handing the client out.
func NewConnection(
	ctx context.Context, cfg *config.PostgreSQL, logger *zap.Logger, autoMigrate bool,
) (Client, error) {
	jsonProviderOnce.Do(func() {
		bunjson.SetProvider(sonicProvider{})
	})

	db := bun.NewDB(openPool(cfg), pgdialect.New())
	db.AddQueryHook(NewHook(logger))

	if autoMigrate {
		if err := runMigrations(ctx, db, logger); err != nil {
			return nil, err
		}
	}

	repo := NewRepository(db, logger)

	logger.Info("Database connection established")

	return &pgClient{
		db:      db,
		logger:  logger,
		repo:    repo,
		service: NewService(db, repo, logger),
	}, nil
}

func openPool(cfg *config.PostgreSQL) *sql.DB {
	pool := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		pgdriver.WithUser(cfg.User),
		pgdriver.WithPassword(cfg.Password),
		pgdriver.WithDatabase(cfg.DBName),
		pgdriver.WithInsecure(true),
		pgdriver.WithApplicationName("aegis"),
	))

	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(time.Duration(cfg.MaxLifetime) * time.Minute)
	pool.SetConnMaxIdleTime(time.Duration(cfg.MaxIdleTime) * time.Minute)

	return pool
}

func runMigrations(ctx context.Context, db *bun.DB, logger *zap.Logger) error {
	migrator := migrate.NewMigrator(db, migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if !group.IsZero() {
		logger.Info("Automatically ran migrations", zap.String("group", group.String()))
	}

	return nil
}

// Model returns the repository containing all model operations.
func (c *pgClient) Model() *Repository {
	return c.repo
}

// Service returns the service containing all service operations.
func (c *pgClient) Service() *Service {
	return c.service
}

// DB returns the underlying bun.DB instance.
func (c *pgClient) DB() *bun.DB {
	return c.db
}

// Close gracefully shuts down the database connection.
func (c *pgClient) Close() error {
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close database connection", zap.Error(err))
		return err
	}

	c.logger.Info("Database connection closed")

	return nil
}

// sonicProvider routes bun's JSON marshalling through sonic so jsonb
// columns use the same codec as the queue payloads.
type sonicProvider struct{}

func (sonicProvider) Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

func (sonicProvider) Unmarshal(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

func (sonicProvider) NewEncoder(w io.Writer) bunjson.Encoder {
	return sonic.ConfigDefault.NewEncoder(w)
}

func (sonicProvider) NewDecoder(r io.Reader) bunjson.Decoder {
	return sonic.ConfigDefault.NewDecoder(r)
}
