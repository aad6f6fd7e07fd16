package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Options struct {
	DSN          string
	MaxIdleConns int
	MaxOpenConns int
	Logger       zerolog.Logger
}

// Open connects to Postgres and configures the pool.
func Open(opts Options) (*gorm.DB, error) {
	pgConfig := postgres.Config{
		DSN:                  opts.DSN,
		PreferSimpleProtocol: true, // avoids prepared statement clashes behind pgbouncer
	}

	gormConfig := &gorm.Config{
		Logger: logger.New(&opts.Logger, logger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  logger.Error,
			IgnoreRecordNotFoundError: true,
		}),
		PrepareStmt:    false,
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.New(pgConfig), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database instance: %w", err)
	}

	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}

	opts.Logger.Info().Msg("database connected")
	return db, nil
}

// MigrateDatabase creates missing tables and brings existing ones up to date.
func MigrateDatabase(db *gorm.DB, log zerolog.Logger, models ...interface{}) error {
	for _, model := range models {
		if !db.Migrator().HasTable(model) {
			if err := db.Migrator().CreateTable(model); err != nil {
				return err
			}
			log.Info().Str("model", fmt.Sprintf("%T", model)).Msg("created table")
			continue
		}
		if err := db.Migrator().AutoMigrate(model); err != nil {
			return err
		}
		log.Debug().Str("model", fmt.Sprintf("%T", model)).Msg("updated table")
	}
	return nil
}

type txKey struct{}

// Conn returns the transaction bound to ctx, or db scoped to ctx when there is
// none. Repositories call it so they join a caller's transaction transparently.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}

// Transactor runs functions inside a database transaction.
type Transactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{db: db}
}

// InTx commits when fn returns nil and rolls back otherwise. Nested calls reuse
// the outer transaction.
func (t *Transactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}
