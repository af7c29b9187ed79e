package main

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ BookStorage = (*postgresBookStorage)(nil)

type postgresBookStorage struct {
	logger *zap.Logger
	pool   *pgxpool.Pool
}

// GetPostgresPool connects to postgres and checks the connection.
func GetPostgresPool(ctx context.Context, config *PostgresConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = config.ConnectTimeout
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("test connection failed: %w", err)
	}
	return pool, nil
}

// MigratePostgres applies the embedded schema migrations.
func MigratePostgres(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// NewPostgresBookStorage provides an instance of postgres-based book storage.
func NewPostgresBookStorage(logger *zap.Logger, pool *pgxpool.Pool) BookStorage {
	return &postgresBookStorage{logger: logger, pool: pool}
}

// Add inserts a new book and lets the serial column assign its id.
func (ps *postgresBookStorage) Add(ctx context.Context, book Book) (Book, error) {
	const query = `
		INSERT INTO books (title, author, is_available)
		VALUES ($1, $2, $3)
		RETURNING id`
	if err := ps.pool.QueryRow(ctx, query, book.Title, book.Author, book.IsAvailable).Scan(&book.ID); err != nil {
		return Book{}, fmt.Errorf("insert book: %w", err)
	}
	return book, nil
}

// GetOne retrieves a book record based on its ID.
func (ps *postgresBookStorage) GetOne(ctx context.Context, id int64) (Book, error) {
	const query = `SELECT id, title, author, is_available FROM books WHERE id = $1`
	var b Book
	err := ps.pool.QueryRow(ctx, query, id).Scan(&b.ID, &b.Title, &b.Author, &b.IsAvailable)
	if errors.Is(err, pgx.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("select book: %w", err)
	}
	return b, nil
}

// ToggleAvailability flips the flag in a single statement.
func (ps *postgresBookStorage) ToggleAvailability(ctx context.Context, id int64) (Book, error) {
	const query = `
		UPDATE books SET is_available = NOT is_available
		WHERE id = $1
		RETURNING id, title, author, is_available`
	var b Book
	err := ps.pool.QueryRow(ctx, query, id).Scan(&b.ID, &b.Title, &b.Author, &b.IsAvailable)
	if errors.Is(err, pgx.ErrNoRows) {
		return Book{}, ErrBookNotFound
	}
	if err != nil {
		return Book{}, fmt.Errorf("toggle book: %w", err)
	}
	return b, nil
}

// GetAll retrieves all books ordered by id.
func (ps *postgresBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	const query = `SELECT id, title, author, is_available FROM books ORDER BY id`
	rows, err := ps.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("select books: %w", err)
	}
	defer rows.Close()

	books := []Book{}
	for rows.Next() {
		var b Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.IsAvailable); err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}
