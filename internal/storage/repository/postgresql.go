// Package repository реализует хранилище entitlement на основе PostgreSQL.
// Гарантии конкурентности обеспечиваются на уровне базы: уникальные индексы,
// условные UPDATE и upsert через ON CONFLICT.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool минимальная абстракция над пулом соединений.
// Реализуется *pgxpool.Pool и pgxmock.PgxPoolIface.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// Storage инкапсулирует пул соединений с PostgreSQL.
type Storage struct {
	pool PgxPool
}

// New создаёт пул соединений и проверяет доступность базы.
func New(ctx context.Context, dsn string) (*Storage, error) {
	const op = "storage.New"

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{pool: pool}, nil
}

// NewWithPool оборачивает готовый пул.
func NewWithPool(pool PgxPool) *Storage {
	return &Storage{pool: pool}
}

// Ping проверяет соединение с базой.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close закрывает пул.
func (s *Storage) Close() { s.pool.Close() }

// InTx выполняет fn в транзакции. Если контекст уже несёт транзакцию, fn выполняется в ней.
func (s *Storage) InTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	const op = "storage.InTx"
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = fmt.Errorf("%s: %w", op, e)
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, tx))
}

func (s *Storage) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.pool
}

// isUniqueViolation сообщает, что ошибка — нарушение уникального ограничения.
func isUniqueViolation(err error) bool {
	var pg *pgconn.PgError
	return errors.As(err, &pg) && pg.Code == pgerrcode.UniqueViolation
}
