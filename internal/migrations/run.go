// Package migrations применяет схему базы данных, встроенную в бинарник.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	pgxv5 "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed sql/*.sql
var migrationsFS embed.FS

// Run применяет все миграции к открытому соединению.
func Run(db *sql.DB) error {
	const op = "migrations.Run"
	source, err := iofs.New(migrationsFS, "sql")
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	driver, err := pgxv5.WithInstance(db, &pgxv5.Config{})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "pgx_v5", driver)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RunDSN открывает соединение по строке подключения, применяет миграции и закрывает его.
func RunDSN(dsn string) error {
	const op = "migrations.RunDSN"
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return Run(db)
}

// Files возвращает имена встроенных файлов миграций.
func Files() ([]string, error) {
	entries, err := migrationsFS.ReadDir("sql")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
