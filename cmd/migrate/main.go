package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"

	"github.com/ignite/rtb-ingest/internal/config"
	"github.com/ignite/rtb-ingest/internal/pkg/logger"
)

func main() {
	dir := "migrations"
	cfgPath := "config/rtbimport.yaml"
	listOnly := false
	for _, a := range os.Args[1:] {
		switch {
		case a == "--list":
			listOnly = true
		case strings.HasPrefix(a, "--config="):
			cfgPath = strings.TrimPrefix(a, "--config=")
		default:
			dir = a
		}
	}

	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		fatal("load config", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	if cfg.Database.URL == "" {
		fatal("DATABASE_URL is required", nil)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		fatal("connect", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		fatal("ping", err)
	}
	logger.Info("connected to database", "database_url", cfg.Database.URL)

	if listOnly {
		tables, err := listTables(ctx, db)
		if err != nil {
			fatal("list tables", err)
		}
		for _, t := range tables {
			fmt.Println(" ", t)
		}
		fmt.Printf("Total: %d tables\n", len(tables))
		return
	}

	files, err := migrationFiles(dir)
	if err != nil {
		fatal("read migrations dir "+dir, err)
	}
	res, err := apply(ctx, db, dir, files)
	if err != nil {
		fatal("apply migrations", err)
	}
	logger.Info("migrations complete", "applied", res.applied, "skipped", res.skipped, "errors", res.failed)
	if res.failed > 0 {
		os.Exit(1)
	}
}

func fatal(msg string, err error) {
	if err != nil {
		logger.Error(msg, "error", err)
	} else {
		logger.Error(msg)
	}
	os.Exit(1)
}

// migrationFiles returns the .sql files in dir sorted by name.
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

type result struct {
	applied, skipped, failed int
}

const createLedger = `CREATE TABLE IF NOT EXISTS schema_migrations (
	filename   TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// apply runs every file not yet recorded in schema_migrations, each in its
// own transaction together with its ledger row. A failing file is reported
// and the remaining files still run.
func apply(ctx context.Context, db *sql.DB, dir string, files []string) (result, error) {
	var res result
	if _, err := db.ExecContext(ctx, createLedger); err != nil {
		return res, fmt.Errorf("create schema_migrations: %w", err)
	}
	done, err := appliedFiles(ctx, db)
	if err != nil {
		return res, err
	}

	for _, f := range files {
		if done[f] {
			res.skipped++
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			return res, fmt.Errorf("read %s: %w", f, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			res.skipped++
			continue
		}
		if err := applyOne(ctx, db, f, string(data)); err != nil {
			logger.Error("migration failed", "file", f, "error", err)
			res.failed++
			continue
		}
		logger.Info("migration applied", "file", f)
		res.applied++
	}
	return res, nil
}

func appliedFiles(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("load applied migrations: %w", err)
	}
	defer rows.Close()
	done := make(map[string]bool)
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		done[f] = true
	}
	return done, rows.Err()
}

func applyOne(ctx context.Context, db *sql.DB, name, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, content); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, name); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func listTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT tablename FROM pg_tables
		WHERE schemaname = 'public'
		  AND (tablename LIKE 'rtb_%' OR tablename IN
		       ('import_history', 'daily_upload_summary', 'account_daily_upload_summary', 'pretargeting_configs', 'schema_migrations'))
		ORDER BY tablename`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}
