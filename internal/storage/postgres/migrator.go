package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Схема чекаута (products, orders, payments, outbox, idempotency, timeline)
// накатывается парами файлов NNNN_name.up.sql / NNNN_name.down.sql.
const revisionsGlob = "sql/migrations/*.sql"

// Advisory lock: одновременно мигрирует ровно один экземпляр сервиса.
const schemaLockKey = int64(0x434b4f55)

const revisionLedgerDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

var (
	//go:embed sql/migrations/*.sql
	revisionsFS embed.FS

	revisionNamePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)
)

type applyDirection string

const (
	applyUp   applyDirection = "up"
	applyDown applyDirection = "down"
)

// revision — одна версия схемы с парой up/down скриптов.
type revision struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

// MigrateUp применяет недостающие ревизии схемы.
// steps=0 означает "применить все".
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.runMigrations(ctx, applyUp, steps)
}

// MigrateDown откатывает ревизии схемы.
// steps<=0 интерпретируется как один шаг.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.runMigrations(ctx, applyDown, steps)
}

// MigrationStatus возвращает текущую версию схемы и число применённых ревизий.
func (s *Store) MigrationStatus(ctx context.Context) (int64, int, error) {
	if s == nil || s.db == nil {
		return 0, 0, errors.New("postgres store is not initialized")
	}

	queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, revisionLedgerDDL); err != nil {
		return 0, 0, fmt.Errorf("ensure schema ledger: %w", err)
	}

	var (
		version int64
		applied int
	)
	err := s.db.QueryRowContext(queryCtx, `
		SELECT COALESCE(MAX(version), 0), COUNT(*)
		FROM schema_migrations
	`).Scan(&version, &applied)
	if err != nil {
		return 0, 0, fmt.Errorf("query schema ledger: %w", err)
	}

	return version, applied, nil
}

func (s *Store) runMigrations(ctx context.Context, direction applyDirection, steps int) error {
	if s == nil || s.db == nil {
		return errors.New("postgres store is not initialized")
	}

	revisions, err := collectRevisions(revisionsFS)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	return withSchemaLock(ctx, conn, func() error {
		if _, err := conn.ExecContext(ctx, revisionLedgerDDL); err != nil {
			return fmt.Errorf("ensure schema ledger: %w", err)
		}

		switch direction {
		case applyUp:
			return applyPending(ctx, conn, revisions, steps)
		case applyDown:
			return rollbackApplied(ctx, conn, revisions, steps)
		default:
			return fmt.Errorf("unsupported migration direction: %s", direction)
		}
	})
}

// withSchemaLock держит advisory lock на время fn. Разблокировка идёт
// через отдельный контекст: исходный ctx к этому моменту может быть отменён.
func withSchemaLock(ctx context.Context, conn *sql.Conn, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", schemaLockKey); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", schemaLockKey)
	}()

	return fn()
}

func applyPending(ctx context.Context, conn *sql.Conn, revisions []revision, steps int) error {
	applied, err := ledgerVersions(ctx, conn)
	if err != nil {
		return err
	}

	done := 0
	for _, rev := range revisions {
		if applied[rev.Version] {
			continue
		}
		if err := execRevision(ctx, conn, rev, applyUp); err != nil {
			return err
		}
		done++
		if steps > 0 && done >= steps {
			break
		}
	}

	return nil
}

func rollbackApplied(ctx context.Context, conn *sql.Conn, revisions []revision, steps int) error {
	byVersion := make(map[int64]revision, len(revisions))
	for _, rev := range revisions {
		byVersion[rev.Version] = rev
	}

	recent, err := recentVersions(ctx, conn, steps)
	if err != nil {
		return err
	}

	for _, version := range recent {
		rev, ok := byVersion[version]
		if !ok {
			return fmt.Errorf("cannot rollback unknown schema version %d", version)
		}
		if err := execRevision(ctx, conn, rev, applyDown); err != nil {
			return err
		}
	}

	return nil
}

// execRevision выполняет тело ревизии и её запись в ledger одной транзакцией.
func execRevision(ctx context.Context, conn *sql.Conn, rev revision, direction applyDirection) error {
	body := rev.Up
	ledgerStmt := `INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`
	ledgerArgs := []any{rev.Version, rev.Name}
	if direction == applyDown {
		body = rev.Down
		ledgerStmt = `DELETE FROM schema_migrations WHERE version = $1`
		ledgerArgs = []any{rev.Version}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for revision %d_%s: %w", rev.Version, rev.Name, err)
	}

	if _, err := tx.ExecContext(ctx, body); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec %s revision %d_%s: %w", direction, rev.Version, rev.Name, err)
	}
	if _, err := tx.ExecContext(ctx, ledgerStmt, ledgerArgs...); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record %s revision %d_%s: %w", direction, rev.Version, rev.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s revision %d_%s: %w", direction, rev.Version, rev.Name, err)
	}

	return nil
}

func ledgerVersions(ctx context.Context, conn *sql.Conn) (map[int64]bool, error) {
	rows, err := conn.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer rows.Close()

	versions := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied version: %w", err)
		}
		versions[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied versions: %w", err)
	}

	return versions, nil
}

// recentVersions возвращает последние применённые версии, новые первыми.
func recentVersions(ctx context.Context, conn *sql.Conn, limit int) ([]int64, error) {
	rows, err := conn.QueryContext(ctx, `
		SELECT version
		FROM schema_migrations
		ORDER BY version DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent versions: %w", err)
	}
	defer rows.Close()

	versions := make([]int64, 0, limit)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan recent version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent versions: %w", err)
	}

	return versions, nil
}

// collectRevisions собирает пары up/down из fsys и сортирует по версии.
// Ревизия без одного из файлов — ошибка конфигурации репозитория.
func collectRevisions(fsys fs.FS) ([]revision, error) {
	files, err := fs.Glob(fsys, revisionsGlob)
	if err != nil {
		return nil, fmt.Errorf("list migration files: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found")
	}

	partial := make(map[int64]*revision)
	for _, file := range files {
		base := filepath.Base(file)
		matches := revisionNamePattern.FindStringSubmatch(base)
		if len(matches) != 4 {
			return nil, fmt.Errorf("invalid migration file name: %s", base)
		}

		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse version from %s: %w", base, err)
		}
		name, direction := matches[2], matches[3]

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		rev, ok := partial[version]
		if !ok {
			rev = &revision{Version: version, Name: name}
			partial[version] = rev
		} else if rev.Name != name {
			return nil, fmt.Errorf("name mismatch for version %d: %s vs %s", version, rev.Name, name)
		}

		switch direction {
		case "up":
			if rev.Up != "" {
				return nil, fmt.Errorf("duplicate up file for version %d", version)
			}
			rev.Up = body
		case "down":
			if rev.Down != "" {
				return nil, fmt.Errorf("duplicate down file for version %d", version)
			}
			rev.Down = body
		}
	}

	revisions := make([]revision, 0, len(partial))
	for _, rev := range partial {
		if rev.Up == "" || rev.Down == "" {
			return nil, fmt.Errorf("revision %d_%s must have both up and down files", rev.Version, rev.Name)
		}
		revisions = append(revisions, *rev)
	}
	sort.Slice(revisions, func(i, j int) bool { return revisions[i].Version < revisions[j].Version })

	return revisions, nil
}
