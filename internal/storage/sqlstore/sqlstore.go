package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"

	"fabprogress/internal/config"
	"fabprogress/internal/storage"
)

// Storage persists the progress engine's records in MySQL, PostgreSQL or SQLite.
// Every method runs inside the transaction carried by ctx when there is one.
type Storage struct {
	db      *sql.DB
	dialect dialect
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type txKey struct{}

func New(cfg config.Database) (*Storage, error) {
	const op = "storage.sqlstore.New"

	var (
		db  *sql.DB
		d   dialect
		err error
	)

	switch strings.ToLower(cfg.Driver) {
	case "mysql":
		db, err = sql.Open("mysql", mysqlDSN(cfg))
		d = mysqlDialect{}
	case "postgres", "pgx":
		db, err = sql.Open("pgx", postgresDSN(cfg))
		d = postgresDialect{}
	case "sqlite":
		return OpenSQLite(cfg.Path)
	default:
		return nil, fmt.Errorf("%s: unsupported database driver %q", op, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	s := &Storage{db: db, dialect: d}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

const (
	defaultMySQLPort    = 3306
	defaultPostgresPort = 5432
)

func portOr(port, def int) int {
	if port == 0 {
		return def
	}
	return port
}

func mysqlDSN(cfg config.Database) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = fmt.Sprintf("%s:%d", cfg.Host, portOr(cfg.Port, defaultMySQLPort))
	mc.DBName = cfg.Name
	mc.ParseTime = cfg.ParseTime
	mc.Loc = time.UTC
	mc.ClientFoundRows = true
	return mc.FormatDSN()
}

func postgresDSN(cfg config.Database) string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		cfg.Host, portOr(cfg.Port, defaultPostgresPort), cfg.Name, cfg.User, cfg.Password, cfg.SSLMode)
}

// OpenSQLite opens (and migrates) a single-file database. Writes are
// serialised through one connection.
func OpenSQLite(path string) (*Storage, error) {
	const op = "storage.sqlstore.OpenSQLite"

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%s: create directory: %w", op, err)
		}
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_time_format", "sqlite")

	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	db.SetMaxOpenConns(1)

	s := &Storage{db: db, dialect: sqliteDialect{}}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Storage) migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.dialect.name(), err)
		}
	}
	return nil
}

// WithTx runs fn in a transaction. Storage calls made with the ctx passed to fn
// join the transaction; returning an error rolls it back. Nested calls reuse
// the outer transaction.
func (s *Storage) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	const op = "storage.sqlstore.WithTx"

	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, translateError(err))
	}

	return nil
}

func (s *Storage) conn(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

func (s *Storage) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := s.conn(ctx).ExecContext(ctx, s.dialect.rebind(query), args...)
	return res, translateError(err)
}

func (s *Storage) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, s.dialect.rebind(query), args...)
	return rows, translateError(err)
}

func (s *Storage) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.conn(ctx).QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// forUpdate returns the row-lock suffix when running inside a transaction.
func (s *Storage) forUpdate(ctx context.Context) string {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return s.dialect.forUpdate()
	}
	return ""
}

// casResult maps a compare-and-swap update to ErrVersionConflict when no row matched.
func casResult(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrVersionConflict
	}
	return nil
}

const (
	mysqlDuplicateEntry = 1062
	mysqlDeadlock       = 1213
	pgUniqueViolation   = "23505"
	pgSerialization     = "40001"
	pgDeadlock          = "40P01"
	sqliteConstraint    = 19
	sqliteCodeMask      = 0xff
)

// translateError maps driver errors onto the storage sentinels. Deadlocks and
// serialization failures become ErrVersionConflict so callers retry them.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if isDuplicate(err) {
		return fmt.Errorf("%w: %v", storage.ErrDuplicate, err)
	}
	if isRetryable(err) {
		return fmt.Errorf("%w: %v", storage.ErrVersionConflict, err)
	}
	return err
}

func isRetryable(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerialization || pgErr.Code == pgDeadlock
	}
	return false
}

func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code()&sqliteCodeMask == sqliteConstraint &&
			strings.Contains(liteErr.Error(), "UNIQUE")
	}
	return false
}

// notFound maps a single-row read error: no rows becomes ErrNotFound, driver
// errors go through translateError.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return translateError(err)
}

func utc(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullStep(s *storage.ManufacturingStep) any {
	if s == nil {
		return nil
	}
	return s.String()
}

// parseTime converts a scanned timestamp to time.Time. MySQL (parseTime=true)
// and pgx return time.Time, SQLite may hand back text.
func parseTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case []byte:
		return parseTime(string(t))
	case string:
		if t == "" {
			return time.Time{}
		}
		for _, layout := range []string{
			"2006-01-02 15:04:05.999999999-07:00",
			"2006-01-02 15:04:05.999999999 -0700 MST",
			"2006-01-02 15:04:05.999999999",
			time.RFC3339Nano,
			"2006-01-02 15:04:05",
		} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC()
			}
		}
	}
	return time.Time{}
}

func parseTimePtr(v any) *time.Time {
	if v == nil {
		return nil
	}
	t := parseTime(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

func parseStepPtr(v sql.NullString) (*storage.ManufacturingStep, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	s, err := storage.ParseStep(v.String)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
