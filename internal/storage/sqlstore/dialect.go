package sqlstore

import (
	"strconv"
	"strings"
)

type dialect interface {
	name() string
	rebind(query string) string
	forUpdate() string
	schema() []string
}

type mysqlDialect struct{}

func (mysqlDialect) name() string               { return "mysql" }
func (mysqlDialect) rebind(query string) string { return query }
func (mysqlDialect) forUpdate() string          { return " FOR UPDATE" }
func (mysqlDialect) schema() []string           { return schemaMySQL }

type postgresDialect struct{}

func (postgresDialect) name() string               { return "postgres" }
func (postgresDialect) rebind(query string) string { return rebindDollar(query) }
func (postgresDialect) forUpdate() string          { return " FOR UPDATE" }
func (postgresDialect) schema() []string           { return schemaPostgres }

// SQLite has no row locks; the single connection serialises writers.
type sqliteDialect struct{}

func (sqliteDialect) name() string               { return "sqlite" }
func (sqliteDialect) rebind(query string) string { return query }
func (sqliteDialect) forUpdate() string          { return "" }
func (sqliteDialect) schema() []string           { return schemaSQLite }

// rebindDollar rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func rebindDollar(query string) string {
	n := 0
	var b strings.Builder
	b.Grow(len(query) + 8)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		} else {
			b.WriteByte(query[i])
		}
	}
	return b.String()
}
