package storage

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Driver names a supported SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverMySQL    Driver = "mysql"
)

// dialect holds the per-backend SQL differences.
type dialect struct {
	driver    Driver
	sqlName   string
	keyType   string
	shortText string
	longText  string
	timeType  string
}

func dialectFor(d Driver) (dialect, error) {
	switch Driver(strings.ToLower(string(d))) {
	case DriverSQLite, "":
		return dialect{DriverSQLite, "sqlite", "TEXT", "TEXT", "TEXT", "DATETIME"}, nil
	case DriverPostgres, "postgresql":
		return dialect{DriverPostgres, "postgres", "TEXT", "TEXT", "TEXT", "TIMESTAMPTZ"}, nil
	case DriverMySQL:
		return dialect{DriverMySQL, "mysql", "VARCHAR(64)", "VARCHAR(1024)", "LONGTEXT", "DATETIME(6)"}, nil
	}
	return dialect{}, fmt.Errorf("unsupported driver: %s", d)
}

// rebind rewrites ? placeholders to $n for Postgres.
func (d dialect) rebind(q string) string {
	if d.driver != DriverPostgres {
		return q
	}
	var sb strings.Builder
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteByte(q[i])
	}
	return sb.String()
}

func (d dialect) createIndex(name, table, cols string) string {
	if d.driver == DriverMySQL {
		return fmt.Sprintf("CREATE INDEX %s ON %s(%s)", name, table, cols)
	}
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", name, table, cols)
}

// upsert builds an insert that overwrites updateCols when key already exists.
func (d dialect) upsert(table, key string, cols, updateCols []string) string {
	ph := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), ph)
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		if d.driver == DriverMySQL {
			sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
		} else {
			sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
		}
	}
	if d.driver == DriverMySQL {
		return q + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	return q + fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET ", key) + strings.Join(sets, ", ")
}
