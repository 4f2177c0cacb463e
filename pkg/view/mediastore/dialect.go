package mediastore

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"    // SQLite driver
)

// Driver names a database/sql driver the store can run on.
type Driver string

const (
	SQLite   Driver = "sqlite3"
	Postgres Driver = "postgres"
	MySQL    Driver = "mysql"
)

// ParseDriver maps a provider name to a Driver.
func ParseDriver(provider string) (Driver, error) {
	switch strings.ToLower(provider) {
	case "", "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return "", fmt.Errorf("unsupported media database provider: %s", provider)
	}
}

type dialect struct {
	schema []string
	// returningID appends RETURNING id to inserts; drivers without
	// LastInsertId need it.
	returningID bool
	numbered    bool // $1, $2 placeholders instead of ?
}

func dialectFor(d Driver) dialect {
	switch d {
	case Postgres:
		return dialect{
			schema: []string{
				`CREATE TABLE IF NOT EXISTS media (
					id BIGSERIAL PRIMARY KEY,
					media_type TEXT NOT NULL,
					display_name TEXT NOT NULL,
					relative_path TEXT NOT NULL,
					mime_type TEXT NOT NULL DEFAULT '',
					size BIGINT NOT NULL DEFAULT 0,
					data BYTEA,
					date_added BIGINT NOT NULL,
					date_modified BIGINT NOT NULL,
					owner TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX IF NOT EXISTS media_location ON media (media_type, relative_path, display_name)`,
			},
			returningID: true,
			numbered:    true,
		}
	case MySQL:
		return dialect{
			schema: []string{
				`CREATE TABLE IF NOT EXISTS media (
					id BIGINT AUTO_INCREMENT PRIMARY KEY,
					media_type VARCHAR(32) NOT NULL,
					display_name VARCHAR(255) NOT NULL,
					relative_path VARCHAR(1024) NOT NULL,
					mime_type VARCHAR(255) NOT NULL DEFAULT '',
					size BIGINT NOT NULL DEFAULT 0,
					data LONGBLOB,
					date_added BIGINT NOT NULL,
					date_modified BIGINT NOT NULL,
					owner VARCHAR(255) NOT NULL DEFAULT ''
				)`,
			},
		}
	default:
		return dialect{
			schema: []string{
				`CREATE TABLE IF NOT EXISTS media (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					media_type TEXT NOT NULL,
					display_name TEXT NOT NULL,
					relative_path TEXT NOT NULL,
					mime_type TEXT NOT NULL DEFAULT '',
					size INTEGER NOT NULL DEFAULT 0,
					data BLOB,
					date_added INTEGER NOT NULL,
					date_modified INTEGER NOT NULL,
					owner TEXT NOT NULL DEFAULT ''
				)`,
				`CREATE INDEX IF NOT EXISTS media_location ON media (media_type, relative_path, display_name)`,
			},
		}
	}
}

// rebind rewrites ? placeholders for drivers that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r != '?' {
			b.WriteRune(r)
			continue
		}
		n++
		b.WriteString("$" + strconv.Itoa(n))
	}

	return b.String()
}

// likeEscape is the LIKE escape character. It is not a backslash because
// MySQL treats backslashes in string literals as escapes.
const likeEscape = '!'

// escapeLike quotes LIKE wildcards in s.
func escapeLike(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '%' || r == '_' || r == likeEscape {
			b.WriteRune(likeEscape)
		}
		b.WriteRune(r)
	}

	return b.String()
}
