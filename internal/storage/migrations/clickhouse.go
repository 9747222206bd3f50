package migrations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	chstore "fuel-price-watch/internal/storage/clickhouse"
)

var errUnterminatedLiteral = errors.New("unterminated string literal")

// RunClickhouseMigrations creates the DSN's database if needed and applies the
// embedded history schema. The returned connection targets that database.
func RunClickhouseMigrations(ctx context.Context, dsn string, log logrus.FieldLogger) (*chstore.Conn, error) {
	db, err := targetDatabase(dsn)
	if err != nil {
		return nil, err
	}
	if err := ensureDatabase(ctx, dsn, db); err != nil {
		return nil, err
	}

	list, err := scripts(ClickhouseFS, "clickhouse")
	if err != nil {
		return nil, fmt.Errorf("load clickhouse migrations: %w", err)
	}

	conn, err := chstore.NewConnWithDatabase(ctx, dsn, db)
	if err != nil {
		return nil, fmt.Errorf("connect clickhouse database %s: %w", db, err)
	}

	for _, s := range list {
		stmts, err := statements(s.sql)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("parse migration %s: %w", s.name, err)
		}
		// The native protocol runs one statement per Exec.
		for _, stmt := range stmts {
			if err := conn.Exec(ctx, stmt); err != nil {
				conn.Close()
				return nil, fmt.Errorf("apply migration %s: %w", s.name, err)
			}
		}
		log.WithFields(logrus.Fields{"file": s.name, "statements": len(stmts)}).Info("applied clickhouse migration")
	}
	return conn, nil
}

func ensureDatabase(ctx context.Context, dsn, db string) error {
	admin, err := chstore.NewConnWithDatabase(ctx, dsn, "")
	if err != nil {
		return fmt.Errorf("connect clickhouse server: %w", err)
	}
	defer admin.Close()

	if err := admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS `"+db+"`"); err != nil {
		return fmt.Errorf("create database %s: %w", db, err)
	}
	return nil
}

// statements splits a script on semicolons outside single-quoted literals.
// Line comments are dropped. A doubled quote inside a literal is an escape.
func statements(sql string) ([]string, error) {
	var (
		out     []string
		cur     strings.Builder
		inQuote bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(cur.String()); stmt != "" {
			out = append(out, stmt)
		}
		cur.Reset()
	}

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case inQuote:
			cur.WriteByte(c)
			if c != '\'' {
				continue
			}
			if i+1 < len(sql) && sql[i+1] == '\'' {
				cur.WriteByte('\'')
				i++
				continue
			}
			inQuote = false
		case c == '\'':
			inQuote = true
			cur.WriteByte(c)
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			cur.WriteByte('\n')
		case c == ';':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	if inQuote {
		return nil, errUnterminatedLiteral
	}
	flush()
	return out, nil
}

// targetDatabase returns the database named in the DSN path.
func targetDatabase(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse clickhouse dsn: %w", err)
	}
	db := strings.Trim(u.Path, "/")
	if db == "" {
		return "", errors.New("clickhouse dsn has no database")
	}
	if strings.ContainsAny(db, "`/ ") {
		return "", fmt.Errorf("invalid clickhouse database name %q", db)
	}
	return db, nil
}
