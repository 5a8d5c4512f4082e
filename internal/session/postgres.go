package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresStore reads sessions written by the login service into a
// connect-pg-simple style table (sid, sess json, expire).
type PostgresStore struct {
	db      *sql.DB
	cookie  CookieConfig
	query   string
	timeout time.Duration
}

func NewPostgresStore(db *sql.DB, table string, cookie CookieConfig, timeout time.Duration) (*PostgresStore, error) {
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid session table name %q", table)
	}
	return &PostgresStore{
		db:      db,
		cookie:  cookie,
		query:   fmt.Sprintf("SELECT sess FROM %s WHERE sid = $1 AND expire > NOW()", table),
		timeout: timeout,
	}, nil
}

func (p *PostgresStore) Authorize(r *http.Request) (Identity, error) {
	sid, ok := p.cookie.SessionID(r)
	if !ok {
		return Identity{}, ErrNoSession
	}

	ctx := r.Context()
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	var doc []byte
	err := p.db.QueryRowContext(ctx, p.query, sid).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNoSession
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup session: %w", err)
	}

	subject, err := subjectFromDocument(doc)
	if err != nil {
		return Identity{}, err
	}
	return Identity{SubjectID: subject}, nil
}

var _ Authorizer = (*PostgresStore)(nil)
