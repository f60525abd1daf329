package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/lytoranea/website/internal/backend"
)

// Schema holding the tables and procedures.
const Schema = "public"

// Backend serves tables and procedures straight from Postgres.
type Backend struct{ db *DB }

var (
	_ backend.Tables     = (*Backend)(nil)
	_ backend.Procedures = (*Backend)(nil)
)

// NewBackend constructs the direct transport.
func NewBackend(db *DB) *Backend { return &Backend{db: db} }

// Select aggregates the matching rows into one JSON array.
func (b *Backend) Select(ctx context.Context, q backend.Query) ([]byte, error) {
	sql, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}
	var out string
	if err := b.db.Pool.QueryRow(ctx, sql, args...).Scan(&out); err != nil {
		return nil, mapError(err)
	}
	return []byte(out), nil
}

// Call invokes schema.name with named arguments and returns its result as JSON.
// Void results become null; scalar non-JSON results (uuid, text) become JSON strings.
func (b *Backend) Call(ctx context.Context, name string, params backend.Params) ([]byte, error) {
	sql, args, err := buildCall(name, params)
	if err != nil {
		return nil, err
	}
	var out pgtype.Text
	if err := b.db.Pool.QueryRow(ctx, sql, args...).Scan(&out); err != nil {
		return nil, mapError(err)
	}
	return normalizeResult(out)
}

// Ping checks the connection.
func (b *Backend) Ping(ctx context.Context) error { return b.db.Pool.Ping(ctx) }

func buildSelect(q backend.Query) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	cols := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			quoted[i] = pgx.Identifier{c}.Sanitize()
		}
		cols = strings.Join(quoted, ", ")
	}

	var sb strings.Builder
	args := make([]any, 0, len(q.Filters))
	fmt.Fprintf(&sb, "SELECT %s FROM %s", cols, pgx.Identifier{Schema, q.Table}.Sanitize())
	for i, f := range q.Filters {
		if i == 0 {
			sb.WriteString(" WHERE ")
		} else {
			sb.WriteString(" AND ")
		}
		op := "="
		if f.Op == backend.Neq {
			op = "<>"
		}
		args = append(args, f.Value)
		fmt.Fprintf(&sb, "%s %s $%d", pgx.Identifier{f.Column}.Sanitize(), op, len(args))
	}
	for i, o := range q.Order {
		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(pgx.Identifier{o.Column}.Sanitize())
		if o.Desc {
			sb.WriteString(" DESC")
		} else {
			sb.WriteString(" ASC")
		}
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + strconv.Itoa(q.Limit))
	}
	return "SELECT coalesce(json_agg(t), '[]'::json)::text FROM (" + sb.String() + ") t", args, nil
}

func buildCall(name string, params backend.Params) (string, []any, error) {
	if !backend.ValidIdent(name) {
		return "", nil, fmt.Errorf("bad procedure %q", name)
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		if !backend.ValidIdent(k) {
			return "", nil, fmt.Errorf("bad parameter %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	named := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		named[i] = fmt.Sprintf("%s => $%d", k, i+1)
		args[i] = params[k]
	}
	fn := pgx.Identifier{Schema, name}.Sanitize()
	return fmt.Sprintf("SELECT (%s(%s))::text", fn, strings.Join(named, ", ")), args, nil
}

func normalizeResult(t pgtype.Text) ([]byte, error) {
	if !t.Valid || t.String == "" {
		return []byte("null"), nil
	}
	if json.Valid([]byte(t.String)) {
		return []byte(t.String), nil
	}
	return json.Marshal(t.String)
}

// mapError turns server-side errors into backend errors so callers see one shape
// regardless of transport. Statuses follow PostgREST's mapping of SQLSTATEs.
func mapError(err error) error {
	var pg *pgconn.PgError
	if errors.As(err, &pg) {
		return &backend.Error{Status: httpStatus(pg.Code), Code: pg.Code, Message: pg.Message}
	}
	return err
}

func httpStatus(sqlstate string) int {
	switch sqlstate {
	case "23505": // unique_violation
		return 409
	case "23503": // foreign_key_violation
		return 409
	case "42501": // insufficient_privilege
		return 403
	case "P0002": // no_data_found
		return 404
	case "42883": // undefined_function
		return 404
	}
	return 400
}

// Dialer serves tables and procedures from Postgres and delegates object
// storage to another dialer. Admin procedures take the token as p_token, so
// both modes share one SQL transport.
type Dialer struct {
	b       *Backend
	objects backend.Dialer
}

var _ backend.Dialer = (*Dialer)(nil)

// NewDialer composes b with the storage side of objects.
func NewDialer(b *Backend, objects backend.Dialer) *Dialer {
	return &Dialer{b: b, objects: objects}
}

// Anonymous implements backend.Dialer.
func (d *Dialer) Anonymous() backend.Backend {
	return backend.Compose(d.b, d.b, d.objects.Anonymous())
}

// WithToken implements backend.Dialer.
func (d *Dialer) WithToken(token string) backend.Backend {
	return backend.Compose(d.b, d.b, d.objects.WithToken(token))
}
