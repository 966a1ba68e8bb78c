package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-ops-api/internal/models"
)

// ErrVersionConflict is returned when a conditional write finds the row but
// its version or status no longer matches.
var ErrVersionConflict = errors.New("row changed since it was read")

// ErrDuplicate is returned when an insert hits a unique index, such as a
// repeated idempotency key.
var ErrDuplicate = errors.New("duplicate row")

func classifyInsert(err error, label string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return fmt.Errorf("%s: %w", label, ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", label, err)
}

// changePublisher emits a NOTIFY inside the writing transaction so listeners
// only hear about committed writes.
type changePublisher struct {
	channel string
}

func (p changePublisher) publish(ctx context.Context, tx *sqlx.Tx, event models.ChangeEvent) error {
	if p.channel == "" {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, p.channel, string(payload)); err != nil {
		return fmt.Errorf("notify %s change: %w", event.Collection, err)
	}
	return nil
}

// conditionalUpdate describes UPDATE ... SET <set> WHERE id = ? [AND guards]
// RETURNING <columns>. Version is bumped unless keepVersion is set.
type conditionalUpdate struct {
	table           string
	columns         string
	set             []string
	args            []interface{}
	id              string
	expectedVersion int
	keepVersion     bool
	guardColumn     string
	guardValue      interface{}
	guard           string
}

func (u conditionalUpdate) query() (string, []interface{}) {
	args := append([]interface{}{}, u.args...)
	var b strings.Builder
	fmt.Fprintf(&b, "UPDATE %s SET %s", u.table, strings.Join(u.set, ", "))
	if !u.keepVersion {
		b.WriteString(", version = version + 1")
	}
	args = append(args, u.id)
	fmt.Fprintf(&b, " WHERE id = $%d", len(args))
	if u.expectedVersion > 0 {
		args = append(args, u.expectedVersion)
		fmt.Fprintf(&b, " AND version = $%d", len(args))
	}
	if u.guardColumn != "" {
		args = append(args, u.guardValue)
		fmt.Fprintf(&b, " AND %s = $%d", u.guardColumn, len(args))
	}
	if u.guard != "" {
		b.WriteString(" AND " + u.guard)
	}
	fmt.Fprintf(&b, " RETURNING %s", u.columns)
	return b.String(), args
}

// withTx runs fn in a transaction and commits when fn succeeds.
func withTx(ctx context.Context, db *sqlx.DB, label string, fn func(*sqlx.Tx) error) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s: %w", label, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", label, err)
	}
	return nil
}

// applyUpdate executes u into dest. It returns found=false when the row does
// not exist and ErrVersionConflict when the row exists but a guard failed.
func applyUpdate(ctx context.Context, tx *sqlx.Tx, u conditionalUpdate, dest interface{}) (bool, error) {
	query, args := u.query()
	err := tx.GetContext(ctx, dest, query, args...)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("update %s: %w", u.table, err)
	}
	var exists bool
	if err := tx.GetContext(ctx, &exists, fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)", u.table), u.id); err != nil {
		return false, fmt.Errorf("check %s existence: %w", u.table, err)
	}
	if exists {
		return false, ErrVersionConflict
	}
	return false, nil
}

func pageClause(b *strings.Builder, args []interface{}, limit, offset int) []interface{} {
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(b, " LIMIT $%d", len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		fmt.Fprintf(b, " OFFSET $%d", len(args))
	}
	return args
}
