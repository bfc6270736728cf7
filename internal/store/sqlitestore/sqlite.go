// Package sqlitestore implements the store.Persistence interface over a local
// SQLite database. Only sealed envelopes are written; plaintext content and
// keys never reach the database.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/quillnote/core/internal/common"
	"github.com/quillnote/core/internal/dbx"
	"github.com/quillnote/core/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Persistence is the SQLite-backed envelope store.
type Persistence struct {
	db *sql.DB
}

// Open opens (or creates) the database at dsn and applies pending
// migrations. The caller must import a database/sql driver registered under
// the name "sqlite" (modernc.org/sqlite).
func Open(ctx context.Context, dsn string) (*Persistence, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", common.ErrStorage, dsn, err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Persistence{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("%w: set goose dialect: %v", common.ErrStorage, err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("%w: run migrations: %v", common.ErrStorage, err)
	}
	return nil
}

func (p *Persistence) Get(ctx context.Context, typ models.ResourceType, id string) (*models.Envelope, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, type, space_id, key_id, version, nonce, ciphertext, mac, deleted, dirty, modified_at
		FROM envelopes WHERE type = ? AND id = ?`, string(typ), id)

	env, err := scanEnvelope(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s", common.ErrNotFound, typ, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s %s: %v", common.ErrStorage, typ, id, err)
	}
	return env, nil
}

func (p *Persistence) Put(ctx context.Context, env *models.Envelope) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO envelopes (id, type, space_id, key_id, version, nonce, ciphertext, mac, deleted, dirty, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (type, id) DO UPDATE SET
			space_id = excluded.space_id,
			key_id = excluded.key_id,
			version = excluded.version,
			nonce = excluded.nonce,
			ciphertext = excluded.ciphertext,
			mac = excluded.mac,
			deleted = excluded.deleted,
			dirty = excluded.dirty,
			modified_at = excluded.modified_at`,
		env.ID, string(env.Type), env.SpaceID, env.KeyID, env.Version,
		env.Nonce, env.Ciphertext, env.MAC,
		boolToInt(env.Deleted), boolToInt(env.Dirty), env.ModifiedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: put %s %s: %v", common.ErrStorage, env.Type, env.ID, err)
	}
	return nil
}

func (p *Persistence) Delete(ctx context.Context, typ models.ResourceType, id string) error {
	_, err := p.db.ExecContext(ctx,
		`DELETE FROM envelopes WHERE type = ? AND id = ?`, string(typ), id)
	if err != nil {
		return fmt.Errorf("%w: delete %s %s: %v", common.ErrStorage, typ, id, err)
	}
	return nil
}

func (p *Persistence) ListAll(ctx context.Context, typ models.ResourceType) ([]*models.Envelope, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, type, space_id, key_id, version, nonce, ciphertext, mac, deleted, dirty, modified_at
		FROM envelopes WHERE type = ?`, string(typ))
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", common.ErrStorage, typ, err)
	}
	defer rows.Close()

	var out []*models.Envelope
	for rows.Next() {
		env, err := scanEnvelope(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%w: scan %s: %v", common.ErrStorage, typ, err)
		}
		out = append(out, env)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", common.ErrStorage, typ, err)
	}
	return out, nil
}

// DeleteAll removes every envelope in one transaction, so a wipe observed by
// a concurrent reader is all-or-nothing.
func (p *Persistence) DeleteAll(ctx context.Context) error {
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM envelopes`)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: delete all: %v", common.ErrStorage, err)
	}
	return nil
}

func (p *Persistence) Close() error { return p.db.Close() }

func scanEnvelope(scan func(dest ...any) error) (*models.Envelope, error) {
	var env models.Envelope
	var typ string
	var deleted, dirty int
	var modifiedNanos int64
	if err := scan(&env.ID, &typ, &env.SpaceID, &env.KeyID, &env.Version,
		&env.Nonce, &env.Ciphertext, &env.MAC, &deleted, &dirty, &modifiedNanos); err != nil {
		return nil, err
	}
	env.Type = models.ResourceType(typ)
	env.Deleted = deleted != 0
	env.Dirty = dirty != 0
	env.ModifiedAt = time.Unix(0, modifiedNanos).UTC()
	return &env, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
