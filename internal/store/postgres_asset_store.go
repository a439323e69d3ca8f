package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dunamismax/pixelpack/internal/domain"
	_ "github.com/lib/pq"
)

const assetSchemaSQL = `
CREATE TABLE IF NOT EXISTS assets (
	id TEXT PRIMARY KEY,
	object_key TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL,
	extension TEXT NOT NULL DEFAULT '',
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	focal JSONB,
	fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

type PostgresAssetStore struct {
	db *sql.DB
}

func NewPostgresAssetStore(ctx context.Context, dsn string) (*PostgresAssetStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresAssetStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresAssetStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, assetSchemaSQL); err != nil {
		return fmt.Errorf("ensure assets schema: %w", err)
	}
	return nil
}

func (s *PostgresAssetStore) Close() error {
	return s.db.Close()
}

func (s *PostgresAssetStore) Create(ctx context.Context, asset domain.Asset) error {
	focal, fields, err := marshalAssetJSON(asset)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO assets (id, object_key, url, extension, width, height, focal, fields)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		asset.ID,
		asset.ObjectKey,
		asset.URL,
		asset.Extension,
		asset.Width,
		asset.Height,
		focal,
		string(fields),
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (s *PostgresAssetStore) Get(ctx context.Context, id string) (domain.Asset, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, object_key, url, extension, width, height, focal, fields
		 FROM assets
		 WHERE id = $1`,
		id,
	)

	var (
		asset      domain.Asset
		focalJSON  []byte
		fieldsJSON []byte
	)
	if err := row.Scan(
		&asset.ID,
		&asset.ObjectKey,
		&asset.URL,
		&asset.Extension,
		&asset.Width,
		&asset.Height,
		&focalJSON,
		&fieldsJSON,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Asset{}, false, nil
		}
		return domain.Asset{}, false, fmt.Errorf("query asset: %w", err)
	}

	if len(focalJSON) > 0 {
		var focal domain.FocalPoint
		if err := json.Unmarshal(focalJSON, &focal); err != nil {
			return domain.Asset{}, false, fmt.Errorf("unmarshal asset focal point: %w", err)
		}
		asset.Focal = &focal
	}
	if len(fieldsJSON) > 0 {
		if err := json.Unmarshal(fieldsJSON, &asset.Fields); err != nil {
			return domain.Asset{}, false, fmt.Errorf("unmarshal asset fields: %w", err)
		}
	}

	return asset, true, nil
}

func (s *PostgresAssetStore) Update(ctx context.Context, asset domain.Asset) error {
	focal, fields, err := marshalAssetJSON(asset)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE assets
		 SET object_key = $2, url = $3, extension = $4, width = $5, height = $6, focal = $7, fields = $8, updated_at = NOW()
		 WHERE id = $1`,
		asset.ID,
		asset.ObjectKey,
		asset.URL,
		asset.Extension,
		asset.Width,
		asset.Height,
		focal,
		string(fields),
	)
	if err != nil {
		return fmt.Errorf("update asset: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read update result: %w", err)
	}
	if affected == 0 {
		return ErrAssetNotFound
	}
	return nil
}

func marshalAssetJSON(asset domain.Asset) (focal any, fields []byte, err error) {
	if asset.Focal != nil {
		b, err := json.Marshal(asset.Focal)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal asset focal point: %w", err)
		}
		focal = string(b)
	}

	if asset.Fields == nil {
		fields = []byte("{}")
	} else if fields, err = json.Marshal(asset.Fields); err != nil {
		return nil, nil, fmt.Errorf("marshal asset fields: %w", err)
	}
	return focal, fields, nil
}
