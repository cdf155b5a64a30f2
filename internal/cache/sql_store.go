package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/uptrace/bun"
)

// sqlStorage 将缓存代与条目持久化到 bun 支持的数据库（sqlite/postgres）。
type sqlStorage struct {
	db *bun.DB
}

type sqlStore struct {
	db   *bun.DB
	name string
}

type generationModel struct {
	bun.BaseModel `bun:"table:cache_generations"`

	Name      string    `bun:"name,pk"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type entryModel struct {
	bun.BaseModel `bun:"table:cache_entries"`

	Generation string    `bun:"generation,pk"`
	CacheKey   string    `bun:"cache_key,pk"`
	StatusCode int       `bun:"status_code,notnull"`
	Status     string    `bun:"status"`
	Header     string    `bun:"header"`
	Body       []byte    `bun:"body"`
	StoredAt   time.Time `bun:"stored_at,notnull"`
}

// NewSQLStorage 在 db 上建表（若不存在）并返回 Storage。db 的生命周期归 Storage 所有。
func NewSQLStorage(ctx context.Context, db *bun.DB) (Storage, error) {
	if db == nil {
		return nil, errors.New("cache: sql storage requires a database")
	}
	models := []interface{}{(*generationModel)(nil), (*entryModel)(nil)}
	for _, model := range models {
		if _, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
			return nil, fmt.Errorf("create cache tables: %w", err)
		}
	}
	return &sqlStorage{db: db}, nil
}

func (s *sqlStorage) Open(ctx context.Context, name string) (Store, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := ensureGeneration(ctx, s.db, name); err != nil {
		return nil, err
	}
	return &sqlStore{db: s.db, name: name}, nil
}

func (s *sqlStorage) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.NewSelect().
		Model((*generationModel)(nil)).
		Column("name").
		Order("name ASC").
		Scan(ctx, &names)
	if err != nil {
		return nil, err
	}
	return names, nil
}

func (s *sqlStorage) Delete(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	existed := false
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*entryModel)(nil)).
			Where("generation = ?", name).
			Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().
			Model((*generationModel)(nil)).
			Where("name = ?", name).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n > 0 {
			existed = true
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete cache %s: %w", name, err)
	}
	return existed, nil
}

func (s *sqlStorage) Match(ctx context.Context, key string) (*Snapshot, error) {
	var model entryModel
	err := s.db.NewSelect().
		Model(&model).
		Where("cache_key = ?", key).
		Order("generation ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return modelToSnapshot(&model)
}

func (s *sqlStorage) Close() error {
	return s.db.Close()
}

func (s *sqlStore) Match(ctx context.Context, key string) (*Snapshot, error) {
	var model entryModel
	err := s.db.NewSelect().
		Model(&model).
		Where("generation = ?", s.name).
		Where("cache_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return modelToSnapshot(&model)
}

func (s *sqlStore) Put(ctx context.Context, key string, snap *Snapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	model, err := modelFromSnapshot(s.name, key, snap)
	if err != nil {
		return err
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := ensureGeneration(ctx, tx, s.name); err != nil {
			return err
		}
		_, err := tx.NewInsert().
			Model(model).
			On("CONFLICT (generation, cache_key) DO UPDATE").
			Set("status_code = EXCLUDED.status_code").
			Set("status = EXCLUDED.status").
			Set("header = EXCLUDED.header").
			Set("body = EXCLUDED.body").
			Set("stored_at = EXCLUDED.stored_at").
			Exec(ctx)
		return err
	})
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		Model((*entryModel)(nil)).
		Where("generation = ?", s.name).
		Where("cache_key = ?", key).
		Exec(ctx)
	return err
}

func (s *sqlStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.NewSelect().
		Model((*entryModel)(nil)).
		Column("cache_key").
		Where("generation = ?", s.name).
		Order("cache_key ASC").
		Scan(ctx, &keys)
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func ensureGeneration(ctx context.Context, db bun.IDB, name string) error {
	model := &generationModel{Name: name, CreatedAt: time.Now().UTC()}
	if _, err := db.NewInsert().
		Model(model).
		On("CONFLICT (name) DO NOTHING").
		Exec(ctx); err != nil {
		return fmt.Errorf("open cache %s: %w", name, err)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func modelFromSnapshot(generation, key string, snap *Snapshot) (*entryModel, error) {
	header, err := json.Marshal(snap.Header)
	if err != nil {
		return nil, fmt.Errorf("encode cached header: %w", err)
	}
	storedAt := snap.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	return &entryModel{
		Generation: generation,
		CacheKey:   key,
		StatusCode: snap.StatusCode,
		Status:     snap.Status,
		Header:     string(header),
		Body:       snap.Body(),
		StoredAt:   storedAt,
	}, nil
}

func modelToSnapshot(model *entryModel) (*Snapshot, error) {
	header := http.Header{}
	if model.Header != "" {
		if err := json.Unmarshal([]byte(model.Header), &header); err != nil {
			return nil, fmt.Errorf("decode cached header: %w", err)
		}
	}
	snap := NewSnapshot(model.StatusCode, header, model.Body)
	if model.Status != "" {
		snap.Status = model.Status
	}
	snap.StoredAt = model.StoredAt
	return snap, nil
}
