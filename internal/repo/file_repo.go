package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Actionflow/internal/storage"
)

// schema — таблица файлов. Директории хранятся строками с is_dir = true.
const schema = `
	CREATE TABLE IF NOT EXISTS stored_files (
		path       TEXT PRIMARY KEY,
		data       BYTEA,
		mode       INTEGER NOT NULL DEFAULT 384,
		is_dir     BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)
`

// FileRepo — файловое хранилище в PostgreSQL.
type FileRepo struct {
	pool *pgxpool.Pool
}

var (
	_ storage.Storage    = (*FileRepo)(nil)
	_ storage.ModeReader = (*FileRepo)(nil)
)

// NewFileRepo создаёт новый FileRepo.
func NewFileRepo(pool *pgxpool.Pool) *FileRepo {
	return &FileRepo{pool: pool}
}

// EnsureSchema создаёт таблицу, если её нет.
func (r *FileRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Exists проверяет наличие файла или директории.
func (r *FileRepo) Exists(ctx context.Context, p string) (bool, error) {
	cleaned, err := storage.Clean(p)
	if err != nil {
		return false, err
	}

	query := `SELECT EXISTS (SELECT 1 FROM stored_files WHERE path = $1)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, cleaned).Scan(&exists); err != nil {
		return false, fmt.Errorf("check file exists: %w", err)
	}
	return exists, nil
}

// Read читает содержимое файла.
func (r *FileRepo) Read(ctx context.Context, p string) ([]byte, error) {
	cleaned, err := storage.Clean(p)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT data
		FROM stored_files
		WHERE path = $1 AND NOT is_dir
	`
	var data []byte
	err = r.pool.QueryRow(ctx, query, cleaned).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, p)
	}
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Write записывает файл. Режим существующего файла сохраняется.
func (r *FileRepo) Write(ctx context.Context, p string, data []byte) error {
	cleaned, err := storage.Clean(p)
	if err != nil {
		return err
	}

	parent, err := r.dirExists(ctx, path.Dir(cleaned))
	if err != nil {
		return err
	}
	if !parent {
		return fmt.Errorf("%w: %s", storage.ErrParentMissing, p)
	}

	query := `
		INSERT INTO stored_files (path, data, mode, is_dir, updated_at)
		VALUES ($1, $2, $3, FALSE, $4)
		ON CONFLICT (path) DO UPDATE
		SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at
	`
	_, err = r.pool.Exec(ctx, query, cleaned, data, int(storage.ModePrivate), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

// Chmod меняет режим доступа к файлу.
func (r *FileRepo) Chmod(ctx context.Context, p string, mode fs.FileMode) error {
	cleaned, err := storage.Clean(p)
	if err != nil {
		return err
	}

	query := `
		UPDATE stored_files
		SET mode = $2, updated_at = $3
		WHERE path = $1 AND NOT is_dir
	`
	result, err := r.pool.Exec(ctx, query, cleaned, int(mode.Perm()), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("chmod file: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, p)
	}
	return nil
}

// Mkdir создаёт директорию. При recursive — все родительские в одной транзакции.
func (r *FileRepo) Mkdir(ctx context.Context, p string, recursive bool) error {
	cleaned, err := storage.Clean(p)
	if err != nil {
		return err
	}

	dirs := []string{cleaned}
	if recursive {
		parts := strings.Split(cleaned, "/")
		dirs = dirs[:0]
		for i := range parts {
			dirs = append(dirs, strings.Join(parts[:i+1], "/"))
		}
	} else {
		parent, err := r.dirExists(ctx, path.Dir(cleaned))
		if err != nil {
			return err
		}
		if !parent {
			return fmt.Errorf("%w: %s", storage.ErrParentMissing, p)
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO stored_files (path, mode, is_dir, updated_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (path) DO NOTHING
	`
	now := time.Now().UTC()
	for _, dir := range dirs {
		if _, err := tx.Exec(ctx, query, dir, int(storage.ModeDir), now); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Mode возвращает режим доступа к файлу.
func (r *FileRepo) Mode(ctx context.Context, p string) (fs.FileMode, error) {
	cleaned, err := storage.Clean(p)
	if err != nil {
		return 0, err
	}

	query := `SELECT mode FROM stored_files WHERE path = $1 AND NOT is_dir`
	var mode int
	err = r.pool.QueryRow(ctx, query, cleaned).Scan(&mode)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", storage.ErrNotFound, p)
	}
	if err != nil {
		return 0, fmt.Errorf("get file mode: %w", err)
	}
	return fs.FileMode(mode), nil
}

// dirExists проверяет наличие директории. Корень существует всегда.
func (r *FileRepo) dirExists(ctx context.Context, dir string) (bool, error) {
	if dir == "." || dir == "" {
		return true, nil
	}

	query := `SELECT EXISTS (SELECT 1 FROM stored_files WHERE path = $1 AND is_dir)`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, dir).Scan(&exists); err != nil {
		return false, fmt.Errorf("check dir exists: %w", err)
	}
	return exists, nil
}

var (
	_ storage.Storage    = (*FileRepo)(nil)
	_ storage.ModeReader = (*FileRepo)(nil)
)
