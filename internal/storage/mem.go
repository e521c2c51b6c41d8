package storage

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
)

// Mem — хранилище в памяти.
type Mem struct {
	mu    sync.RWMutex
	files map[string]memFile
	dirs  map[string]bool
}

type memFile struct {
	data []byte
	mode fs.FileMode
}

// NewMem создаёт пустое хранилище в памяти.
func NewMem() *Mem {
	return &Mem{
		files: make(map[string]memFile),
		dirs:  map[string]bool{".": true},
	}
}

func (m *Mem) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	cleaned, err := Clean(p)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, isFile := m.files[cleaned]
	return isFile || m.dirs[cleaned], nil
}

func (m *Mem) Read(ctx context.Context, p string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cleaned, err := Clean(p)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[cleaned]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return append([]byte(nil), f.data...), nil
}

func (m *Mem) Write(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleaned, err := Clean(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirs[path.Dir(cleaned)] {
		return fmt.Errorf("%w: %s", ErrParentMissing, p)
	}
	mode := ModePrivate
	if existing, ok := m.files[cleaned]; ok {
		mode = existing.mode
	}
	m.files[cleaned] = memFile{data: append([]byte(nil), data...), mode: mode}
	return nil
}

func (m *Mem) Chmod(ctx context.Context, p string, mode fs.FileMode) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleaned, err := Clean(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[cleaned]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	f.mode = mode.Perm()
	m.files[cleaned] = f
	return nil
}

func (m *Mem) Mkdir(ctx context.Context, p string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cleaned, err := Clean(p)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if !recursive {
		if !m.dirs[path.Dir(cleaned)] {
			return fmt.Errorf("%w: %s", ErrParentMissing, p)
		}
		m.dirs[cleaned] = true
		return nil
	}

	parts := strings.Split(cleaned, "/")
	for i := range parts {
		m.dirs[strings.Join(parts[:i+1], "/")] = true
	}
	return nil
}

// Mode возвращает режим доступа к файлу.
func (m *Mem) Mode(ctx context.Context, p string) (fs.FileMode, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	cleaned, err := Clean(p)
	if err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[cleaned]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return f.mode, nil
}

// Files возвращает отсортированный список путей файлов.
func (m *Mem) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

var (
	_ Storage    = (*Mem)(nil)
	_ ModeReader = (*Mem)(nil)
)
