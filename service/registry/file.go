package registry

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// FileBackend stores one mint per line in a plain text file, the same
// added_tokens.txt layout operators already edit by hand.
type FileBackend struct {
	mu   sync.Mutex
	path string
}

func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) LoadTokens(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readLocked()
}

func (b *FileBackend) AddToken(_ context.Context, mint string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens, err := b.readLocked()
	if err != nil {
		return err
	}
	if slices.Contains(tokens, mint) {
		return nil
	}
	return b.writeLocked(append(tokens, mint))
}

func (b *FileBackend) RemoveToken(_ context.Context, mint string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tokens, err := b.readLocked()
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(tokens, func(t string) bool { return t == mint })
	return b.writeLocked(kept)
}

func (b *FileBackend) readLocked() ([]string, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}

	var tokens []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tokens = append(tokens, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan token file: %w", err)
	}
	return tokens, nil
}

func (b *FileBackend) writeLocked(tokens []string) error {
	var buf bytes.Buffer
	for _, t := range tokens {
		buf.WriteString(t)
		buf.WriteByte('\n')
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write token file: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("failed to replace token file: %w", err)
	}
	return nil
}
