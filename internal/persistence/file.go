package persistence

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	nonceSize = 24
	keyInfo   = "emporia-session-store"
)

// FileBackend persists entries as one JSON document on disk. When a key is
// configured the document is sealed with NaCl secretbox.
type FileBackend struct {
	mu      sync.Mutex
	path    string
	key     *[32]byte
	entries map[string]string
	closed  bool
	log     *zap.Logger
}

var _ Backend = (*FileBackend)(nil)

// NewFileBackend loads path, creating parent directories as needed. An empty
// secret stores plaintext JSON. A document that cannot be read or decrypted is
// discarded and logged; the session then starts logged out.
func NewFileBackend(path, secret string, logger *zap.Logger) (*FileBackend, error) {
	if path == "" {
		return nil, errors.New("file store requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	b := &FileBackend{path: path, entries: make(map[string]string), log: logger}
	if secret != "" {
		key, err := deriveKey(secret)
		if err != nil {
			return nil, err
		}
		b.key = key
	}

	if err := b.load(); err != nil {
		logger.Warn("discarding unreadable session file", zap.String("path", path), zap.Error(err))
		b.entries = make(map[string]string)
	}
	return b, nil
}

func deriveKey(secret string) (*[32]byte, error) {
	var key [32]byte
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo))
	if _, err := io.ReadFull(r, key[:]); err != nil {
		return nil, fmt.Errorf("derive store key: %w", err)
	}
	return &key, nil
}

func (b *FileBackend) load() error {
	raw, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	if b.key != nil {
		if len(raw) < nonceSize {
			return errors.New("sealed document too short")
		}
		var nonce [nonceSize]byte
		copy(nonce[:], raw[:nonceSize])
		opened, ok := secretbox.Open(nil, raw[nonceSize:], &nonce, b.key)
		if !ok {
			return errors.New("sealed document failed authentication")
		}
		raw = opened
	}

	entries := make(map[string]string)
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	b.entries = entries
	return nil
}

// flush writes the current entries through a temp file and rename so that a
// crash never leaves a half-written document.
func (b *FileBackend) flush() error {
	raw, err := json.Marshal(b.entries)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	if b.key != nil {
		var nonce [nonceSize]byte
		if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
			return fmt.Errorf("generate nonce: %w", err)
		}
		raw = secretbox.Seal(nonce[:], raw, &nonce, b.key)
	}

	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".session-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmpName, b.path)
}

// Get returns the value stored under key.
func (b *FileBackend) Get(_ context.Context, key string) (string, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return "", false, ErrClosed
	}
	v, ok := b.entries[key]
	return v, ok, nil
}

// SetMany stores entries and rewrites the file atomically.
func (b *FileBackend) SetMany(_ context.Context, entries map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	prev := make(map[string]string, len(b.entries))
	for k, v := range b.entries {
		prev[k] = v
	}
	for k, v := range entries {
		b.entries[k] = v
	}
	if err := b.flush(); err != nil {
		b.entries = prev
		return err
	}
	return nil
}

// DeleteMany removes keys and rewrites the file atomically.
func (b *FileBackend) DeleteMany(_ context.Context, keys ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	prev := make(map[string]string, len(b.entries))
	for k, v := range b.entries {
		prev[k] = v
	}
	for _, k := range keys {
		delete(b.entries, k)
	}
	if err := b.flush(); err != nil {
		b.entries = prev
		return err
	}
	return nil
}

// Ping fails after Close or when the store directory is gone.
func (b *FileBackend) Ping(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	_, err := os.Stat(filepath.Dir(b.path))
	return err
}

// Close marks the backend closed. The file stays on disk.
func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
