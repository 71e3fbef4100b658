// Package keystore provides persistence for serialized keysets, addressed by
// content hash. Key generation for the larger parameter sets is expensive;
// callers cache the keyset after the first run and reload it by handle.
//
// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause
package keystore

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"
)

// Common errors.
var (
	ErrNotFound    = errors.New("keyset not found")
	ErrStoreFull   = errors.New("keystore capacity exceeded")
	ErrBadHandle   = errors.New("invalid keyset handle")
	ErrDisconnects = errors.New("keystore connection lost")
)

// Handle uniquely identifies a stored keyset.
type Handle string

// ComputeHandle derives a handle from serialized keyset bytes.
func ComputeHandle(data []byte) Handle {
	hash := blake3.Sum256(data)
	return Handle(hex.EncodeToString(hash[:]))
}

// Store defines the interface for keyset persistence.
type Store interface {
	// Put saves a serialized keyset and returns its handle.
	Put(ctx context.Context, data []byte) (Handle, error)
	// Get retrieves a keyset by handle.
	Get(ctx context.Context, handle Handle) ([]byte, error)
	// Delete removes a keyset.
	Delete(ctx context.Context, handle Handle) error
	// Exists checks whether a keyset is stored.
	Exists(ctx context.Context, handle Handle) (bool, error)
	// Close releases the store.
	Close() error
}

// MemoryStore keeps keysets in process memory, capped by total size.
type MemoryStore struct {
	mu       sync.RWMutex
	data     map[Handle][]byte
	capacity int64
	size     int64
}

// NewMemoryStore creates an in-memory store of the given capacity.
func NewMemoryStore(capacityMB int64) *MemoryStore {
	return &MemoryStore{
		data:     make(map[Handle][]byte),
		capacity: capacityMB * 1024 * 1024,
	}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := ComputeHandle(data)
	if _, exists := s.data[handle]; exists {
		return handle, nil // Dedup by content hash.
	}
	if s.size+int64(len(data)) > s.capacity {
		return "", ErrStoreFull
	}
	s.data[handle] = append([]byte(nil), data...)
	s.size += int64(len(data))
	return handle, nil
}

func (s *MemoryStore) Get(ctx context.Context, handle Handle) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, exists := s.data[handle]
	if !exists {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, handle Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, exists := s.data[handle]
	if !exists {
		return ErrNotFound
	}
	s.size -= int64(len(data))
	delete(s.data, handle)
	return nil
}

func (s *MemoryStore) Exists(ctx context.Context, handle Handle) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[handle]
	return exists, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = nil
	s.size = 0
	return nil
}

// FileStore persists keysets under a directory, sharded by handle prefix.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a file-backed store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0750); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(handle Handle) string {
	h := string(handle)
	if len(h) < 4 {
		return filepath.Join(s.baseDir, h)
	}
	// Shard by first 2 chars to avoid too many files in one directory.
	return filepath.Join(s.baseDir, h[:2], h)
}

func (s *FileStore) Put(ctx context.Context, data []byte) (Handle, error) {
	handle := ComputeHandle(data)
	path := s.path(handle)

	if _, err := os.Stat(path); err == nil {
		return handle, nil // Already exists (dedup).
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return "", fmt.Errorf("create shard dir: %w", err)
	}

	// Write atomically via temp file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename temp file: %w", err)
	}
	return handle, nil
}

func (s *FileStore) Get(ctx context.Context, handle Handle) ([]byte, error) {
	data, err := os.ReadFile(s.path(handle))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read keyset file: %w", err)
	}
	return data, nil
}

func (s *FileStore) Delete(ctx context.Context, handle Handle) error {
	if err := os.Remove(s.path(handle)); err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("remove keyset file: %w", err)
	}
	return nil
}

func (s *FileStore) Exists(ctx context.Context, handle Handle) (bool, error) {
	_, err := os.Stat(s.path(handle))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat keyset file: %w", err)
}

func (s *FileStore) Close() error {
	return nil
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisStore shares keysets across workers through Redis.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and namespaces entries under prefix.
// Entries expire after ttl; zero means no expiry.
func NewRedisStore(cfg RedisConfig, prefix string, ttl time.Duration) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrDisconnects, err)
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}, nil
}

func (s *RedisStore) key(handle Handle) string {
	return s.prefix + ":" + string(handle)
}

func (s *RedisStore) Put(ctx context.Context, data []byte) (Handle, error) {
	handle := ComputeHandle(data)
	if err := s.client.Set(ctx, s.key(handle), data, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("redis set: %w", err)
	}
	return handle, nil
}

func (s *RedisStore) Get(ctx context.Context, handle Handle) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(handle)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

func (s *RedisStore) Delete(ctx context.Context, handle Handle) error {
	n, err := s.client.Del(ctx, s.key(handle)).Result()
	if err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) Exists(ctx context.Context, handle Handle) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(handle)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
