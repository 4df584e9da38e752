package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v2"
)

// Store is a runtime settings backend. A missing key is ("", false, nil).
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
}

// MapStore is a static in-process store.
type MapStore map[string]string

func (m MapStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

// FileStore serves settings from a YAML file. Nested maps are flattened with
// dots, so `withdrawal: {batch_size: 10}` answers "withdrawal.batch_size".
// The file is re-read whenever its modification time changes.
type FileStore struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	values  map[string]string
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path}
	if err := fs.reload(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.reloadIfChanged(); err != nil {
		return "", false, err
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *FileStore) reloadIfChanged() error {
	info, err := os.Stat(f.path)
	if err != nil {
		return fmt.Errorf("unable to stat %s: %w", f.path, err)
	}
	if info.ModTime().Equal(f.modTime) {
		return nil
	}
	return f.reload()
}

func (f *FileStore) reload() error {
	info, err := os.Stat(f.path)
	if err != nil {
		return fmt.Errorf("unable to stat %s: %w", f.path, err)
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("unable to read %s: %w", f.path, err)
	}

	var raw map[interface{}]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unable to parse %s: %w", f.path, err)
	}

	values := make(map[string]string)
	flatten("", raw, values)
	f.values = values
	f.modTime = info.ModTime()
	return nil
}

func flatten(prefix string, in map[interface{}]interface{}, out map[string]string) {
	for k, v := range in {
		key := fmt.Sprint(k)
		if prefix != "" {
			key = prefix + "." + key
		}
		if nested, ok := v.(map[interface{}]interface{}); ok {
			flatten(key, nested, out)
			continue
		}
		if v == nil {
			continue
		}
		out[key] = fmt.Sprint(v)
	}
}

// RedisStore reads fields of one Redis hash.
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, hashKey string) *RedisStore {
	return &RedisStore{client: client, key: hashKey}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.HGet(ctx, r.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis HGET %s %s: %w", r.key, key, err)
	}
	return v, true, nil
}

// Set writes one field; used by operator tooling.
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.client.HSet(ctx, r.key, key, value).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
