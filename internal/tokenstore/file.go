package tokenstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"filippo.io/age"
)

const (
	keyFileName  = "device.key"
	dataFileName = "tokens.age"
)

// File — зашифрованное файловое хранилище устройства.
//
// Все ключи лежат одним JSON-объектом, зашифрованным age (X25519) на ключ
// устройства. Ключ устройства создаётся при первом запуске рядом с данными
// (права 0600). Запись идёт через временный файл и rename.
type File struct {
	mu        sync.Mutex
	dir       string
	identity  *age.X25519Identity
	recipient *age.X25519Recipient
}

// NewFile открывает (или инициализирует) хранилище в каталоге dir.
func NewFile(dir string) (*File, error) {
	const op = "tokenstore.NewFile"

	if dir == "" {
		return nil, fmt.Errorf("%s: empty dir", op)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%s: mkdir: %w", op, err)
	}

	id, err := loadOrCreateIdentity(filepath.Join(dir, keyFileName))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &File{dir: dir, identity: id, recipient: id.Recipient()}, nil
}

func loadOrCreateIdentity(path string) (*age.X25519Identity, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		id, err := age.ParseX25519Identity(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("parsing device key: %w", err)
		}
		return id, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading device key: %w", err)
	}

	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating device key: %w", err)
	}

	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing device key: %w", err)
	}

	return id, nil
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return "", false, err
	}

	v, ok := data[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}

	data[key] = value
	return f.store(data)
}

func (f *File) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.load()
	if err != nil {
		return err
	}

	if _, ok := data[key]; !ok {
		return nil
	}

	delete(data, key)
	return f.store(data)
}

// load читает и расшифровывает содержимое. Отсутствующий файл читается как пустое хранилище.
func (f *File) load() (map[string]string, error) {
	const op = "tokenstore.File.load"

	raw, err := os.ReadFile(filepath.Join(f.dir, dataFileName))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	r, err := age.Decrypt(bytes.NewReader(raw), f.identity)
	if err != nil {
		return nil, fmt.Errorf("%s: decrypt: %w", op, err)
	}

	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: read: %w", op, err)
	}

	data := map[string]string{}
	if err := json.Unmarshal(plain, &data); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}

	return data, nil
}

// store шифрует и атомарно заменяет файл данных.
func (f *File) store(data map[string]string) error {
	const op = "tokenstore.File.store"

	plain, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", op, err)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, f.recipient)
	if err != nil {
		return fmt.Errorf("%s: encryptor: %w", op, err)
	}
	if _, err := w.Write(plain); err != nil {
		return fmt.Errorf("%s: encrypt: %w", op, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%s: finalize: %w", op, err)
	}

	tmp, err := os.CreateTemp(f.dir, dataFileName+".*")
	if err != nil {
		return fmt.Errorf("%s: temp: %w", op, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: write: %w", op, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: chmod: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: close: %w", op, err)
	}

	if err := os.Rename(tmp.Name(), filepath.Join(f.dir, dataFileName)); err != nil {
		return fmt.Errorf("%s: rename: %w", op, err)
	}

	return nil
}
