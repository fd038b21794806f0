package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/weiawesome/wes-io-groupchat/pkg/storage"
)

// document is a whole JSON value kept under a single storage key and
// rewritten in full on every save.
type document struct {
	store storage.Storage
	key   string
}

// NewLocalDocumentStore opens the directory holding path as local storage and
// returns it with the key for the file itself.
func NewLocalDocumentStore(path string) (storage.Storage, string, error) {
	s, err := storage.NewLocalStorage(storage.LocalConfig{BasePath: filepath.Dir(path)})
	if err != nil {
		return nil, "", err
	}
	return s, filepath.Base(path), nil
}

// load decodes the document into v. A missing document leaves v untouched.
func (d document) load(ctx context.Context, v interface{}) error {
	rc, err := d.store.Read(ctx, d.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", d.key, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", d.key, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", d.key, err)
	}
	return nil
}

func (d document) save(ctx context.Context, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", d.key, err)
	}
	if err := d.store.Write(ctx, d.key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return fmt.Errorf("failed to write %s: %w", d.key, err)
	}
	return nil
}
