// Package manifest parses and persists the set of logical file names the
// proxy keeps warm. The wire shape is the one the browser client stores in
// localStorage: a JSON object whose keys are file names and whose values are
// ignored ({"index.html": null, "guide.md": null}). Key order is preserved.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// ErrNotFound 表示尚未持久化过清单。
var ErrNotFound = errors.New("manifest not found")

// Store 持久化清单，供下一次冷启动读取。
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, keys []string) error
}

// Parse 解析清单 JSON 对象并按出现顺序返回去重后的键。
// 顶层为 null、false、0 或空字符串时返回 ok=false 且不报错。
func Parse(data []byte) (keys []string, ok bool, err error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, false, errors.New("manifest body is empty")
		}
		return nil, false, fmt.Errorf("decode manifest: %w", err)
	}
	if falsy(tok) {
		return nil, false, ensureEOF(dec)
	}
	if delim, isDelim := tok.(json.Delim); !isDelim || delim != '{' {
		return nil, false, errors.New("manifest must be a JSON object")
	}

	keys = []string{}
	seen := make(map[string]struct{})
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, false, fmt.Errorf("decode manifest key: %w", err)
		}
		key, _ := keyTok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, false, fmt.Errorf("decode manifest value for %q: %w", key, err)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if _, err := dec.Token(); err != nil {
		return nil, false, fmt.Errorf("decode manifest: %w", err)
	}
	if err := ensureEOF(dec); err != nil {
		return nil, false, err
	}
	return keys, true, nil
}

// Encode 生成 {"key":null,...}，与 Parse 互逆。
func Encode(keys []string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encoded, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encoded)
		buf.WriteString(":null")
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func falsy(tok json.Token) bool {
	switch v := tok.(type) {
	case nil:
		return true
	case bool:
		return !v
	case float64:
		return v == 0
	case string:
		return v == ""
	}
	return false
}

func ensureEOF(dec *json.Decoder) error {
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("manifest has trailing data")
	}
	return nil
}

// FileStore 以单个 JSON 文件保存清单，写入采用临时文件 + rename。
type FileStore struct {
	path string
}

// NewFileStore 创建指向 path 的清单存储。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	keys, ok, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if !ok {
		return nil, ErrNotFound
	}
	return keys, nil
}

func (s *FileStore) Save(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(keys)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tempFile, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}
	if err := os.Rename(tempName, s.path); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}
