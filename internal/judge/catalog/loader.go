package catalog

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dsajudge/internal/common/storage"
	"dsajudge/internal/judge/model"
	appErr "dsajudge/pkg/errors"
	"dsajudge/pkg/utils/logger"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// checksumMetadataKey is the object user metadata key carrying the pack sha256.
const checksumMetadataKey = "sha256"

// maxDocumentBytes bounds a decompressed catalog document.
const maxDocumentBytes = 64 << 20

// Config selects where the catalog is loaded from. Key wins over Path.
type Config struct {
	// Path is a local .json, .yaml or .yml file, optionally with a .zst suffix.
	Path string `yaml:"path"`
	// Bucket and Key name an object in object storage.
	Bucket string `yaml:"bucket"`
	Key    string `yaml:"key"`
	// SHA256 pins the expected checksum of the stored document.
	SHA256  string        `yaml:"sha256"`
	Timeout time.Duration `yaml:"timeout"`
}

// document is the top-level layout of a catalog file.
type document struct {
	Problems []model.ProblemDefinition `json:"problems" yaml:"problems"`
}

// Load builds the catalog described by cfg. store is only needed for object sources.
func Load(ctx context.Context, cfg Config, store storage.ObjectStorage) (*Catalog, error) {
	if cfg.Key != "" {
		if store == nil {
			return nil, appErr.New(appErr.CatalogLoadFailed).WithMessage("object storage is required for an object catalog")
		}
		if cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
		}
		return LoadObject(ctx, store, cfg.Bucket, cfg.Key, cfg.SHA256)
	}
	if cfg.Path == "" {
		return nil, appErr.ValidationError("catalog", "path or key is required")
	}
	return LoadFile(cfg.Path)
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CatalogLoadFailed, "read catalog %s failed", path)
	}
	return fromBytes(data, path)
}

// LoadObject downloads a catalog from object storage. The checksum is compared
// against expected, or against the object's sha256 metadata when expected is empty.
func LoadObject(ctx context.Context, store storage.ObjectStorage, bucket, key, expected string) (*Catalog, error) {
	if expected == "" {
		stat, err := store.StatObject(ctx, bucket, key)
		if storage.IsNotFound(err) {
			return nil, appErr.Wrapf(err, appErr.CatalogLoadFailed, "catalog %s/%s does not exist", bucket, key)
		}
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.StorageError, "stat catalog %s failed", key)
		}
		expected = metadataValue(stat.Metadata, checksumMetadataKey)
	}

	reader, err := store.GetObject(ctx, bucket, key)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "download catalog %s failed", key)
	}
	defer reader.Close()

	hasher := sha256.New()
	data, err := io.ReadAll(io.LimitReader(io.TeeReader(reader, hasher), maxDocumentBytes+1))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.StorageError, "read catalog %s failed", key)
	}
	if len(data) > maxDocumentBytes {
		return nil, appErr.New(appErr.CatalogLoadFailed).WithMessagef("catalog %s exceeds %d bytes", key, maxDocumentBytes)
	}
	actual := hex.EncodeToString(hasher.Sum(nil))
	if expected != "" && !strings.EqualFold(actual, expected) {
		return nil, appErr.New(appErr.CatalogChecksumMismatch).
			WithMessagef("catalog %s checksum mismatch", key).
			WithDetail("expected", expected).
			WithDetail("actual", actual)
	}
	c, err := fromBytes(data, key)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "problem catalog loaded",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("problems", c.Len()),
		zap.String("sha256", actual),
	)
	return c, nil
}

// Publish validates the catalog file at path and uploads it with its sha256
// as object metadata. It returns the checksum.
func Publish(ctx context.Context, store storage.ObjectStorage, bucket, key, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.CatalogLoadFailed, "read catalog %s failed", path)
	}
	c, err := fromBytes(data, path)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = filepath.Base(path)
	}
	if ensurer, ok := store.(storage.BucketEnsurer); ok {
		if err := ensurer.EnsureBucket(ctx, bucket); err != nil {
			return "", appErr.Wrapf(err, appErr.StorageError, "prepare bucket %s failed", bucket)
		}
	}
	contentType := "application/json"
	if isYAML(strings.TrimSuffix(path, ".zst")) {
		contentType = "application/yaml"
	}
	if strings.HasSuffix(path, ".zst") {
		contentType = "application/zstd"
	}
	if err := store.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), contentType,
		map[string]string{checksumMetadataKey: c.checksum}); err != nil {
		return "", appErr.Wrapf(err, appErr.StorageError, "upload catalog %s failed", key)
	}
	logger.Info(ctx, "problem catalog published",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("problems", c.Len()),
		zap.String("sha256", c.checksum),
	)
	return c.checksum, nil
}

// Decode parses a catalog document. name selects the format by extension;
// a trailing .zst means the document is zstd-compressed.
func Decode(data []byte, name string) ([]model.ProblemDefinition, error) {
	if strings.HasSuffix(name, ".zst") {
		raw, err := decompress(data)
		if err != nil {
			return nil, err
		}
		data = raw
		name = strings.TrimSuffix(name, ".zst")
	}

	trimmed := bytes.TrimSpace(data)
	if isYAML(name) {
		var list []model.ProblemDefinition
		if len(trimmed) > 0 && trimmed[0] == '-' {
			if err := yaml.Unmarshal(data, &list); err != nil {
				return nil, decodeError(name, err)
			}
			return list, nil
		}
		var doc document
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, decodeError(name, err)
		}
		return doc.Problems, nil
	}

	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []model.ProblemDefinition
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, decodeError(name, err)
		}
		return list, nil
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, decodeError(name, err)
	}
	return doc.Problems, nil
}

func fromBytes(data []byte, name string) (*Catalog, error) {
	defs, err := Decode(data, name)
	if err != nil {
		return nil, err
	}
	c, err := New(defs)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(data)
	c.checksum = hex.EncodeToString(sum[:])
	return c, nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxDocumentBytes))
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CatalogLoadFailed, "create zstd decoder failed")
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.CatalogLoadFailed, "decompress catalog failed")
	}
	return out, nil
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func decodeError(name string, err error) error {
	return appErr.Wrapf(err, appErr.CatalogLoadFailed, "decode catalog %s: %v", name, err)
}

// metadataValue looks key up case-insensitively; S3 canonicalizes metadata names.
func metadataValue(meta map[string]string, key string) string {
	for k, v := range meta {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Compress zstd-compresses a catalog document for publishing as a .zst pack.
func Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}
