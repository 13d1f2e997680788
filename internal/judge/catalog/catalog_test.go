package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"dsajudge/internal/common/storage"
	"dsajudge/internal/judge/model"
	appErr "dsajudge/pkg/errors"
)

const yamlCatalog = `problems:
  - id: two-sum
    title: Two Sum
    description: Find two numbers that add up to a target.
    difficulty: easy
    language: javascript
    functionName: twoSum
    arguments:
      - {name: nums, type: "number[]"}
      - {name: target, type: number}
    returnType: "number[]"
    testCases:
      - input: [[2, 7, 11, 15], 9]
        expected: [0, 1]
  - id: counter
    title: Counter
    description: Design a counter class.
    language: lua
    entryKind: constructor
    functionName: Counter
    testCases:
      - input: [["Counter", "increment"], [[], []]]
        expected: [null, 1]
`

const jsonCatalog = `[
  {"id": "add", "title": "Add", "description": "Return the SUM.", "entryName": "add",
   "parameters": [{"name": "a", "type": "number"}, {"name": "b", "type": "number"}],
   "testCases": [{"input": [2, 3], "expected": 5}]}
]`

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	c, err := LoadFile(writeFile(t, "problems.yaml", []byte(yamlCatalog)))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() != 2 || c.Checksum() == "" {
		t.Fatalf("unexpected catalog: len=%d checksum=%q", c.Len(), c.Checksum())
	}
	def, err := c.Get("counter")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if def.Language != model.LanguageLua || def.EntryKind != model.EntryConstructor {
		t.Fatalf("unexpected definition %#v", def)
	}
	twoSum, _ := c.Get("two-sum")
	if twoSum.EntryKind != model.EntryFunction || len(twoSum.Parameters) != 2 {
		t.Fatalf("defaults not applied: %#v", twoSum)
	}
	if got := twoSum.TestCases[0].Input[1]; got != 9.0 {
		t.Fatalf("fixtures not normalized: %#v", got)
	}
}

func TestLoadJSONWithAliases(t *testing.T) {
	c, err := LoadFile(writeFile(t, "problems.json", []byte(jsonCatalog)))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	def, err := c.Get("add")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if def.EntryName != "add" || len(def.Parameters) != 2 || def.Language != model.LanguageJavaScript {
		t.Fatalf("aliases not applied: %#v", def)
	}
}

func TestLoadCompressed(t *testing.T) {
	packed, err := Compress([]byte(yamlCatalog))
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	c, err := LoadFile(writeFile(t, "problems.yaml.zst", packed))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 problems, got %d", c.Len())
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		defs []model.ProblemDefinition
	}{
		{"missing id", []model.ProblemDefinition{{TestCases: []model.TestCase{{}}}}},
		{"duplicate id", []model.ProblemDefinition{
			{ID: "a", TestCases: []model.TestCase{{}}},
			{ID: "a", TestCases: []model.TestCase{{}}},
		}},
		{"no test cases", []model.ProblemDefinition{{ID: "a"}}},
		{"unknown language", []model.ProblemDefinition{{ID: "a", Language: "cobol", TestCases: []model.TestCase{{}}}}},
		{"unknown kind", []model.ProblemDefinition{{ID: "a", EntryKind: "module", TestCases: []model.TestCase{{}}}}},
		{"constructor without class", []model.ProblemDefinition{{ID: "a", EntryKind: model.EntryConstructor, TestCases: []model.TestCase{{Input: []any{[]any{}, []any{}}}}}}},
		{"bad script", []model.ProblemDefinition{{ID: "a", EntryKind: model.EntryConstructor, EntryName: "C", TestCases: []model.TestCase{{Input: []any{1}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.defs)
			if !appErr.Is(err, appErr.InvalidProblemDefinition) {
				t.Fatalf("expected InvalidProblemDefinition, got %v", err)
			}
		})
	}
}

func TestSearch(t *testing.T) {
	c, err := LoadFile(writeFile(t, "problems.yaml", []byte(yamlCatalog)))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := c.List(); len(got) != 2 || got[0].ID != "two-sum" || got[1].ID != "counter" {
		t.Fatalf("list order: %#v", got)
	}
	if got := c.Search("COUNTER"); len(got) != 1 || got[0].ID != "counter" {
		t.Fatalf("title search: %#v", got)
	}
	if got := c.Search("add up"); len(got) != 1 || got[0].ID != "two-sum" {
		t.Fatalf("description search: %#v", got)
	}
	if got := c.Search("graph"); len(got) != 0 {
		t.Fatalf("expected no matches: %#v", got)
	}
	if _, err := c.Get("nope"); !appErr.Is(err, appErr.ProblemNotFound) {
		t.Fatalf("expected ProblemNotFound, got %v", err)
	}
}

type memoryObject struct {
	data        []byte
	contentType string
	metadata    map[string]string
}

type fakeStorage struct {
	objects map[string]memoryObject
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string]memoryObject)}
}

func (s *fakeStorage) GetObject(ctx context.Context, bucket, objectKey string) (storage.ObjectReader, error) {
	obj, ok := s.objects[bucket+"/"+objectKey]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *fakeStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string, metadata map[string]string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if int64(len(data)) != sizeBytes {
		return errors.New("size mismatch")
	}
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		// S3 canonicalizes user metadata names.
		meta["X-Amz-Meta-"+k] = v
	}
	s.objects[bucket+"/"+objectKey] = memoryObject{data: data, contentType: contentType, metadata: meta}
	return nil
}

func (s *fakeStorage) StatObject(ctx context.Context, bucket, objectKey string) (storage.ObjectStat, error) {
	obj, ok := s.objects[bucket+"/"+objectKey]
	if !ok {
		return storage.ObjectStat{}, fmt.Errorf("%w: %s/%s", storage.ErrObjectNotFound, bucket, objectKey)
	}
	meta := make(map[string]string, len(obj.metadata))
	for k, v := range obj.metadata {
		meta[k[len("X-Amz-Meta-"):]] = v
	}
	return storage.ObjectStat{SizeBytes: int64(len(obj.data)), ContentType: obj.contentType, Metadata: meta}, nil
}

func TestPublishAndLoadObject(t *testing.T) {
	store := newFakeStorage()
	ctx := context.Background()
	path := writeFile(t, "problems.yaml", []byte(yamlCatalog))

	sum, err := Publish(ctx, store, "catalogs", "", path)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if store.objects["catalogs/problems.yaml"].contentType != "application/yaml" {
		t.Fatalf("unexpected content type %q", store.objects["catalogs/problems.yaml"].contentType)
	}

	c, err := Load(ctx, Config{Bucket: "catalogs", Key: "problems.yaml"}, store)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Checksum() != sum || c.Len() != 2 {
		t.Fatalf("unexpected catalog checksum=%q len=%d", c.Checksum(), c.Len())
	}

	if _, err := Load(ctx, Config{Bucket: "catalogs", Key: "problems.yaml", SHA256: "deadbeef"}, store); !appErr.Is(err, appErr.CatalogChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := Load(context.Background(), Config{}, nil); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := Load(context.Background(), Config{Key: "k"}, nil); !appErr.Is(err, appErr.CatalogLoadFailed) {
		t.Fatalf("expected CatalogLoadFailed, got %v", err)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.json")); !appErr.Is(err, appErr.CatalogLoadFailed) {
		t.Fatalf("expected CatalogLoadFailed, got %v", err)
	}
}

func TestSampleCatalogLoads(t *testing.T) {
	c, err := LoadFile(filepath.Join("..", "..", "..", "configs", "problems.yaml"))
	if err != nil {
		t.Fatalf("load sample catalog: %v", err)
	}
	for _, id := range []string{"add", "two-sum", "list-sum", "counter", "counter-lua", "max-depth-lua"} {
		if _, err := c.Get(id); err != nil {
			t.Fatalf("sample catalog is missing %s: %v", id, err)
		}
	}
}

func TestLoadObjectMissing(t *testing.T) {
	_, err := LoadObject(context.Background(), newFakeStorage(), "catalogs", "absent.yaml", "")
	if !appErr.Is(err, appErr.CatalogLoadFailed) {
		t.Fatalf("expected CatalogLoadFailed, got %v", err)
	}
}
