package repl

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dsajudge/internal/common/storage"
	"dsajudge/internal/judge/catalog"
)

const catalogYAML = `problems:
  - id: add
    title: Add two numbers
    entryName: add
    parameters:
      - {name: a, type: number}
      - {name: b, type: number}
    testCases:
      - {input: [2, 3], expected: 5}
      - {input: [-1, 1], expected: 0}
`

type memoryStorage struct {
	objects map[string][]byte
	meta    map[string]map[string]string
	buckets map[string]bool
}

func (s *memoryStorage) EnsureBucket(ctx context.Context, bucket string) error {
	s.buckets[bucket] = true
	return nil
}

func (s *memoryStorage) GetObject(ctx context.Context, bucket, objectKey string) (storage.ObjectReader, error) {
	data, ok := s.objects[bucket+"/"+objectKey]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memoryStorage) PutObject(ctx context.Context, bucket, objectKey string, reader io.Reader, sizeBytes int64, contentType string, metadata map[string]string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.objects[bucket+"/"+objectKey] = data
	s.meta[bucket+"/"+objectKey] = metadata
	return nil
}

func (s *memoryStorage) StatObject(ctx context.Context, bucket, objectKey string) (storage.ObjectStat, error) {
	data, ok := s.objects[bucket+"/"+objectKey]
	if !ok {
		return storage.ObjectStat{}, errors.New("not found")
	}
	return storage.ObjectStat{SizeBytes: int64(len(data)), Metadata: s.meta[bucket+"/"+objectKey]}, nil
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s failed: %v", name, err)
	}
	return path
}

func newSession(t *testing.T, store storage.ObjectStorage) (*Session, *bytes.Buffer) {
	t.Helper()
	defs, err := catalog.Decode([]byte(catalogYAML), "problems.yaml")
	if err != nil {
		t.Fatalf("decode catalog failed: %v", err)
	}
	problems, err := catalog.New(defs)
	if err != nil {
		t.Fatalf("build catalog failed: %v", err)
	}
	out := &bytes.Buffer{}
	s, err := New(Options{Catalog: problems, Store: store, Bucket: "packs", Out: out})
	if err != nil {
		t.Fatalf("new session failed: %v", err)
	}
	return s, out
}

func TestListShowAndStarter(t *testing.T) {
	s, out := newSession(t, nil)
	ctx := context.Background()

	if err := s.Exec(ctx, "list"); err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if !strings.Contains(out.String(), "add") || !strings.Contains(out.String(), "Add two numbers") {
		t.Fatalf("unexpected list output: %q", out.String())
	}

	out.Reset()
	if err := s.Exec(ctx, `list "no such thing"`); err != nil {
		t.Fatalf("list query failed: %v", err)
	}
	if strings.TrimSpace(out.String()) != "no problems" {
		t.Fatalf("unexpected search output: %q", out.String())
	}

	out.Reset()
	if err := s.Exec(ctx, "show add"); err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if !strings.Contains(out.String(), `"functionName":"add"`) {
		t.Fatalf("unexpected show output: %q", out.String())
	}

	out.Reset()
	if err := s.Exec(ctx, "starter add"); err != nil {
		t.Fatalf("starter failed: %v", err)
	}
	if !strings.Contains(out.String(), "var add = function(a, b)") {
		t.Fatalf("unexpected starter: %q", out.String())
	}

	if err := s.Exec(ctx, "show missing"); err == nil {
		t.Fatalf("expected error for unknown problem")
	}
}

func TestRunReportsProgressAndFailures(t *testing.T) {
	s, out := newSession(t, nil)
	ctx := context.Background()

	pass := writeFile(t, "add.js", "function add(a, b) { return a + b; }")
	if err := s.Exec(ctx, "run add "+pass); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "case 1/2 PASS") || !strings.Contains(text, "case 2/2 PASS") {
		t.Fatalf("missing progress lines: %q", text)
	}
	if !strings.Contains(text, "passed 2/2") {
		t.Fatalf("missing summary: %q", text)
	}

	out.Reset()
	fail := writeFile(t, "boom.js", "function add(a, b) { console.log('trying', a); throw new Error('boom'); }")
	if err := s.Exec(ctx, "run add "+fail+" case=2"); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	text = out.String()
	if !strings.Contains(text, "case 1/1 FAIL (runtime)") {
		t.Fatalf("missing fault progress: %q", text)
	}
	if !strings.Contains(text, `actual:   "boom"`) || !strings.Contains(text, "  | trying -1") {
		t.Fatalf("missing failure detail: %q", text)
	}
	if !strings.Contains(text, "passed 0/1") {
		t.Fatalf("missing summary: %q", text)
	}

	if err := s.Exec(ctx, "run add "+pass+" case=3"); err == nil {
		t.Fatalf("expected out of range case error")
	}
	if err := s.Exec(ctx, "run add "+filepath.Join(t.TempDir(), "missing.js")); err == nil {
		t.Fatalf("expected missing file error")
	}
}

func TestPackAndPush(t *testing.T) {
	ctx := context.Background()
	src := writeFile(t, "problems.yaml", catalogYAML)
	packed := filepath.Join(t.TempDir(), "problems.yaml.zst")

	s, out := newSession(t, nil)
	if err := s.Exec(ctx, "pack "+src+" "+packed); err != nil {
		t.Fatalf("pack failed: %v", err)
	}
	if !strings.Contains(out.String(), "packed 1 problems") {
		t.Fatalf("unexpected pack output: %q", out.String())
	}
	loaded, err := catalog.LoadFile(packed)
	if err != nil {
		t.Fatalf("load packed catalog failed: %v", err)
	}
	if _, err := loaded.Get("add"); err != nil {
		t.Fatalf("packed catalog lost problem: %v", err)
	}

	if err := s.Exec(ctx, "push "+src); err == nil {
		t.Fatalf("push without storage should fail")
	}

	store := &memoryStorage{objects: map[string][]byte{}, meta: map[string]map[string]string{}, buckets: map[string]bool{}}
	s, out = newSession(t, store)
	if err := s.Exec(ctx, "push "+packed+" catalog/current.yaml.zst"); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	if !strings.Contains(out.String(), "pushed packs/catalog/current.yaml.zst sha256=") {
		t.Fatalf("unexpected push output: %q", out.String())
	}
	if !store.buckets["packs"] {
		t.Fatalf("push should create the bucket")
	}
	remote, err := catalog.LoadObject(ctx, store, "packs", "catalog/current.yaml.zst", "")
	if err != nil {
		t.Fatalf("load pushed catalog failed: %v", err)
	}
	if remote.Len() != 1 {
		t.Fatalf("unexpected pushed catalog size: %d", remote.Len())
	}
}

func TestHelpAndExit(t *testing.T) {
	s, out := newSession(t, nil)
	ctx := context.Background()
	if err := s.Exec(ctx, "help"); err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, want := range []string{"run <id> <file>", "pack <in> <out>", "exit"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("help missing %q: %q", want, out.String())
		}
	}
	out.Reset()
	if err := s.Exec(ctx, "help run"); err != nil {
		t.Fatalf("help run failed: %v", err)
	}
	if !strings.Contains(out.String(), "run a solution file") {
		t.Fatalf("unexpected help output: %q", out.String())
	}
	if err := s.Exec(ctx, "   # comment"); err != nil {
		t.Fatalf("comment should be ignored: %v", err)
	}
	if err := s.Exec(ctx, "exit"); !errors.Is(err, errExit) {
		t.Fatalf("expected exit, got %v", err)
	}
}

func TestNewRequiresCatalog(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Fatalf("expected error")
	}
}
