package testsupport

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoadFixture(t *testing.T) {
	content := []byte("test fixture content")
	path := TempFile(t, "fixture.txt", content)

	if got := LoadFixture(t, path); string(got) != string(content) {
		t.Errorf("expected %q, got %q", content, got)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	path := TempFile(t, "fixture.json", []byte(`{"name":"test","value":42,"items":["a","b"]}`))

	var got struct {
		Name  string   `json:"name"`
		Value int      `json:"value"`
		Items []string `json:"items"`
	}
	LoadFixtureJSON(t, path, &got)

	if got.Name != "test" || got.Value != 42 || !reflect.DeepEqual(got.Items, []string{"a", "b"}) {
		t.Errorf("unexpected fixture %+v", got)
	}
}

func TestLoadFixtureYAML(t *testing.T) {
	path := TempFile(t, "fixture.yaml", []byte("prefix: dt\ntags:\n  - users\n  - posts\n"))

	var got struct {
		Prefix string   `yaml:"prefix"`
		Tags   []string `yaml:"tags"`
	}
	LoadFixtureYAML(t, path, &got)

	if got.Prefix != "dt" || !reflect.DeepEqual(got.Tags, []string{"users", "posts"}) {
		t.Errorf("unexpected fixture %+v", got)
	}
}

func TestLoadReader(t *testing.T) {
	path := TempFile(t, "reader.txt", []byte("reader content"))

	data, err := io.ReadAll(LoadReader(t, path))
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	if string(data) != "reader content" {
		t.Errorf("expected %q, got %q", "reader content", data)
	}
}

func TestWriteGolden_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "golden", "out.txt")
	WriteGolden(t, path, []byte("golden"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read golden file: %v", err)
	}
	if string(data) != "golden" {
		t.Errorf("expected %q, got %q", "golden", data)
	}
}

func TestCompareWithGolden(t *testing.T) {
	t.Setenv(UpdateGoldenEnv, "")
	path := filepath.Join(t.TempDir(), "golden", "compare.txt")

	// First call creates the file.
	CompareWithGolden(t, path, []byte("expected output"))
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected golden file to be created: %v", err)
	}

	CompareWithGolden(t, path, []byte("expected output"))
}

func TestCompareWithGolden_Update(t *testing.T) {
	path := TempFile(t, "update.txt", []byte("old"))
	t.Setenv(UpdateGoldenEnv, "1")

	CompareWithGolden(t, path, []byte("new"))

	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Errorf("expected golden file to be rewritten, got %q", data)
	}
}

func TestPaths(t *testing.T) {
	if got := FixturePath("keys.json"); got != filepath.Join("testdata", "keys.json") {
		t.Errorf("FixturePath() = %s", got)
	}
	if got := GoldenPath("keys.txt"); got != filepath.Join("testdata", "golden", "keys.txt") {
		t.Errorf("GoldenPath() = %s", got)
	}
}
