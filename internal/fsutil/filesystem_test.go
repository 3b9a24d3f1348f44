package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_CreateOpenRead(t *testing.T) {
	dir := t.TempDir()
	fsys := OSFileSystem{}
	sub := filepath.Join(dir, "a", "b")

	if err := fsys.MkdirAll(sub, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if !fsys.Exists(sub) {
		t.Fatalf("expected %s to exist", sub)
	}

	path := filepath.Join(sub, "out.txt")
	w, err := fsys.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := w.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := fsys.ReadFile(path)
	if err != nil || string(data) != "hello" {
		t.Errorf("ReadFile = %q, %v", data, err)
	}

	r, err := fsys.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	got, _ := io.ReadAll(r)
	if string(got) != "hello" {
		t.Errorf("Open read %q", got)
	}

	if fsys.Exists(filepath.Join(dir, "nope")) {
		t.Errorf("nonexistent path reported as existing")
	}
}

func TestMemoryFileSystem_CreateAndRead(t *testing.T) {
	m := NewMemoryFileSystem()

	w, err := m.Create("/out/./report.json")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, _ = w.Write([]byte(`{"a":`))
	_, _ = w.Write([]byte(`1}`))

	// not visible until closed
	if data, _ := m.ReadFile("/out/report.json"); len(data) != 0 {
		t.Errorf("expected empty file before Close, got %q", data)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := m.ReadFile("/out/report.json")
	if err != nil || string(data) != `{"a":1}` {
		t.Errorf("ReadFile = %q, %v", data, err)
	}

	r, err := m.Open("/out/report.json")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	got, _ := io.ReadAll(r)
	if string(got) != `{"a":1}` {
		t.Errorf("Open read %q", got)
	}
}

func TestMemoryFileSystem_NotExist(t *testing.T) {
	m := NewMemoryFileSystem()
	if _, err := m.Open("missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open error = %v, want ErrNotExist", err)
	}
	if _, err := m.ReadFile("missing"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile error = %v, want ErrNotExist", err)
	}
}

func TestMemoryFileSystem_MkdirAllAndExists(t *testing.T) {
	m := NewMemoryFileSystem()
	if err := m.MkdirAll("reports/run1/plots", os.FileMode(0o755)); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	for _, p := range []string{"reports", "reports/run1", "reports/run1/plots"} {
		if !m.Exists(p) {
			t.Errorf("expected %s to exist", p)
		}
	}
	if m.Exists("reports/run2") {
		t.Errorf("unexpected directory")
	}
}

func TestMemoryFileSystem_DataIsolation(t *testing.T) {
	m := NewMemoryFileSystem()
	src := []byte("abc")
	m.WriteFile("f", src)
	src[0] = 'x'

	got, _ := m.ReadFile("f")
	if string(got) != "abc" {
		t.Errorf("stored data changed with caller slice: %q", got)
	}
	got[1] = 'y'
	again, _ := m.ReadFile("f")
	if string(again) != "abc" {
		t.Errorf("stored data changed with returned slice: %q", again)
	}

	if files := m.Files(); len(files) != 1 || files[0] != "f" {
		t.Errorf("Files() = %v", files)
	}
}
