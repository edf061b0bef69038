package fsutil

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"testing"
)

func TestOSFileSystem_WriteReadStat(t *testing.T) {
	var fsys OSFileSystem
	path := filepath.Join(t.TempDir(), "nested", "scales.txt")

	if err := fsys.WriteFile(path, []byte("a,b,1,0.1\n"), 0o644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if string(data) != "a,b,1,0.1\n" {
		t.Errorf("ReadFile = %q", data)
	}

	info, err := fsys.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Size() != int64(len(data)) {
		t.Errorf("Size = %d, want %d", info.Size(), len(data))
	}

	rc, err := fsys.Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer rc.Close()
	got, _ := io.ReadAll(rc)
	if string(got) != string(data) {
		t.Errorf("Open content = %q", got)
	}
}

func TestMemoryFileSystem_OpenCountsAndCleansPaths(t *testing.T) {
	m := NewMemoryFileSystem().AddFile("/scales/./rack.txt", "p1,p2,9.9,0.002\n")

	for i := 0; i < 2; i++ {
		rc, err := m.Open("/scales/rack.txt")
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		data, _ := io.ReadAll(rc)
		rc.Close()
		if string(data) != "p1,p2,9.9,0.002\n" {
			t.Errorf("content = %q", data)
		}
	}
	if got := m.Opens("/scales/rack.txt"); got != 2 {
		t.Errorf("Opens = %d, want 2", got)
	}
}

func TestMemoryFileSystem_Missing(t *testing.T) {
	m := NewMemoryFileSystem()

	if _, err := m.Open("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Open err = %v, want ErrNotExist", err)
	}
	if _, err := m.ReadFile("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("ReadFile err = %v, want ErrNotExist", err)
	}
	if _, err := m.Stat("nope"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Stat err = %v, want ErrNotExist", err)
	}
}

func TestMemoryFileSystem_DataIsolation(t *testing.T) {
	m := NewMemoryFileSystem()
	data := []byte("original")
	if err := m.WriteFile("f", data, 0o644); err != nil {
		t.Fatal(err)
	}
	data[0] = 'X'

	got, _ := m.ReadFile("f")
	if string(got) != "original" {
		t.Errorf("stored data mutated: %q", got)
	}
	got[0] = 'Y'
	again, _ := m.ReadFile("f")
	if string(again) != "original" {
		t.Errorf("returned slice aliases storage: %q", again)
	}
}
