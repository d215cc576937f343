package filetools

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetMD5Hash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	hash, err := GetMD5Hash(path)
	if err != nil {
		t.Fatalf("GetMD5Hash failed: %v", err)
	}
	if hash != "5eb63bbbe01eeed093cb22bb8f5acdc3" {
		t.Errorf("hash = %s", hash)
	}

	if _, err := GetMD5Hash(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSplitPathBasename(t *testing.T) {
	dir, name, ext := SplitPathBasename("/data/imagery/scene_01.kea")
	if dir != "/data/imagery" || name != "scene_01" || ext != ".kea" {
		t.Errorf("got %q, %q, %q", dir, name, ext)
	}

	_, name, ext = SplitPathBasename("plain")
	if name != "plain" || ext != "" {
		t.Errorf("got %q, %q", name, ext)
	}
}

func TestFindFilesExt(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "nested")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{
		filepath.Join(dir, "a.tif"),
		filepath.Join(dir, "b.TIF"),
		filepath.Join(dir, "c.json"),
		filepath.Join(sub, "d.tif"),
	} {
		if err := os.WriteFile(f, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	found, err := FindFilesExt(dir, ".tif")
	if err != nil {
		t.Fatalf("FindFilesExt failed: %v", err)
	}
	if len(found) != 3 {
		t.Errorf("found %d files, want 3 (case-insensitive, recursive)", len(found))
	}
}

func TestFileIsHidden(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/data/.config", true},
		{"/data/scene.tif", false},
		{".bashrc", true},
		{".", false},
	}
	for _, tt := range tests {
		if got := FileIsHidden(tt.path); got != tt.want {
			t.Errorf("FileIsHidden(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestDeleteFileWithBasename(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"scene.tif", "scene.json", "other.tif"} {
		if err := os.WriteFile(filepath.Join(dir, f), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := DeleteFileWithBasename(filepath.Join(dir, "scene.tif")); err != nil {
		t.Fatalf("DeleteFileWithBasename failed: %v", err)
	}
	if FileExists(filepath.Join(dir, "scene.json")) {
		t.Error("side-car scene.json should be gone")
	}
	if !FileExists(filepath.Join(dir, "other.tif")) {
		t.Error("other.tif should survive")
	}
}

func TestFileExistsAndDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	if FileExists(path) {
		t.Error("file should not exist yet")
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !FileExists(path) {
		t.Error("file should exist")
	}

	if err := DeleteFileSilent(path); err != nil {
		t.Errorf("delete failed: %v", err)
	}
	if err := DeleteFileSilent(path); err != nil {
		t.Errorf("deleting a missing file should not error: %v", err)
	}
}
