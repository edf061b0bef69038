package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWithinDir(t *testing.T) {
	tmp := t.TempDir()
	safe := filepath.Join(tmp, "safe")
	outside := filepath.Join(tmp, "outside")
	for _, d := range []string{safe, outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	link := filepath.Join(safe, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(safe, "Tag23.json"), false},
		{"missing nested dirs", filepath.Join(safe, "a", "b", "Tag23.json"), false},
		{"dir itself", safe, false},
		{"parent traversal", filepath.Join(safe, "..", "outside", "x.json"), true},
		{"sibling dir", filepath.Join(outside, "x.json"), true},
		{"through symlink", filepath.Join(link, "x.json"), true},
		{"relative escape", "../../../etc/passwd", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithinDir(tt.path, safe)
			if (err != nil) != tt.wantErr {
				t.Errorf("WithinDir(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestSafeFileName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Tag23", "Tag23"},
		{"Tag 23 / rack B", "Tag_23_rack_B"},
		{"../../etc/passwd", "etc_passwd"},
		{"frag-rack_2024.06", "frag-rack_2024.06"},
		{"  ", "session"},
		{"", "session"},
		{"ÄÖÜ", "session"},
		{"..hidden..", "hidden"},
	}
	for _, tt := range tests {
		if got := SafeFileName(tt.in); got != tt.want {
			t.Errorf("SafeFileName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	if got := SafeFileName(string(long)); len(got) != maxNameLen {
		t.Errorf("long label gave %d bytes, want %d", len(got), maxNameLen)
	}
}

func TestExportPath(t *testing.T) {
	dir := t.TempDir()
	got, err := ExportPath(dir, "Tag 23", ".json")
	if err != nil {
		t.Fatalf("ExportPath: %v", err)
	}
	if want := filepath.Join(dir, "Tag_23.json"); got != want {
		t.Errorf("ExportPath = %q, want %q", got, want)
	}

	if err := os.Symlink(filepath.Join(t.TempDir(), "elsewhere.json"), filepath.Join(dir, "Tag7.json")); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	if _, err := ExportPath(dir, "Tag7", ".json"); err == nil {
		t.Error("expected symlinked target to be rejected")
	}

	if _, err := ExportPath("", "Tag7", ".json"); err == nil {
		t.Error("expected empty dir to be rejected")
	}
}
