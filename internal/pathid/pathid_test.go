package pathid

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "notes/a.md", want: "notes/a.md"},
		{name: "windows separators", in: `notes\sub\a.md`, want: "notes/sub/a.md"},
		{name: "leading dot slash", in: "./notes/a.md", want: "notes/a.md"},
		{name: "inner dot segment", in: "notes/./a.md", want: "notes/a.md"},
		{name: "repeated separators", in: "notes//a.md", want: "notes/a.md"},
		{name: "trailing separator", in: "notes/", want: "notes"},
		{name: "case preserved", in: "Notes/A.MD", want: "Notes/A.MD"},
		{name: "dot file", in: ".obsidian/app.json", want: ".obsidian/app.json"},
		{name: "colon in first segment", in: "a:b.md", want: "a:b.md"},
		{name: "drive letter without root", in: "c:notes/a.md", want: "c:notes/a.md"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Clean(tt.in)
			if err != nil {
				t.Fatalf("Clean(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestClean_RejectsTraversal(t *testing.T) {
	inputs := []string{
		"../etc/passwd",
		"notes/../../etc/passwd",
		"notes/..",
		`..\windows\system32`,
		"/etc/passwd",
		`\\server\share\file`,
		"C:/Windows/win.ini",
		`c:\boot.ini`,
		"notes/a\x00.md",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Clean(in)
			if !errors.Is(err, ErrTraversalRejected) {
				t.Errorf("Clean(%q) error = %v, want ErrTraversalRejected", in, err)
			}
		})
	}
}

func TestClean_RejectsEmpty(t *testing.T) {
	for _, in := range []string{"", ".", "./", "./."} {
		if _, err := Clean(in); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Clean(%q) error = %v, want ErrInvalidPath", in, err)
		}
	}
}

func TestCanonicalize(t *testing.T) {
	t.Run("absolute path inside root", func(t *testing.T) {
		root := t.TempDir()
		p := filepath.Join(root, "notes", "a.md")
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}

		got, err := Canonicalize(root, p)
		if err != nil {
			t.Fatalf("Canonicalize() error = %v", err)
		}
		if got != "notes/a.md" {
			t.Errorf("Canonicalize() = %q, want %q", got, "notes/a.md")
		}
	})

	t.Run("relative path", func(t *testing.T) {
		root := t.TempDir()
		got, err := Canonicalize(root, filepath.Join("sub", "b.txt"))
		if err != nil {
			t.Fatalf("Canonicalize() error = %v", err)
		}
		if got != "sub/b.txt" {
			t.Errorf("Canonicalize() = %q, want %q", got, "sub/b.txt")
		}
	})

	t.Run("deleted file resolves through ancestor", func(t *testing.T) {
		root := t.TempDir()
		got, err := Canonicalize(root, filepath.Join(root, "gone", "c.txt"))
		if err != nil {
			t.Fatalf("Canonicalize() error = %v", err)
		}
		if got != "gone/c.txt" {
			t.Errorf("Canonicalize() = %q, want %q", got, "gone/c.txt")
		}
	})

	t.Run("rejects path outside root", func(t *testing.T) {
		root := t.TempDir()
		_, err := Canonicalize(root, filepath.Join(root, "..", "escape.txt"))
		if !errors.Is(err, ErrTraversalRejected) {
			t.Errorf("Canonicalize() error = %v, want ErrTraversalRejected", err)
		}
	})

	t.Run("rejects symlink escaping root", func(t *testing.T) {
		root := t.TempDir()
		outside := t.TempDir()
		secret := filepath.Join(outside, "secret.txt")
		if err := os.WriteFile(secret, []byte("s"), 0644); err != nil {
			t.Fatal(err)
		}
		link := filepath.Join(root, "link.txt")
		if err := os.Symlink(secret, link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}

		_, err := Canonicalize(root, link)
		if !errors.Is(err, ErrTraversalRejected) {
			t.Errorf("Canonicalize() error = %v, want ErrTraversalRejected", err)
		}
	})

	t.Run("rejects file below symlinked dir escaping root", func(t *testing.T) {
		root := t.TempDir()
		outside := t.TempDir()
		if err := os.Symlink(outside, filepath.Join(root, "out")); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}

		_, err := Canonicalize(root, filepath.Join(root, "out", "new.txt"))
		if !errors.Is(err, ErrTraversalRejected) {
			t.Errorf("Canonicalize() error = %v, want ErrTraversalRejected", err)
		}
	})

	t.Run("allows symlink inside root", func(t *testing.T) {
		root := t.TempDir()
		target := filepath.Join(root, "real.txt")
		if err := os.WriteFile(target, []byte("r"), 0644); err != nil {
			t.Fatal(err)
		}
		link := filepath.Join(root, "alias.txt")
		if err := os.Symlink(target, link); err != nil {
			t.Skipf("symlinks unavailable: %v", err)
		}

		got, err := Canonicalize(root, link)
		if err != nil {
			t.Fatalf("Canonicalize() error = %v", err)
		}
		if got != "alias.txt" {
			t.Errorf("Canonicalize() = %q, want %q", got, "alias.txt")
		}
	})
}

func TestFilter(t *testing.T) {
	f, err := NewFilter(true, []string{"build", "./cache/tmp/"})
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"notes/a.md", true},
		{".obsidian/app.json", false},
		{"notes/.hidden/a.md", false},
		{"notes/.env", false},
		{"build", false},
		{"build/out.bin", false},
		{"buildings/plan.txt", true},
		{"cache/tmp/x", false},
		{"cache/tmpfile", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := f.Allows(tt.path); got != tt.want {
				t.Errorf("Allows(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}

	t.Run("dot dirs allowed when flag unset", func(t *testing.T) {
		f, err := NewFilter(false, nil)
		if err != nil {
			t.Fatalf("NewFilter() error = %v", err)
		}
		if !f.Allows(".obsidian/app.json") {
			t.Error("Allows(.obsidian/app.json) = false, want true")
		}
	})

	t.Run("rejects escaping excluded dir", func(t *testing.T) {
		_, err := NewFilter(false, []string{"../outside"})
		if !errors.Is(err, ErrTraversalRejected) {
			t.Errorf("NewFilter() error = %v, want ErrTraversalRejected", err)
		}
	})
}
