package blob

import (
	"os"
	"strings"
	"testing"
)

func TestSaveAndPath(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	fileID, err := s.Save([]byte("%PDF-1.4 test"), "application/pdf")
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if !strings.HasSuffix(fileID, ".pdf") {
		t.Errorf("file id %q missing .pdf extension", fileID)
	}

	path, err := s.Path(fileID)
	if err != nil {
		t.Fatalf("path: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if string(data) != "%PDF-1.4 test" {
		t.Errorf("saved bytes differ: %q", data)
	}
}

func TestPathRejectsTraversal(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, id := range []string{"", "../etc/passwd", "a/b.pdf", `a\b.pdf`, "..", "nope.pdf"} {
		if _, err := s.Path(id); err == nil {
			t.Errorf("Path(%q) accepted, want error", id)
		}
	}
}
