package batch

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadItemsAssignsSequenceNumbers(t *testing.T) {
	input := "first line\n\nthird line\n"
	items, err := ReadItems(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	for i, item := range items {
		if item.Seq != i+1 {
			t.Fatalf("item %d has sequence %d", i, item.Seq)
		}
	}
	if !items[1].Blank() {
		t.Fatal("expected second item blank")
	}
	if items[2].Text != "third line" {
		t.Fatalf("unexpected text %q", items[2].Text)
	}
}

func TestReadItemsEmptyInput(t *testing.T) {
	items, err := ReadItems(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected no items, got %d", len(items))
	}
}

func TestLoadItemsMissingFile(t *testing.T) {
	if _, err := LoadItems(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("expected error for missing input file")
	}
}

func TestLoadItems(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lines.txt")
	if err := os.WriteFile(path, []byte("hello\nworld\n"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	items, err := LoadItems(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 2 || items[1].Text != "world" {
		t.Fatalf("unexpected items %+v", items)
	}
}
