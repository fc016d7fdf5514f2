package checksum

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSum_Known(t *testing.T) {
	const empty = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := Sum(nil); got != empty {
		t.Errorf("Sum(nil) = %s, want %s", got, empty)
	}
}

func TestReaderMatchesSum(t *testing.T) {
	data := strings.Repeat("see b.md\n", 10000)
	got, err := Reader(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Reader: %v", err)
	}
	if want := Sum([]byte(data)); got != want {
		t.Errorf("Reader = %s, want %s", got, want)
	}
}

func TestFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "a.md")
	data := []byte("# A\nsee b.md")
	if err := os.WriteFile(p, data, 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := File(p)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if got != Sum(data) {
		t.Errorf("File = %s, want %s", got, Sum(data))
	}

	_, err = File(filepath.Join(t.TempDir(), "missing.md"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v, want ErrNotExist", err)
	}
}
