package clipboard_atotto

import (
	"testing"

	"github.com/atotto/clipboard"
)

func TestCopy_UsesWriter(t *testing.T) {
	if clipboard.Unsupported {
		t.Skip("no clipboard on this system")
	}

	var got string
	c := &Clipboard{write: func(s string) error { got = s; return nil }}
	if err := c.Copy("https://example.com/p/1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "https://example.com/p/1" {
		t.Errorf("copied %q", got)
	}
}
