package embed

import (
	"strings"
	"testing"
)

func TestInputText(t *testing.T) {
	got := InputText("Crash on startup", "stack trace follows")
	want := "Crash on startup\n\nstack trace follows"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if got := InputText("Title only", ""); got != "Title only" {
		t.Errorf("expected bare title, got %q", got)
	}
}

func TestInputTextTruncation(t *testing.T) {
	title := "Crash"
	body := strings.Repeat("x", maxInputChars*2)

	got := InputText(title, body)
	if len(got) != maxInputChars {
		t.Errorf("expected length %d, got %d", maxInputChars, len(got))
	}
	if !strings.HasPrefix(got, title+"\n\n") {
		t.Error("truncation should preserve the title")
	}
}

func TestInputTextHugeTitle(t *testing.T) {
	title := strings.Repeat("t", maxInputChars*2)

	got := InputText(title, "body")
	if len(got) != maxInputChars {
		t.Errorf("expected length %d, got %d", maxInputChars, len(got))
	}
}

func TestInputHashStable(t *testing.T) {
	a := InputHash("same input")
	b := InputHash("same input")
	c := InputHash("different input")

	if a != b {
		t.Error("identical inputs must hash identically")
	}
	if a == c {
		t.Error("different inputs must hash differently")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestCache(t *testing.T) {
	cache := NewCache()

	if _, ok := cache.Get("model-a", "hash1"); ok {
		t.Error("expected miss on empty cache")
	}

	cache.Put("model-a", "hash1", []float32{1, 2})
	got, ok := cache.Get("model-a", "hash1")
	if !ok || len(got) != 2 || got[0] != 1 {
		t.Errorf("unexpected cached value: %v (ok=%v)", got, ok)
	}

	// Same hash under a different model is a separate entry.
	if _, ok := cache.Get("model-b", "hash1"); ok {
		t.Error("expected miss for different model")
	}

	cache.Put("model-b", "hash1", []float32{3})
	if cache.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", cache.Len())
	}
}
