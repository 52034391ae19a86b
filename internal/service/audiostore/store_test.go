package audiostore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"companion/internal/models"
)

func TestSaveWritesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "static", "audio")
	store, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	name, err := store.Save(context.Background(), &models.AudioArtifact{Name: "abc", Extension: ".wav", Data: []byte("RIFF")})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if name != "abc.wav" {
		t.Fatalf("unexpected file name %s", name)
	}
	got, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "RIFF" {
		t.Fatalf("unexpected content %q", got)
	}
}

func TestSaveRejectsUnsafeNames(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, a := range []*models.AudioArtifact{
		{Name: "", Extension: ".wav"},
		{Name: "../escape", Extension: ".wav"},
		{Name: `dir\file`, Extension: ".wav"},
		{Name: ".hidden", Extension: ".wav"},
	} {
		if _, err := store.Save(context.Background(), a); !errors.Is(err, ErrInvalidName) {
			t.Fatalf("Save(%q): expected ErrInvalidName, got %v", a.Name, err)
		}
	}
}
