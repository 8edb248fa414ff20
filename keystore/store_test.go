package keystore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStoreSaveLoadDelete(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	k := fullKeyBin()
	if err := s.Save(k); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Load(k.LocalAddr, k.RemoteAddr, k.RemoteAddrType)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("expected a KeyBin, got nil")
	}
	if got.LTKInit.LTK != k.LTKInit.LTK {
		t.Fatalf("loaded LTK mismatch: %x vs %x", got.LTKInit.LTK, k.LTKInit.LTK)
	}

	if err := s.Delete(k.LocalAddr, k.RemoteAddr, k.RemoteAddrType); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	after, err := s.Load(k.LocalAddr, k.RemoteAddr, k.RemoteAddrType)
	if err != nil {
		t.Fatalf("Load after delete: %v", err)
	}
	if after != nil {
		t.Fatal("expected nil KeyBin after delete")
	}
}

func TestStoreLoadMissingReturnsNilNil(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	got, err := s.Load([6]byte{1}, [6]byte{2}, 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for missing key file")
	}
}

func TestStoreSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	k := fullKeyBin()
	if err := s.Save(k); err != nil {
		t.Fatalf("Save: %v", err)
	}
	name := filename(k.LocalAddr, k.RemoteAddr, k.RemoteAddrType)
	tmp := filepath.Join(dir, name+".tmp")
	if _, err := os.Stat(tmp); err == nil {
		t.Fatalf("expected temp file %s to be gone after rename", tmp)
	}
}
