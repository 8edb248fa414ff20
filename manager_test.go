package directble

import (
	"testing"

	"github.com/nimbusvale/directble/adapter"
)

func TestNewAdapterOnClosedManagerFails(t *testing.T) {
	m := NewManager(nil, nil)
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := m.NewAdapter(adapter.Options{}); err == nil {
		t.Fatal("expected NewAdapter to fail once the manager is closed")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	m := NewManager(nil, nil)
	if err := m.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}

func TestRemoveAdapterOnMissingIndexIsANoOp(t *testing.T) {
	m := NewManager(nil, nil)
	if err := m.RemoveAdapter(7); err != nil {
		t.Fatalf("expected no-op removal of an absent index, got: %v", err)
	}
}

func TestAdapterLookupMissesAreReported(t *testing.T) {
	m := NewManager(nil, nil)
	if _, ok := m.Adapter(0); ok {
		t.Fatal("expected no adapter registered under index 0")
	}
	if got := m.Adapters(); len(got) != 0 {
		t.Fatalf("expected an empty adapter list, got %d", len(got))
	}
}
