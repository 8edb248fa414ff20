package adapter

import (
	"bytes"
	"testing"
)

func TestBuildEIRIncludesFlagsNameAndServices(t *testing.T) {
	data := buildEIR(AdvReport{
		LocalName:  "probe",
		Flags:      0x06,
		Services16: []uint16{0x180D, 0x180F},
	})

	if len(data) == 0 {
		t.Fatal("expected non-empty EIR payload")
	}
	if got := parseLocalName(data); got != "probe" {
		t.Fatalf("expected local name %q, got %q", "probe", got)
	}

	// Flags AD structure is always first.
	if data[0] != 2 || data[1] != adFlags || data[2] != 0x06 {
		t.Fatalf("expected flags AD structure first, got %v", data[:3])
	}
}

func TestBuildEIRTruncatesAtAdvertisingCap(t *testing.T) {
	longName := bytes.Repeat([]byte{'a'}, 64)
	data := buildEIR(AdvReport{LocalName: string(longName)})
	if len(data) > 31 {
		t.Fatalf("expected EIR payload capped at 31 bytes, got %d", len(data))
	}
}

func TestParseLocalNameMissing(t *testing.T) {
	data := buildEIR(AdvReport{Flags: 0x06})
	if got := parseLocalName(data); got != "" {
		t.Fatalf("expected no name, got %q", got)
	}
}

func TestParseLocalNameMalformedReturnsEmpty(t *testing.T) {
	if got := parseLocalName([]byte{0xFF}); got != "" {
		t.Fatalf("expected empty string for truncated AD data, got %q", got)
	}
}
