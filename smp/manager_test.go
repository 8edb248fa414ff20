package smp

import (
	"io"
	"testing"

	"github.com/nimbusvale/directble/codec"
)

type pipeChannel struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (c *pipeChannel) Read(buf []byte) ([]byte, error) {
	n, err := c.r.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
func (c *pipeChannel) Write(pdu []byte) error { _, err := c.w.Write(pdu); return err }
func (c *pipeChannel) Close() error {
	c.r.Close()
	return c.w.Close()
}

func pipeChannelPair() (*pipeChannel, *pipeChannel) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &pipeChannel{r: ar, w: aw}, &pipeChannel{r: br, w: bw}
}

type fakeEncryptor struct{ started, replied bool }

func (f *fakeEncryptor) StartEncryption(key [16]byte, rnd [8]byte, ediv uint16) error {
	f.started = true
	return nil
}
func (f *fakeEncryptor) ReplyLongTermKey(key [16]byte) error {
	f.replied = true
	return nil
}

func addr(b byte) codec.Address {
	return codec.Address{Bytes: [6]byte{b, b, b, b, b, b}, Type: codec.AddressPublic}
}

func TestPairJustWorksLegacyDerivesMatchingSTK(t *testing.T) {
	central, peripheral := pipeChannelPair()
	localA, localB := addr(0xAA), addr(0xBB)

	cfg := LocalConfig{IOCapability: IONoInputNoOutput, Bonding: true, MaxEncKeySize: 16}

	mc := NewManager(central, cfg, localA, localB, 0, 0)
	mp := NewManager(peripheral, cfg, localB, localA, 0, 0)

	type result struct {
		ks  *KeySet
		err error
	}
	initCh := make(chan result, 1)
	respCh := make(chan result, 1)

	go func() {
		ks, err := mc.PairAsInitiator(&fakeEncryptor{})
		initCh <- result{ks, err}
	}()
	go func() {
		ks, err := mp.PairAsResponder(&fakeEncryptor{})
		respCh <- result{ks, err}
	}()

	ir := <-initCh
	rr := <-respCh
	if ir.err != nil {
		t.Fatalf("initiator pairing failed: %v", ir.err)
	}
	if rr.err != nil {
		t.Fatalf("responder pairing failed: %v", rr.err)
	}
	if ir.ks.LTK != rr.ks.LTK {
		t.Fatalf("STK mismatch: initiator %x responder %x", ir.ks.LTK, rr.ks.LTK)
	}
	if mc.State() != StateBonded || mp.State() != StateBonded {
		t.Fatalf("expected both sides bonded, got %v / %v", mc.State(), mp.State())
	}
}

func TestPairSecureConnectionsJustWorksDerivesMatchingLTK(t *testing.T) {
	central, peripheral := pipeChannelPair()
	localA, localB := addr(0x11), addr(0x22)

	cfg := LocalConfig{IOCapability: IONoInputNoOutput, Bonding: true, SecureConnections: true, MaxEncKeySize: 16}

	mc := NewManager(central, cfg, localA, localB, 0, 0)
	mp := NewManager(peripheral, cfg, localB, localA, 0, 0)

	type result struct {
		ks  *KeySet
		err error
	}
	initCh := make(chan result, 1)
	respCh := make(chan result, 1)

	go func() {
		ks, err := mc.PairAsInitiator(&fakeEncryptor{})
		initCh <- result{ks, err}
	}()
	go func() {
		ks, err := mp.PairAsResponder(&fakeEncryptor{})
		respCh <- result{ks, err}
	}()

	ir := <-initCh
	rr := <-respCh
	if ir.err != nil {
		t.Fatalf("initiator pairing failed: %v", ir.err)
	}
	if rr.err != nil {
		t.Fatalf("responder pairing failed: %v", rr.err)
	}
	if ir.ks.LTK != rr.ks.LTK {
		t.Fatalf("LTK mismatch: initiator %x responder %x", ir.ks.LTK, rr.ks.LTK)
	}
	if !ir.ks.SecureConnections || !rr.ks.SecureConnections {
		t.Fatal("expected both sides to record SecureConnections")
	}
}

func TestSelectMethodTable(t *testing.T) {
	cases := []struct {
		name              string
		localIO, peerIO   IOCapability
		localOOB, peerOOB bool
		mitm              bool
		want              Method
	}{
		{"no mitm always just works", IOKeyboardOnly, IODisplayOnly, false, false, false, MethodJustWorks},
		{"both OOB wins", IODisplayOnly, IOKeyboardOnly, true, true, true, MethodOutOfBand},
		{"no-input-no-output forces just works", IONoInputNoOutput, IOKeyboardOnly, false, false, true, MethodJustWorks},
		{"display-yes-no pair numeric comparison", IODisplayYesNo, IODisplayYesNo, false, false, true, MethodNumericComparison},
		{"keyboard only triggers passkey", IOKeyboardOnly, IODisplayOnly, false, false, true, MethodPasskeyEntry},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := selectMethod(c.localIO, c.peerIO, c.localOOB, c.peerOOB, c.mitm)
			if got != c.want {
				t.Errorf("selectMethod(%v,%v,%v,%v,%v) = %v, want %v", c.localIO, c.peerIO, c.localOOB, c.peerOOB, c.mitm, got, c.want)
			}
		})
	}
}

func TestFailSendsPairingFailedAndTransitions(t *testing.T) {
	a, b := pipeChannelPair()
	m := NewManager(a, LocalConfig{}, addr(1), addr(2), 0, 0)

	done := make(chan struct{})
	go func() {
		buf := make([]byte, 32)
		pdu, err := b.Read(buf)
		if err != nil {
			t.Errorf("read: %v", err)
		}
		if len(pdu) < 1 || Code(pdu[0]) != CodePairingFailed {
			t.Errorf("expected pairing-failed PDU, got %x", pdu)
		}
		close(done)
	}()

	err := m.fail(ReasonInvalidParameters)
	if err == nil {
		t.Fatal("expected error from fail")
	}
	<-done
	if m.State() != StateFailed {
		t.Fatalf("expected StateFailed, got %v", m.State())
	}
}
