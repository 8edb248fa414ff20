package hci

import (
	"io"
	"testing"
	"time"

	"github.com/nimbusvale/directble/codec"
	"github.com/nimbusvale/directble/hcitransport"
)

// pipeSocket pairs an io.Pipe into a Socket for test doubles.
type pipeSocket struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (s *pipeSocket) Read(p []byte) (int, error)  { return s.r.Read(p) }
func (s *pipeSocket) Write(p []byte) (int, error) { return s.w.Write(p) }
func (s *pipeSocket) Close() error {
	s.r.Close()
	return s.w.Close()
}

type fakeTransport struct {
	hostSock *pipeSocket // handed to the Handler
	ctrlR    *io.PipeReader
	ctrlW    *io.PipeWriter
}

func newFakeTransport() *fakeTransport {
	hostR, ctrlW := io.Pipe() // controller -> host
	ctrlR, hostW := io.Pipe() // host -> controller
	return &fakeTransport{
		hostSock: &pipeSocket{r: hostR, w: hostW},
		ctrlR:    ctrlR,
		ctrlW:    ctrlW,
	}
}

func (t *fakeTransport) OpenHCI(int) (hcitransport.Socket, error) { return t.hostSock, nil }
func (t *fakeTransport) BindRaw(hcitransport.Socket, hcitransport.Filter) error { return nil }
func (t *fakeTransport) OpenL2CAP(int, codec.Address, uint16, hcitransport.SecurityLevel) (hcitransport.Socket, error) {
	return nil, nil
}
func (t *fakeTransport) ListenL2CAP(int, uint16) (hcitransport.Listener, error) { return nil, nil }

// readCommand reads one HCI command packet written by the handler and
// returns its opcode and parameter bytes.
func readCommand(t *testing.T, r *io.PipeReader) (opcode, []byte) {
	t.Helper()
	hdr := make([]byte, 4)
	if _, err := io.ReadFull(r, hdr); err != nil {
		t.Fatalf("read header: %v", err)
	}
	op := opcode(uint16(hdr[1]) | uint16(hdr[2])<<8)
	plen := int(hdr[3])
	params := make([]byte, plen)
	if plen > 0 {
		if _, err := io.ReadFull(r, params); err != nil {
			t.Fatalf("read params: %v", err)
		}
	}
	return op, params
}

func writeCommandComplete(w *io.PipeWriter, op opcode, status Status) {
	body := []byte{0x01, byte(op), byte(op >> 8), byte(status)}
	pkt := append([]byte{packetTypeEvent, byte(EventCommandComplete), byte(len(body))}, body...)
	w.Write(pkt)
}

func TestSendCommandRoundTrip(t *testing.T) {
	ft := newFakeTransport()
	h := NewHandler(ft, 0, nil)
	h.sock = ft.hostSock
	h.readerWG.Add(1)
	go h.readLoop()
	defer h.Close()

	go func() {
		op, _ := readCommand(t, ft.ctrlR)
		writeCommandComplete(ft.ctrlW, op, StatusSuccess)
	}()

	if _, err := h.SendCommand(reset{}, time.Second); err != nil {
		t.Fatalf("SendCommand: %v", err)
	}
}

func TestSendCommandTimeout(t *testing.T) {
	ft := newFakeTransport()
	h := NewHandler(ft, 0, nil)
	h.sock = ft.hostSock
	h.readerWG.Add(1)
	go h.readLoop()
	defer h.Close()

	go readCommand(t, ft.ctrlR) // drain the write but never reply

	_, err := h.SendCommand(reset{}, 30*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	cerr, ok := err.(*codec.Error)
	if !ok || cerr.Kind != codec.KindTimeout {
		t.Fatalf("expected KindTimeout, got %v", err)
	}
}

func TestDisconnectionRemovesRegistryAndNotifies(t *testing.T) {
	ft := newFakeTransport()
	h := NewHandler(ft, 0, nil)
	h.sock = ft.hostSock
	h.registry.add(&Conn{Handle: 0x40, Role: RoleCentral})

	gotCh := make(chan DisconnectionEvent, 1)
	h.AddListener(testListener{onDisc: func(e DisconnectionEvent) { gotCh <- e }})

	body := []byte{0x00, 0x40, 0x00, 0x13}
	pkt := append([]byte{byte(EventDisconnectionComplete), byte(len(body))}, body...)
	h.handleEvent(pkt)

	select {
	case ev := <-gotCh:
		if ev.Handle != 0x40 {
			t.Errorf("handle = %#x, want 0x40", ev.Handle)
		}
	case <-time.After(time.Second):
		t.Fatal("no disconnection event delivered")
	}
	if _, ok := h.ConnByHandle(0x40); ok {
		t.Error("connection still registered after disconnection")
	}
}

type testListener struct {
	DefaultListener
	onDisc func(DisconnectionEvent)
}

func (l testListener) HandleDisconnection(e DisconnectionEvent) {
	if l.onDisc != nil {
		l.onDisc(e)
	}
}
