package l2cap

import (
	"io"
	"testing"
	"time"

	"github.com/nimbusvale/directble/codec"
	"github.com/nimbusvale/directble/hcitransport"
)

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

func pipePair() (*pipeSocket, *pipeSocket) {
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	return &pipeSocket{r: ar, w: aw}, &pipeSocket{r: br, w: bw}
}

type fakeTransport struct {
	clientSock, serverSock *pipeSocket
}

func (t *fakeTransport) OpenHCI(int) (hcitransport.Socket, error) { return nil, nil }
func (t *fakeTransport) BindRaw(hcitransport.Socket, hcitransport.Filter) error { return nil }
func (t *fakeTransport) OpenL2CAP(adapterIndex int, addr codec.Address, cid uint16, sec hcitransport.SecurityLevel) (hcitransport.Socket, error) {
	return t.clientSock, nil
}
func (t *fakeTransport) ListenL2CAP(adapterIndex int, cid uint16) (hcitransport.Listener, error) {
	return &fakeListener{sock: t.serverSock}, nil
}

type fakeListener struct{ sock *pipeSocket }

func (l *fakeListener) Accept() (hcitransport.Socket, codec.Address, error) {
	return l.sock, codec.Address{}, nil
}
func (l *fakeListener) Close() error { return nil }

func TestClientServerRoundTrip(t *testing.T) {
	cSock, sSock := pipePair()
	ft := &fakeTransport{clientSock: cSock, serverSock: sSock}

	srv, err := Listen(ft, 0, CIDAtt)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	acceptedCh := make(chan *Channel, 1)
	go func() {
		ch, err := srv.Accept()
		if err != nil {
			t.Error(err)
			return
		}
		acceptedCh <- ch
	}()

	client := NewClient(ft, 0)
	clientCh, err := client.Open(codec.Address{}, CIDAtt, hcitransport.SecurityNone)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer clientCh.Close()

	var serverCh *Channel
	select {
	case serverCh = <-acceptedCh:
	case <-time.After(time.Second):
		t.Fatal("server never accepted")
	}
	defer serverCh.Close()

	if err := clientCh.Write([]byte{0x01, 0x02, 0x03}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 512)
	got, err := serverCh.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(got) != 3 || got[0] != 0x01 {
		t.Errorf("got %x", got)
	}
}

func TestChannelCloseIdempotent(t *testing.T) {
	cSock, _ := pipePair()
	ch := newChannel(cSock, CIDAtt, codec.Address{})
	if err := ch.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
}

func TestChannelReadAfterCloseFails(t *testing.T) {
	cSock, _ := pipePair()
	ch := newChannel(cSock, CIDAtt, codec.Address{})
	ch.Close()
	buf := make([]byte, 32)
	_, err := ch.Read(buf)
	if err == nil {
		t.Fatal("expected error reading from closed channel")
	}
}
