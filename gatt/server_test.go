package gatt

import (
	"io"
	"testing"
	"time"

	"github.com/nimbusvale/directble/att"
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

func heartRateDB() (*Database, uint16, uint16) {
	db := NewDatabase()
	var measurementHandle, cccdHandle uint16
	svc := db.AddService(Service{
		UUID: codec.UUID16(0x180D),
		Characteristics: []Characteristic{
			{
				UUID:       codec.UUID16(0x2A37),
				Properties: PropNotify,
				Perm:       AttrPermission{Read: true},
				Value:      []byte{0x00, 0x48},
			},
			{
				UUID:       codec.UUID16(0x2A38),
				Properties: PropRead,
				Perm:       AttrPermission{Read: true},
				Value:      []byte{0x01},
			},
		},
	})
	measurementHandle = svc.Characteristics[0].ValueHandle()
	cccdHandle, _ = svc.Characteristics[0].CCCDHandle()
	return db, measurementHandle, cccdHandle
}

func TestClientServerDiscoveryAndRead(t *testing.T) {
	db, measurementHandle, _ := heartRateDB()
	clientCh, serverCh := pipeChannelPair()

	srv := NewServer(db, serverCh, nil)
	go srv.Serve()

	cl := NewClient(clientCh)
	cl.Start()
	defer cl.Close()

	if _, err := cl.ExchangeMTU(185); err != nil {
		t.Fatalf("ExchangeMTU: %v", err)
	}

	svcs, err := cl.DiscoverServices()
	if err != nil {
		t.Fatalf("DiscoverServices: %v", err)
	}
	if len(svcs) != 1 || !svcs[0].UUID.Equal(codec.UUID16(0x180D)) {
		t.Fatalf("unexpected services: %+v", svcs)
	}

	chars, err := cl.DiscoverCharacteristics(svcs[0])
	if err != nil {
		t.Fatalf("DiscoverCharacteristics: %v", err)
	}
	if len(chars) != 2 {
		t.Fatalf("got %d characteristics, want 2", len(chars))
	}
	if chars[0].ValueHandle != measurementHandle {
		t.Errorf("value handle = %d, want %d", chars[0].ValueHandle, measurementHandle)
	}
	if chars[0].CCCDHandle == 0 {
		t.Error("expected measurement characteristic to have a CCCD")
	}

	val, err := cl.ReadValue(chars[1].ValueHandle)
	if err != nil {
		t.Fatalf("ReadValue: %v", err)
	}
	if len(val) != 1 || val[0] != 0x01 {
		t.Errorf("read value = %x", val)
	}
}

func TestClientWriteCCCDEnablesNotify(t *testing.T) {
	db, _, cccdHandle := heartRateDB()
	clientCh, serverCh := pipeChannelPair()

	srv := NewServer(db, serverCh, nil)
	var gotNotify bool
	srv.OnConfigChange(func(handle uint16, notify, indicate bool) bool {
		gotNotify = notify
		return true
	})
	go srv.Serve()

	cl := NewClient(clientCh)
	cl.Start()
	defer cl.Close()

	rc := RemoteCharacteristic{CCCDHandle: cccdHandle}
	if err := cl.SetNotify(rc, true, false); err != nil {
		t.Fatalf("SetNotify: %v", err)
	}
	if !gotNotify {
		t.Error("server did not observe notify-enable")
	}
	notify, indicate := srv.NotifyEnabled(cccdHandle)
	if !notify || indicate {
		t.Errorf("NotifyEnabled = (%v, %v), want (true, false)", notify, indicate)
	}
}

func TestServerNotifyDeliversToClient(t *testing.T) {
	db, measurementHandle, _ := heartRateDB()
	clientCh, serverCh := pipeChannelPair()

	srv := NewServer(db, serverCh, nil)
	go srv.Serve()

	cl := NewClient(clientCh)
	received := make(chan []byte, 1)
	cl.SetNotificationHandler(func(handle uint16, value []byte) {
		if handle == measurementHandle {
			received <- value
		}
	})
	cl.Start()
	defer cl.Close()

	if err := srv.Notify(measurementHandle, []byte{0x00, 0x52}); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	select {
	case v := <-received:
		if len(v) != 2 || v[1] != 0x52 {
			t.Errorf("got %x", v)
		}
	case <-time.After(time.Second):
		t.Fatal("notification never arrived")
	}
}

func TestReadUnknownHandleReturnsInvalidHandle(t *testing.T) {
	db, _, _ := heartRateDB()
	clientCh, serverCh := pipeChannelPair()
	srv := NewServer(db, serverCh, nil)
	go srv.Serve()

	cl := NewClient(clientCh)
	cl.Start()
	defer cl.Close()

	_, err := cl.ReadValue(0xBEEF)
	if err == nil {
		t.Fatal("expected error reading unknown handle")
	}
	if e, ok := err.(att.ErrorResponse); !ok || e.Code != att.ErrInvalidHandle {
		t.Fatalf("expected Invalid-Handle error response, got %v", err)
	}
}

func TestReadRequiringEncryptionFailsWithoutIt(t *testing.T) {
	db := NewDatabase()
	svc := db.AddService(Service{
		UUID: codec.UUID16(0x180A),
		Characteristics: []Characteristic{
			{
				UUID:  codec.UUID16(0x2A29),
				Perm:  AttrPermission{Read: true, ReadRequiresEncryption: true},
				Value: []byte("vendor"),
			},
		},
	})
	clientCh, serverCh := pipeChannelPair()
	srv := NewServer(db, serverCh, nil)
	go srv.Serve()

	cl := NewClient(clientCh)
	cl.Start()
	defer cl.Close()

	_, err := cl.ReadValue(svc.Characteristics[0].ValueHandle())
	if err == nil {
		t.Fatal("expected insufficient-encryption error")
	}
}

type fakeSignatureVerifier struct {
	ok bool
}

func (v fakeSignatureVerifier) VerifySignature(opcode att.Opcode, payload []byte, counter uint32, mac [8]byte) bool {
	return v.ok
}

func TestSignedWriteAppliesOnlyWhenVerified(t *testing.T) {
	db := NewDatabase()
	svc := db.AddService(Service{
		UUID: codec.UUID16(0x180A),
		Characteristics: []Characteristic{
			{
				UUID:       codec.UUID16(0x2A29),
				Properties: PropAuthSignedWrite,
				Perm:       AttrPermission{Write: true},
			},
		},
	})
	handle := svc.Characteristics[0].ValueHandle()
	_, serverCh := pipeChannelPair()

	srv := NewServer(db, serverCh, nil)
	srv.SetSignatureVerifier(fakeSignatureVerifier{ok: false})

	signed := att.SignedWriteCommand{Handle: handle, Value: []byte{0xAA}, SignCounter: 1}
	if resp := srv.dispatch(signed); resp != nil {
		t.Fatalf("expected no response for a signed write command, got %+v", resp)
	}
	attr, _ := db.Attr(handle)
	if len(attr.Value) != 0 {
		t.Fatalf("expected write to be dropped when verification fails, got %x", attr.Value)
	}

	srv.SetSignatureVerifier(fakeSignatureVerifier{ok: true})
	if resp := srv.dispatch(signed); resp != nil {
		t.Fatalf("expected no response for a signed write command, got %+v", resp)
	}
	attr, _ = db.Attr(handle)
	if len(attr.Value) != 1 || attr.Value[0] != 0xAA {
		t.Fatalf("expected write to apply once verified, got %x", attr.Value)
	}
}

func TestSignedWriteWithoutVerifierIsRejected(t *testing.T) {
	db := NewDatabase()
	svc := db.AddService(Service{
		UUID: codec.UUID16(0x180A),
		Characteristics: []Characteristic{
			{
				UUID:       codec.UUID16(0x2A29),
				Properties: PropAuthSignedWrite,
				Perm:       AttrPermission{Write: true},
			},
		},
	})
	handle := svc.Characteristics[0].ValueHandle()
	_, serverCh := pipeChannelPair()

	srv := NewServer(db, serverCh, nil)
	signed := att.SignedWriteCommand{Handle: handle, Value: []byte{0xAA}, SignCounter: 1}
	if resp := srv.dispatch(signed); resp != nil {
		t.Fatalf("expected no response for a signed write command, got %+v", resp)
	}
	attr, _ := db.Attr(handle)
	if len(attr.Value) != 0 {
		t.Fatalf("expected write to be dropped with no verifier installed, got %x", attr.Value)
	}
}
