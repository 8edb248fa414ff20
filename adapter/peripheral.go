package adapter

import (
	"github.com/nimbusvale/directble/att"
	"github.com/nimbusvale/directble/codec"
	"github.com/nimbusvale/directble/gatt"
	"github.com/nimbusvale/directble/l2cap"
	"github.com/nimbusvale/directble/smp"
)

// csrkVerifier implements gatt.SignatureVerifier by looking up the peer's
// stored CSRK and enforcing a strictly increasing sign counter, rejecting
// replays of a previously accepted Signed-Write-Command.
type csrkVerifier struct {
	a    *Adapter
	peer codec.Address
}

func (v *csrkVerifier) VerifySignature(opcode att.Opcode, payload []byte, counter uint32, mac [8]byte) bool {
	kb, err := v.a.keys.Load(v.a.localAddrBytes(), v.peer.Bytes, uint8(v.peer.Type))
	if err != nil || kb == nil || kb.CSRK == nil {
		return false
	}
	if counter < kb.CSRK.SignCounter {
		return false // replay of an already-consumed counter
	}
	if !smp.VerifySignature(kb.CSRK.CSRK, byte(opcode), payload, counter, mac) {
		return false
	}
	kb.CSRK.SignCounter = counter + 1
	if err := v.a.keys.Save(kb); err != nil {
		v.a.log.WithError(err).Warn("failed to persist advanced sign counter")
	}
	return true
}

// gattSecurity adapts one connection's live Device record to
// gatt.SecurityState, so the server's per-attribute permission checks see
// the link's actual encryption/authentication status.
type gattSecurity struct {
	a    *Adapter
	addr func() (encrypted, authenticated bool)
}

func (s gattSecurity) Encrypted() bool     { e, _ := s.addr(); return e }
func (s gattSecurity) Authenticated() bool { _, auth := s.addr(); return auth }

// ServePeripheral opens the fixed ATT and SMP listening endpoints for this
// adapter's role and accepts connections until Close, handing each one to
// db. One goroutine per accepted ATT channel runs the GATT server's request
// dispatcher (spec §5: "one L2CAP reader per open ATT/SMP channel"); one
// per accepted SMP channel answers pairing requests as the responder.
func (a *Adapter) ServePeripheral(db *gatt.Database, local smp.LocalConfig) error {
	attSrv, err := l2cap.Listen(a.transportFor(), a.adapterIndex(), l2cap.CIDAtt)
	if err != nil {
		return err
	}
	smpSrv, err := l2cap.Listen(a.transportFor(), a.adapterIndex(), l2cap.CIDSmp)
	if err != nil {
		_ = attSrv.Close()
		return err
	}
	a.l2capS = attSrv
	a.gattDB = db

	a.wg.Add(2)
	go a.acceptATT(attSrv, db)
	go a.acceptSMP(smpSrv, local)
	return nil
}

func (a *Adapter) acceptATT(srv *l2cap.Server, db *gatt.Database) {
	defer a.wg.Done()
	for {
		ch, err := srv.Accept()
		if err != nil {
			select {
			case <-a.closeCh:
				return
			default:
				a.log.WithError(err).Warn("ATT accept failed")
				return
			}
		}
		peer := ch.Peer()
		sec := gattSecurity{a: a, addr: func() (bool, bool) {
			d, ok := a.Device(peer)
			if !ok {
				return false, false
			}
			return d.SecurityLevel >= SecurityEncOnly, d.SecurityLevel >= SecurityEncAuth
		}}
		srv := gatt.NewServer(db, ch, sec)
		srv.OnConfigChange(func(handle uint16, notify, indicate bool) bool { return true })
		srv.SetSignatureVerifier(&csrkVerifier{a: a, peer: peer})

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			if err := srv.Serve(); err != nil {
				a.log.WithError(err).Debug("GATT server session ended")
			}
		}()
	}
}

func (a *Adapter) acceptSMP(srv *l2cap.Server, local smp.LocalConfig) {
	defer a.wg.Done()
	for {
		ch, err := srv.Accept()
		if err != nil {
			select {
			case <-a.closeCh:
				return
			default:
				a.log.WithError(err).Warn("SMP accept failed")
				return
			}
		}
		peer := ch.Peer()
		d, _ := a.Device(peer)
		handle := uint16(0)
		if d != nil {
			handle = d.Handle
		}
		mgr := smp.NewManager(ch, local, a.localAddr, peer, uint8(a.localAddr.Type), uint8(peer.Type))
		a.notifyPairingState(peer, PairingInProgress, PairingMethodNone)

		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			defer ch.Close()
			keys, err := mgr.PairAsResponder(&hciEncryptor{h: a.hci, handle: handle})
			if err != nil {
				a.notifyPairingState(peer, PairingFailed, PairingMethodNone)
				return
			}
			a.persistKeys(peer, keys, false)
			a.notifyPairingState(peer, PairingCompleted, pairingMethodFor(local))
		}()
	}
}

func (a *Adapter) transportFor() interface {
	OpenHCI(int) (interface{ Read([]byte) (int, error) }, error)
} {
	panic("unused: see adapterTransport")
}
