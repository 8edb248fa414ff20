package adapter

import (
	"github.com/nimbusvale/directble/codec"
	"github.com/nimbusvale/directble/gatt"
	"github.com/nimbusvale/directble/hci"
	"github.com/nimbusvale/directble/hcitransport"
	"github.com/nimbusvale/directble/l2cap"
	"github.com/nimbusvale/directble/smp"
)

// ConnectOptions configures a Connect call: the connection parameters to
// request and the minimum security the caller needs before it is satisfied.
type ConnectOptions struct {
	Params        hci.ConnParams
	Security      SecurityLevel
	Local         smp.LocalConfig
	Passkey       smp.PasskeyProvider
	NumericCompare smp.NumericComparisonProvider
}

// Connect performs the full client-role connection sequence spec §4.6/§9
// names: create the LE link, satisfy the requested security level (reusing
// a stored KeyBin when one exists, otherwise pairing as initiator), open
// the ATT channel, and run service discovery, ending in StateReady.
//
// For every call that reaches StateReady there is a preceding
// deviceConnected and a devicePairingState(COMPLETED|NONE) in some order,
// per spec §8's property — both are emitted by this function or by the
// hciListener binding that observed the HCI connection-complete event.
func (a *Adapter) Connect(addr codec.Address, opts ConnectOptions) (*Device, error) {
	a.upsertDevice(addr, func(d *Device) { d.State = StateConnecting })

	conn, err := a.hci.CreateLEConnection(addr, opts.Params, a.cfg.Timeouts.HCICommand)
	if err != nil {
		a.upsertDevice(addr, func(d *Device) { d.State = StateDisconnected })
		return nil, err
	}
	a.bindHandle(addr, conn.Handle)

	if opts.Security != SecurityNone {
		if err := a.satisfySecurity(addr, conn.Handle, opts); err != nil {
			return nil, err
		}
	} else {
		a.notifyPairingState(addr, PairingNone, PairingMethodNone)
	}

	att, err := a.l2capC.Open(addr, l2cap.CIDAtt, toTransportSecLevel(opts.Security))
	if err != nil {
		return nil, err
	}
	client := gatt.NewClient(att)
	client.Start()

	if _, err := client.ExchangeMTU(gatt.DefaultMTU); err != nil {
		a.log.WithError(err).Debug("MTU exchange failed, continuing at default MTU")
	}
	if _, err := client.DiscoverServices(); err != nil {
		_ = att.Close()
		return nil, err
	}

	d := a.upsertDevice(addr, func(d *Device) {
		d.State = StateReady
		d.GATTClient = client
	})
	a.onDeviceReachedReady(addr, hci.DefaultScanParams())

	go a.runReady(d)
	return d, nil
}

func (a *Adapter) runReady(d *Device) {
	for _, l := range a.listeners.snapshot() {
		l.DeviceReady(d)
	}
}

// satisfySecurity loads a stored KeyBin for addr and requests encryption
// with it if one exists; otherwise it pairs as the initiator and persists
// whatever the peer distributes.
func (a *Adapter) satisfySecurity(addr codec.Address, handle uint16, opts ConnectOptions) error {
	kb, err := a.keys.Load(a.localAddrBytes(), addr.Bytes, uint8(addr.Type))
	if err != nil {
		return err
	}
	enc := &hciEncryptor{h: a.hci, handle: handle}

	if kb != nil && kb.LTKInit != nil {
		a.notifyPairingState(addr, PairingInProgress, PairingMethodPrePaired)
		if err := enc.StartEncryption(kb.LTKInit.LTK, kb.LTKInit.Rand, kb.LTKInit.EDIV); err != nil {
			return err
		}
		a.notifyPairingState(addr, PairingCompleted, PairingMethodPrePaired)
		a.onDevicePaired(addr, hci.DefaultScanParams())
		return nil
	}

	smpCh, err := a.l2capC.Open(addr, l2cap.CIDSmp, hcitransport.SecurityNone)
	if err != nil {
		return err
	}
	defer smpCh.Close()

	a.notifyPairingState(addr, PairingInProgress, PairingMethodNone)
	mgr := smp.NewManager(smpCh, opts.Local, a.localAddr, addr, uint8(a.localAddr.Type), uint8(addr.Type))
	if opts.Passkey != nil {
		mgr.SetPasskeyProvider(opts.Passkey)
	}
	if opts.NumericCompare != nil {
		mgr.SetNumericComparisonProvider(opts.NumericCompare)
	}

	keys, err := mgr.PairAsInitiator(enc)
	if err != nil {
		a.notifyPairingState(addr, PairingFailed, PairingMethodNone)
		return err
	}

	a.persistKeys(addr, keys, true)
	a.notifyPairingState(addr, PairingCompleted, pairingMethodFor(opts.Local))
	a.onDevicePaired(addr, hci.DefaultScanParams())
	return nil
}

func (a *Adapter) notifyPairingState(addr codec.Address, state PairingState, method PairingMethod) {
	d := a.upsertDevice(addr, func(d *Device) {
		d.PairingState = state
		d.PairingMethod = method
	})
	for _, l := range a.listeners.snapshot() {
		l.DevicePairingState(d, state, method)
	}
}

func pairingMethodFor(cfg smp.LocalConfig) PairingMethod {
	if cfg.MITM {
		return PairingMethodNumericComparison
	}
	return PairingMethodJustWorks
}

func (a *Adapter) persistKeys(addr codec.Address, keys *smp.KeySet, initiator bool) {
	if keys == nil {
		return
	}
	kb, err := a.keys.Load(a.localAddrBytes(), addr.Bytes, uint8(addr.Type))
	if err != nil {
		kb = nil
	}
	if kb == nil {
		kb = newEmptyKeyBin(a.localAddrBytes(), addr.Bytes, uint8(addr.Type))
	}
	mergeKeySetInto(kb, keys, initiator)
	if err := a.keys.Save(kb); err != nil {
		a.log.WithError(err).Warn("persisting bond keys failed")
	}
}

func toTransportSecLevel(s SecurityLevel) hcitransport.SecurityLevel {
	switch s {
	case SecurityEncAuth:
		return hcitransport.SecurityEncAuth
	case SecurityEncOnly:
		return hcitransport.SecurityEncOnly
	default:
		return hcitransport.SecurityNone
	}
}
