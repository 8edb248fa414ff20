package adapter

import (
	"fmt"

	"github.com/nimbusvale/directble/codec"
	"github.com/nimbusvale/directble/hci"
	"github.com/nimbusvale/directble/smp"
)

// hciListener bridges the HCI handler's non-correlated event fan-out (spec
// §4.1) into the adapter's device table and status-listener callbacks (spec
// §4.6). Embedding hci.DefaultListener means new Listener methods added to
// hci default to a no-op here instead of breaking this binding.
type hciListener struct {
	hci.DefaultListener
	a *Adapter
}

func (l *hciListener) HandleAdvertisingReport(ev hci.AdvertisingReportEvent) {
	a := l.a
	name := parseLocalName(ev.Data)
	identity, resolved := a.resolveIdentity(ev.Addr)

	d := a.upsertDevice(ev.Addr, func(d *Device) {
		d.RSSI = ev.RSSI
		if name != "" {
			d.Name = name
		}
		if resolved {
			d.IdentityAddr = identity
		}
	})
	a.recent.Add(ev.Addr, struct{}{})

	owned := false
	for _, sl := range a.listeners.snapshot() {
		if sl.DeviceFound(d) {
			owned = true
			break
		}
	}
	if !owned {
		for _, sl := range a.listeners.snapshot() {
			sl.DeviceUpdated(d)
		}
	}
}

func (l *hciListener) HandleConnectionComplete(ev hci.ConnectionCompleteEvent) {
	a := l.a
	if !ev.Status.OK() {
		return
	}
	a.bindHandle(ev.Addr, ev.Handle)
	identity, resolved := a.resolveIdentity(ev.Addr)
	d := a.upsertDevice(ev.Addr, func(d *Device) {
		d.State = StateConnected
		d.Handle = ev.Handle
		if resolved {
			d.IdentityAddr = identity
		}
	})
	a.addDevicePausingDiscovery(ev.Addr)

	if ev.Role == hci.RolePeripheral {
		// We are advertising; the controller stopped advertising for us on
		// the incoming connection, per spec §4.6.
		a.advMu.Lock()
		a.advertising = false
		a.advMu.Unlock()
	}

	for _, sl := range a.listeners.snapshot() {
		sl.DeviceConnected(d)
	}
}

func (l *hciListener) HandleDisconnection(ev hci.DisconnectionEvent) {
	a := l.a
	addr, ok := a.deviceByHandle(ev.Handle)
	if !ok {
		return
	}
	d := a.upsertDevice(addr, func(d *Device) { d.State = StateDisconnected })
	a.removeDevice(addr)

	var reason error
	if !ev.Reason.OK() {
		reason = codec.NewError(codec.KindDisconnected, "HandleDisconnection", fmt.Sprintf("reason 0x%02X", uint8(ev.Reason)), nil)
	}
	for _, sl := range a.listeners.snapshot() {
		sl.DeviceDisconnected(d, reason)
	}
	a.onDeviceDisconnected(addr, hci.DefaultScanParams())
}

func (l *hciListener) HandleEncryptionChange(ev hci.EncryptionChangeEvent) {
	a := l.a
	addr, ok := a.deviceByHandle(ev.Handle)
	if !ok {
		return
	}
	a.upsertDevice(addr, func(d *Device) {
		if ev.Status.OK() && ev.Encrypted {
			d.SecurityLevel = SecurityEncOnly
		}
	})
}

func (l *hciListener) HandleLongTermKeyRequest(ev hci.LongTermKeyRequestEvent) {
	a := l.a
	addr, ok := a.deviceByHandle(ev.Handle)
	if !ok {
		_ = a.hci.Disconnect(ev.Handle, 0x13)
		return
	}
	kb, err := a.keys.Load(a.localAddrBytes(), addr.Bytes, uint8(addr.Type))
	if err != nil || kb == nil || kb.LTKResp == nil {
		_ = a.hci.Disconnect(ev.Handle, 0x13)
		return
	}
	if kb.LTKResp.EDIV != ev.EDIV || kb.LTKResp.Rand != ev.Rand {
		_ = a.hci.Disconnect(ev.Handle, 0x13)
		return
	}
	_ = a.hci.LongTermKeyReply(ev.Handle, kb.LTKResp.LTK)
}

func (a *Adapter) localAddrBytes() [6]byte { return a.localAddr.Bytes }

// resolveIdentity implements spec §4.5's RPA resolution: for a
// random-resolvable address, iterate the local IRK store and perform
// AES-128 of prand against hash for each stored IRK. The first match wins;
// a non-resolvable address or no match leaves the address unresolved.
func (a *Adapter) resolveIdentity(addr codec.Address) (codec.Address, bool) {
	if addr.Type != codec.AddressRandomResolvable {
		return codec.Address{}, false
	}
	irks, err := a.keys.IRKs(a.localAddrBytes())
	if err != nil || len(irks) == 0 {
		return codec.Address{}, false
	}
	for _, rec := range irks {
		if smp.ResolveRPA(addr.Bytes, rec.IRK) {
			return codec.Address{
				Bytes: rec.IdentityAddr,
				Type:  codec.AddressType(rec.IdentityAddrType),
			}, true
		}
	}
	return codec.Address{}, false
}

// parseLocalName extracts a GAP Complete or Shortened Local Name AD
// structure from an advertising/scan-response payload, if present.
func parseLocalName(data []byte) string {
	for i := 0; i+1 < len(data); {
		l := int(data[i])
		if l == 0 || i+1+l > len(data) {
			return ""
		}
		typ := data[i+1]
		val := data[i+2 : i+1+l]
		if typ == adCompleteLocalName || typ == adShortenedLocalName {
			return string(val)
		}
		i += 1 + l
	}
	return ""
}
