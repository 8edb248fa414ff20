package adapter

import (
	"github.com/nimbusvale/directble/codec"
	"github.com/nimbusvale/directble/gatt"
	"github.com/nimbusvale/directble/hci"
)

// AD structure types used to build EIR payloads, per the GAP assigned
// numbers referenced in spec §4.6.
const (
	adFlags             = 0x01
	adIncomplete16      = 0x02
	adComplete16        = 0x03
	adShortenedLocalName = 0x08
	adCompleteLocalName = 0x09
	adTxPowerLevel      = 0x0A
)

var (
	gapServiceUUID    = codec.UUID16(0x1800)
	gapDeviceNameUUID = codec.UUID16(0x2A00)
)

// AdvReport describes what a peripheral advertises, per spec §4.6's
// startAdvertising(advReport, ...) parameter.
type AdvReport struct {
	LocalName  string
	Flags      uint8
	Services16 []uint16
	TXPower    int8
}

// buildEIR assembles an Extended Inquiry Response payload from report
// within the 31-byte advertising payload limit (GAP's legacy advertising
// cap). An AD structure that does not fit in the remaining space is left
// out whole; none is truncated.
func buildEIR(report AdvReport) []byte {
	var out []byte
	appendAD := func(typ byte, data []byte) {
		if len(data)+2 > 31-len(out) {
			return
		}
		out = append(out, byte(len(data)+1), typ)
		out = append(out, data...)
	}
	appendAD(adFlags, []byte{report.Flags})
	if len(report.Services16) > 0 {
		data := make([]byte, 0, len(report.Services16)*2)
		for _, u := range report.Services16 {
			data = append(data, byte(u), byte(u>>8))
		}
		appendAD(adComplete16, data)
	}
	if report.LocalName != "" {
		appendAD(adCompleteLocalName, []byte(report.LocalName))
	}
	return out
}

// injectDeviceName ensures db's GAP service carries a Device-Name
// characteristic reporting name: an existing GAP Device-Name value is
// replaced, and a GAP service holding one is added only if db declares no
// GAP Device-Name characteristic. Spec §4.6: "the local name is
// injected into GAP's Device-Name characteristic."
func injectDeviceName(db *gatt.Database, name string) {
	for _, svc := range db.Services() {
		if !svc.UUID.Equal(gapServiceUUID) {
			continue
		}
		for i := range svc.Characteristics {
			if svc.Characteristics[i].UUID.Equal(gapDeviceNameUUID) {
				if attr, ok := db.Attr(svc.Characteristics[i].ValueHandle()); ok {
					attr.Value = []byte(name)
					return
				}
			}
		}
	}
	db.AddService(gatt.Service{
		UUID: gapServiceUUID,
		Characteristics: []gatt.Characteristic{
			{
				UUID:       gapDeviceNameUUID,
				Properties: gatt.PropRead,
				Perm:       gatt.AttrPermission{Read: true},
				Value:      []byte(name),
			},
		},
	})
}

// StartAdvertising begins peripheral advertising using db as the local GATT
// server database, per spec §4.6. Advertising auto-stops when a connection
// is accepted (hciListener.HandleConnectionComplete); callers may restart it
// after the resulting disconnect.
func (a *Adapter) StartAdvertising(db *gatt.Database, report AdvReport, params hci.AdvParams, scanRsp AdvReport) error {
	injectDeviceName(db, report.LocalName)

	advData := buildEIR(report)
	scanRspData := buildEIR(scanRsp)
	if err := a.hci.StartAdvertising(params, advData, scanRspData); err != nil {
		return err
	}

	a.advMu.Lock()
	a.advertising = true
	a.advGattDB = db
	a.advMu.Unlock()
	a.gattDB = db
	return nil
}

// StopAdvertising stops peripheral advertising.
func (a *Adapter) StopAdvertising() error {
	a.advMu.Lock()
	wasAdvertising := a.advertising
	a.advertising = false
	a.advMu.Unlock()
	if !wasAdvertising {
		return nil
	}
	return a.hci.StopAdvertising()
}
