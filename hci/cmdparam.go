package hci

import (
	"github.com/nimbusvale/directble/codec"
)

// cmdParam is implemented by every HCI command's parameter struct, the same
// shape as paypal-gatt's cmdParam (opcode()+marshal()), but writing through
// codec.Writer instead of a raw byte slice.
type cmdParam interface {
	opcode() opcode
	marshal(w *codec.Writer)
}

type reset struct{}

func (reset) opcode() opcode           { return opReset }
func (reset) marshal(w *codec.Writer)  {}

type setEventMask struct{ mask uint64 }

func (c setEventMask) opcode() opcode          { return opSetEventMask }
func (c setEventMask) marshal(w *codec.Writer) { w.PutUint64(c.mask) }

type leSetEventMask struct{ mask uint64 }

func (c leSetEventMask) opcode() opcode          { return opLESetEventMask }
func (c leSetEventMask) marshal(w *codec.Writer) { w.PutUint64(c.mask) }

type writeSimplePairingMode struct{ enable uint8 }

func (c writeSimplePairingMode) opcode() opcode          { return opWriteSimplePairingMode }
func (c writeSimplePairingMode) marshal(w *codec.Writer) { w.PutUint8(c.enable) }

type writeLEHostSupported struct{ leSupported, simultaneous uint8 }

func (c writeLEHostSupported) opcode() opcode { return opWriteLEHostSupported }
func (c writeLEHostSupported) marshal(w *codec.Writer) {
	w.PutUint8(c.leSupported)
	w.PutUint8(c.simultaneous)
}

type writeLocalName struct{ name [248]byte }

func (c writeLocalName) opcode() opcode          { return opWriteLocalName }
func (c writeLocalName) marshal(w *codec.Writer) { w.PutBytes(c.name[:]) }

func newWriteLocalName(name string) writeLocalName {
	var c writeLocalName
	copy(c.name[:], name)
	return c
}

type disconnect struct {
	handle uint16
	reason uint8
}

func (c disconnect) opcode() opcode { return opDisconnect }
func (c disconnect) marshal(w *codec.Writer) {
	w.PutUint16(c.handle)
	w.PutUint8(c.reason)
}

// ScanParams mirrors spec §6's discovery-parameter defaults.
type ScanParams struct {
	IntervalUnits uint16
	WindowUnits   uint16
	Active        bool
	FilterDuplicates bool
	OwnAddressType uint8
}

// DefaultScanParams returns spec §6's defaults: 24 units (15ms) interval and
// window, active scan, duplicate filter on.
func DefaultScanParams() ScanParams {
	return ScanParams{IntervalUnits: 24, WindowUnits: 24, Active: true, FilterDuplicates: true}
}

type leSetScanParameters struct {
	scanType       uint8
	interval       uint16
	window         uint16
	ownAddressType uint8
	filterPolicy   uint8
}

func (c leSetScanParameters) opcode() opcode { return opLESetScanParameters }
func (c leSetScanParameters) marshal(w *codec.Writer) {
	w.PutUint8(c.scanType)
	w.PutUint16(c.interval)
	w.PutUint16(c.window)
	w.PutUint8(c.ownAddressType)
	w.PutUint8(c.filterPolicy)
}

type leSetScanEnable struct {
	enable           uint8
	filterDuplicates uint8
}

func (c leSetScanEnable) opcode() opcode { return opLESetScanEnable }
func (c leSetScanEnable) marshal(w *codec.Writer) {
	w.PutUint8(c.enable)
	w.PutUint8(c.filterDuplicates)
}

// ConnParams mirrors spec §6's connection-parameter defaults: interval
// 8/12 units (10/15ms), latency 0, supervision timeout >= max(500ms,
// 10x conn-interval-max).
type ConnParams struct {
	IntervalMinUnits, IntervalMaxUnits uint16
	Latency                            uint16
	SupervisionTimeoutUnits            uint16
}

// DefaultConnParams returns the spec §6 defaults.
func DefaultConnParams() ConnParams {
	return ConnParams{IntervalMinUnits: 8, IntervalMaxUnits: 12, Latency: 0, SupervisionTimeoutUnits: 50}
}

// Validate enforces the BLE core spec ranges; violations map to PARAM /
// UNACCEPTABLE_CONNECTION_PARAM per spec §4.1/§7.
func (c ConnParams) Validate() error {
	if c.IntervalMinUnits < 6 || c.IntervalMaxUnits > 3200 || c.IntervalMinUnits > c.IntervalMaxUnits {
		return codec.NewError(codec.KindParam, "ConnParams.Validate", "connection interval out of range", nil)
	}
	if c.Latency > 499 {
		return codec.NewError(codec.KindParam, "ConnParams.Validate", "latency out of range", nil)
	}
	minTimeout := uint32(c.IntervalMaxUnits) * 125 / 10 // ms: 10 x interval-max (1.25 ms units)
	if uint32(c.SupervisionTimeoutUnits)*10 < 500 || uint32(c.SupervisionTimeoutUnits)*10 < minTimeout {
		return codec.NewError(codec.KindParam, "ConnParams.Validate", "supervision timeout too small", nil)
	}
	return nil
}

type leCreateConn struct {
	scanInterval, scanWindow    uint16
	initiatorFilterPolicy       uint8
	peerAddressType             uint8
	peerAddress                 [6]byte
	ownAddressType              uint8
	connIntervalMin, connIntervalMax uint16
	connLatency                 uint16
	supervisionTimeout          uint16
	minCE, maxCE                uint16
}

func (c leCreateConn) opcode() opcode { return opLECreateConn }
func (c leCreateConn) marshal(w *codec.Writer) {
	w.PutUint16(c.scanInterval)
	w.PutUint16(c.scanWindow)
	w.PutUint8(c.initiatorFilterPolicy)
	w.PutUint8(c.peerAddressType)
	w.PutBytes(c.peerAddress[:])
	w.PutUint8(c.ownAddressType)
	w.PutUint16(c.connIntervalMin)
	w.PutUint16(c.connIntervalMax)
	w.PutUint16(c.connLatency)
	w.PutUint16(c.supervisionTimeout)
	w.PutUint16(c.minCE)
	w.PutUint16(c.maxCE)
}

type leCreateConnCancel struct{}

func (leCreateConnCancel) opcode() opcode          { return opLECreateConnCancel }
func (leCreateConnCancel) marshal(w *codec.Writer) {}

type leSetAdvertisingParameters struct {
	intervalMin, intervalMax uint16
	advType                  uint8
	ownAddrType, peerAddrType uint8
	peerAddr                 [6]byte
	channelMap               uint8
	filterPolicy             uint8
}

func (c leSetAdvertisingParameters) opcode() opcode { return opLESetAdvertisingParameters }
func (c leSetAdvertisingParameters) marshal(w *codec.Writer) {
	w.PutUint16(c.intervalMin)
	w.PutUint16(c.intervalMax)
	w.PutUint8(c.advType)
	w.PutUint8(c.ownAddrType)
	w.PutUint8(c.peerAddrType)
	w.PutBytes(c.peerAddr[:])
	w.PutUint8(c.channelMap)
	w.PutUint8(c.filterPolicy)
}

type leSetAdvertisingData struct {
	length uint8
	data   [31]byte
}

func (c leSetAdvertisingData) opcode() opcode { return opLESetAdvertisingData }
func (c leSetAdvertisingData) marshal(w *codec.Writer) {
	w.PutUint8(c.length)
	w.PutBytes(c.data[:])
}

type leSetScanResponseData struct {
	length uint8
	data   [31]byte
}

func (c leSetScanResponseData) opcode() opcode { return opLESetScanResponseData }
func (c leSetScanResponseData) marshal(w *codec.Writer) {
	w.PutUint8(c.length)
	w.PutBytes(c.data[:])
}

type leSetAdvertiseEnable struct{ enable uint8 }

func (c leSetAdvertiseEnable) opcode() opcode          { return opLESetAdvertiseEnable }
func (c leSetAdvertiseEnable) marshal(w *codec.Writer) { w.PutUint8(c.enable) }

type leStartEncryption struct {
	handle         uint16
	rand           [8]byte
	ediv           uint16
	ltk            [16]byte
}

func (c leStartEncryption) opcode() opcode { return opLEStartEncryption }
func (c leStartEncryption) marshal(w *codec.Writer) {
	w.PutUint16(c.handle)
	w.PutBytes(c.rand[:])
	w.PutUint16(c.ediv)
	w.PutBytes(c.ltk[:])
}

type leLongTermKeyRequestReply struct {
	handle uint16
	ltk    [16]byte
}

func (c leLongTermKeyRequestReply) opcode() opcode { return opLELongTermKeyRequestReply }
func (c leLongTermKeyRequestReply) marshal(w *codec.Writer) {
	w.PutUint16(c.handle)
	w.PutBytes(c.ltk[:])
}

type leSetDefaultPHY struct {
	allPHYs, txPHYs, rxPHYs uint8
}

func (c leSetDefaultPHY) opcode() opcode { return opLESetDefaultPHY }
func (c leSetDefaultPHY) marshal(w *codec.Writer) {
	w.PutUint8(c.allPHYs)
	w.PutUint8(c.txPHYs)
	w.PutUint8(c.rxPHYs)
}
