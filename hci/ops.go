package hci

import (
	"time"

	"github.com/nimbusvale/directble/codec"
)

// AdvParams configures peripheral advertising, per spec §4.6.
type AdvParams struct {
	IntervalMinUnits, IntervalMaxUnits uint16
	AdvType                            uint8
	ChannelMap                         uint8
	FilterPolicy                       uint8
}

// DefaultAdvParams mirrors the BLE core spec default advertising interval.
func DefaultAdvParams() AdvParams {
	return AdvParams{IntervalMinUnits: 0x0800, IntervalMaxUnits: 0x0800, ChannelMap: 0x07}
}

// StartDiscovery begins LE scanning with the given parameters (spec §4.1,
// defaults from spec §6 via DefaultScanParams).
func (h *Handler) StartDiscovery(p ScanParams) error {
	scanType := uint8(0)
	if p.Active {
		scanType = 1
	}
	if _, err := h.SendCommand(leSetScanParameters{
		scanType:       scanType,
		interval:       p.IntervalUnits,
		window:         p.WindowUnits,
		ownAddressType: p.OwnAddressType,
	}, DefaultCommandTimeout); err != nil {
		return err
	}
	dup := uint8(0)
	if p.FilterDuplicates {
		dup = 1
	}
	_, err := h.SendCommand(leSetScanEnable{enable: 1, filterDuplicates: dup}, DefaultCommandTimeout)
	return err
}

// StopDiscovery halts LE scanning.
func (h *Handler) StopDiscovery() error {
	_, err := h.SendCommand(leSetScanEnable{enable: 0}, DefaultCommandTimeout)
	return err
}

// StartAdvertising configures and enables LE advertising with the given
// parameters and EIR payloads, per spec §4.6.
func (h *Handler) StartAdvertising(p AdvParams, advData, scanRsp []byte) error {
	if _, err := h.SendCommand(leSetAdvertisingParameters{
		intervalMin: p.IntervalMinUnits,
		intervalMax: p.IntervalMaxUnits,
		advType:     p.AdvType,
		channelMap:  p.ChannelMap,
		filterPolicy: p.FilterPolicy,
	}, DefaultCommandTimeout); err != nil {
		return err
	}
	var adv, rsp [31]byte
	n := copy(adv[:], advData)
	if _, err := h.SendCommand(leSetAdvertisingData{length: uint8(n), data: adv}, DefaultCommandTimeout); err != nil {
		return err
	}
	m := copy(rsp[:], scanRsp)
	if _, err := h.SendCommand(leSetScanResponseData{length: uint8(m), data: rsp}, DefaultCommandTimeout); err != nil {
		return err
	}
	_, err := h.SendCommand(leSetAdvertiseEnable{enable: 1}, DefaultCommandTimeout)
	return err
}

// StopAdvertising disables LE advertising.
func (h *Handler) StopAdvertising() error {
	_, err := h.SendCommand(leSetAdvertiseEnable{enable: 0}, DefaultCommandTimeout)
	return err
}

// SetLocalName sets the controller-reported local device name.
func (h *Handler) SetLocalName(name string) error {
	_, err := h.SendCommand(newWriteLocalName(name), DefaultCommandTimeout)
	return err
}

// SetSecureConnections toggles LE Secure Connections host support. Real
// controllers advertise SC support via LE features; this records host intent
// consulted by the smp package when selecting the pairing method.
func (h *Handler) SetSecureConnections(enabled bool) error {
	v := uint8(0)
	if enabled {
		v = 1
	}
	_, err := h.SendCommand(writeLEHostSupported{leSupported: 1, simultaneous: v}, DefaultCommandTimeout)
	return err
}

// SetDefaultConnParam validates p and returns the result. It stores
// nothing: CreateLEConnection validates and uses the ConnParams it is
// given, with no stored default.
func (h *Handler) SetDefaultConnParam(p ConnParams) error { return p.Validate() }

// SetDefaultLEPhy configures the host's default LE PHY preferences.
func (h *Handler) SetDefaultLEPhy(txPHYs, rxPHYs uint8) error {
	_, err := h.SendCommand(leSetDefaultPHY{allPHYs: 0, txPHYs: txPHYs, rxPHYs: rxPHYs}, DefaultCommandTimeout)
	return err
}

// CreateLEConnection issues LE Create Connection and blocks until the
// asynchronous LE Connection Complete meta-event arrives for addr, or until
// timeout. Pre-flight parameter validation rejects out-of-range params with
// PARAM before any command reaches the controller, per spec §4.1.
func (h *Handler) CreateLEConnection(addr codec.Address, params ConnParams, timeout time.Duration) (*Conn, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	ch := make(chan ConnectionCompleteEvent, 1)
	h.connAwaitMu.Lock()
	h.connAwait[addr] = ch
	h.connAwaitMu.Unlock()
	defer func() {
		h.connAwaitMu.Lock()
		delete(h.connAwait, addr)
		h.connAwaitMu.Unlock()
	}()

	ownType := uint8(0)
	if addr.Type.IsRandom() {
		ownType = 1
	}
	if _, err := h.SendCommand(leCreateConn{
		scanInterval:    0x0004,
		scanWindow:      0x0004,
		peerAddressType: ownType,
		peerAddress:     addr.Bytes,
		ownAddressType:  0,
		connIntervalMin: params.IntervalMinUnits,
		connIntervalMax: params.IntervalMaxUnits,
		connLatency:     params.Latency,
		supervisionTimeout: params.SupervisionTimeoutUnits,
	}, DefaultCommandTimeout); err != nil {
		return nil, err
	}

	select {
	case ev := <-ch:
		if !ev.Status.OK() {
			return nil, codec.NewError(codec.KindState, "CreateLEConnection", "controller rejected connection", nil)
		}
		c := &Conn{Handle: ev.Handle, Addr: addr, Role: RoleCentral}
		h.registry.add(c)
		return c, nil
	case <-time.After(timeout):
		_, _ = h.SendCommand(leCreateConnCancel{}, DefaultCommandTimeout)
		return nil, codec.NewError(codec.KindTimeout, "CreateLEConnection", "no connection complete within window", nil)
	case <-h.closeCh:
		return nil, codec.NewError(codec.KindDisconnected, "CreateLEConnection", "handler closed", nil)
	}
}

// Disconnect tears down an established connection by handle with reason.
func (h *Handler) Disconnect(handle uint16, reason uint8) error {
	_, err := h.SendCommand(disconnect{handle: handle, reason: reason}, DefaultCommandTimeout)
	return err
}

// StartEncryption requests the controller start link encryption with the
// given LTK/EDIV/Rand, used both for fresh STK/LTK activation and for the
// pre-paired reconnection path (spec §4.5).
func (h *Handler) StartEncryption(handle uint16, rand [8]byte, ediv uint16, ltk [16]byte) error {
	_, err := h.SendCommand(leStartEncryption{handle: handle, rand: rand, ediv: ediv, ltk: ltk}, DefaultCommandTimeout)
	return err
}

// LongTermKeyReply answers an LE Long Term Key Request (peripheral role)
// with the LTK matched by the smp/keystore layer.
func (h *Handler) LongTermKeyReply(handle uint16, ltk [16]byte) error {
	_, err := h.SendCommand(leLongTermKeyRequestReply{handle: handle, ltk: ltk}, DefaultCommandTimeout)
	return err
}
