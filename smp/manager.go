package smp

import (
	"sync"
	"time"

	"github.com/nimbusvale/directble/codec"
)

// PhaseTimeout is the per-phase window from spec §4.5: no response inside
// this window fails the pairing attempt with REASON_TIMEOUT.
const PhaseTimeout = 30 * time.Second

// Channel is the minimal PDU transport the pairing state machine needs,
// satisfied by *l2cap.Channel bound to CIDSmp.
type Channel interface {
	Read(buf []byte) ([]byte, error)
	Write(pdu []byte) error
	Close() error
}

// LocalConfig describes this host's pairing capabilities and what it is
// willing to distribute, per spec §4.5's feature-exchange fields.
type LocalConfig struct {
	IOCapability  IOCapability
	OOBDataPresent bool
	MITM          bool
	Bonding       bool
	SecureConnections bool
	MaxEncKeySize uint8
	DistributeKeys   uint8 // KeyDist* bits this side offers to send
	RequestKeys      uint8 // KeyDist* bits this side asks the peer to send
}

func (c LocalConfig) authReq() uint8 {
	var a uint8
	if c.Bonding {
		a |= AuthReqBonding
	}
	if c.MITM {
		a |= AuthReqMITM
	}
	if c.SecureConnections {
		a |= AuthReqSC
	}
	return a
}

// KeySet holds every key derived or received during one pairing, per spec
// §4.5/§6. Whichever fields a given attempt distributes are non-zero; the
// rest are left zero.
type KeySet struct {
	LTK          [16]byte
	EDIV         uint16
	Rand         [8]byte
	IRK          [16]byte
	CSRK         [16]byte
	IdentityAddr codec.Address
	SecureConnections bool
	EncKeySize   uint8
}

// PasskeyProvider supplies or displays the six-digit passkey for the
// Passkey-Entry method. Display implementations return the value they
// showed; entry implementations return what the user typed.
type PasskeyProvider interface {
	DisplayPasskey(code uint32)
	EnterPasskey() (uint32, error)
}

// NumericComparisonProvider confirms a six-digit comparison value for the
// Numeric-Comparison method, returning the user's yes/no answer.
type NumericComparisonProvider interface {
	ConfirmNumeric(code uint32) (bool, error)
}

// Manager drives one pairing attempt over a single SMP channel for a single
// peer connection, per spec §4.5's state machine.
type Manager struct {
	ch     Channel
	local  LocalConfig
	localAddr, peerAddr codec.Address
	localAddrType, peerAddrType uint8

	passkey  PasskeyProvider
	numeric  NumericComparisonProvider

	mu    sync.Mutex
	state State
}

// NewManager constructs a Manager for one connection's SMP channel.
func NewManager(ch Channel, local LocalConfig, localAddr, peerAddr codec.Address, localAddrType, peerAddrType uint8) *Manager {
	return &Manager{ch: ch, local: local, localAddr: localAddr, peerAddr: peerAddr, localAddrType: localAddrType, peerAddrType: peerAddrType, state: StateIdle}
}

// SetPasskeyProvider installs the UI hook used by the Passkey-Entry method.
func (m *Manager) SetPasskeyProvider(p PasskeyProvider) { m.passkey = p }

// SetNumericComparisonProvider installs the UI hook used by the
// Numeric-Comparison method.
func (m *Manager) SetNumericComparisonProvider(p NumericComparisonProvider) { m.numeric = p }

func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// State reports the current pairing state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) readPDU() (PDU, error) {
	buf := make([]byte, 256)
	raw, err := readWithTimeout(m.ch, buf, PhaseTimeout)
	if err != nil {
		return nil, err
	}
	return Decode(raw)
}

func readWithTimeout(ch Channel, buf []byte, timeout time.Duration) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := ch.Read(buf)
		done <- result{data, err}
	}()
	select {
	case r := <-done:
		return r.data, r.err
	case <-time.After(timeout):
		return nil, codec.NewError(codec.KindTimeout, "smp.readWithTimeout", "no PDU within phase window", nil)
	}
}

// selectMethod applies the BLE core spec's IO-capability pairing method
// table, per spec §4.5.
func selectMethod(localIO, peerIO IOCapability, localOOB, peerOOB, mitm bool) Method {
	if localOOB && peerOOB {
		return MethodOutOfBand
	}
	if !mitm {
		return MethodJustWorks
	}

	// Reduced IO-capability table: NoInputNoOutput never yields MITM
	// protection; keyboard/display combinations select passkey entry or
	// numeric comparison per the spec's responder/initiator table.
	switch {
	case localIO == IONoInputNoOutput || peerIO == IONoInputNoOutput:
		return MethodJustWorks
	case localIO == IODisplayYesNo && peerIO == IODisplayYesNo:
		return MethodNumericComparison
	case (localIO == IODisplayYesNo && peerIO == IOKeyboardDisplay) || (localIO == IOKeyboardDisplay && peerIO == IODisplayYesNo):
		return MethodNumericComparison
	case localIO == IOKeyboardDisplay && peerIO == IOKeyboardDisplay:
		return MethodNumericComparison
	case localIO == IOKeyboardOnly || peerIO == IOKeyboardOnly:
		return MethodPasskeyEntry
	case localIO == IODisplayOnly || peerIO == IODisplayOnly:
		return MethodPasskeyEntry
	default:
		return MethodJustWorks
	}
}

// fail sends Pairing-Failed with reason, transitions to StateFailed, and
// returns an error describing the abort.
func (m *Manager) fail(reason FailReason) error {
	m.setState(StateFailed)
	_ = m.ch.Write(PairingFailed{Reason: reason}.Marshal())
	return codec.NewError(codec.KindSecurity, "smp.Manager", "pairing failed: "+errReasonName(reason), nil)
}

func errReasonName(r FailReason) string {
	switch r {
	case ReasonPasskeyEntryFailed:
		return "passkey entry failed"
	case ReasonOOBNotAvailable:
		return "OOB not available"
	case ReasonAuthenticationReqs:
		return "authentication requirements not met"
	case ReasonConfirmValueFailed:
		return "confirm value mismatch"
	case ReasonPairingNotSupported:
		return "pairing not supported"
	case ReasonEncryptionKeySize:
		return "encryption key size unacceptable"
	case ReasonCommandNotSupported:
		return "command not supported"
	case ReasonRepeatedAttempts:
		return "repeated attempts"
	case ReasonInvalidParameters:
		return "invalid parameters"
	case ReasonDHKeyCheckFailed:
		return "DHKey check failed"
	case ReasonNumericComparisonFailed:
		return "numeric comparison failed"
	case ReasonTimeout:
		return "timeout"
	default:
		return "unspecified"
	}
}

func eui48(a codec.Address) [6]byte { return a.Bytes }

func identityAddress(addrType uint8, a codec.Address) [7]byte {
	var out [7]byte
	out[0] = addrType
	copy(out[1:], a.Bytes[:])
	return out
}
