// Package smp implements the Security Manager Protocol pairing state
// machine named in spec §4.5: feature exchange, Legacy and LE Secure
// Connections pairing, key distribution, and RPA resolution.
package smp

// Code identifies an SMP PDU's operation. SMP shares L2CAP CID 0x0006 with
// no further multiplexing, so the first octet alone selects the PDU shape.
type Code uint8

const (
	CodePairingRequest        Code = 0x01
	CodePairingResponse       Code = 0x02
	CodePairingConfirm        Code = 0x03
	CodePairingRandom         Code = 0x04
	CodePairingFailed         Code = 0x05
	CodeEncryptionInformation Code = 0x06
	CodeMasterIdentification  Code = 0x07
	CodeIdentityInformation   Code = 0x08
	CodeIdentityAddrInfo      Code = 0x09
	CodeSigningInformation    Code = 0x0A
	CodeSecurityRequest       Code = 0x0B
	CodePublicKey             Code = 0x0C
	CodeDHKeyCheck            Code = 0x0D
	CodeKeypressNotification  Code = 0x0E
)

// IOCapability values from the pairing feature exchange.
type IOCapability uint8

const (
	IODisplayOnly     IOCapability = 0x00
	IODisplayYesNo    IOCapability = 0x01
	IOKeyboardOnly    IOCapability = 0x02
	IONoInputNoOutput IOCapability = 0x03
	IOKeyboardDisplay IOCapability = 0x04
)

// AuthReq bit flags.
const (
	AuthReqBonding     uint8 = 1 << 0
	AuthReqMITM        uint8 = 1 << 2
	AuthReqSC          uint8 = 1 << 3
	AuthReqKeypress    uint8 = 1 << 4
	AuthReqCT2         uint8 = 1 << 5
)

// KeyDistribution bit flags, carried in both directions of a Pairing
// Request/Response to negotiate which keys each side will send.
const (
	KeyDistEncKey  uint8 = 1 << 0 // LTK + EDIV + Rand
	KeyDistIDKey   uint8 = 1 << 1 // IRK + address
	KeyDistSignKey uint8 = 1 << 2 // CSRK
	KeyDistLinkKey uint8 = 1 << 3 // derived BR/EDR link key
)

// FailReason is the one-byte reason code carried by a Pairing-Failed PDU.
type FailReason uint8

const (
	ReasonPasskeyEntryFailed    FailReason = 0x01
	ReasonOOBNotAvailable       FailReason = 0x02
	ReasonAuthenticationReqs    FailReason = 0x03
	ReasonConfirmValueFailed    FailReason = 0x04
	ReasonPairingNotSupported   FailReason = 0x05
	ReasonEncryptionKeySize     FailReason = 0x06
	ReasonCommandNotSupported   FailReason = 0x07
	ReasonUnspecifiedReason     FailReason = 0x08
	ReasonRepeatedAttempts      FailReason = 0x09
	ReasonInvalidParameters     FailReason = 0x0A
	ReasonDHKeyCheckFailed      FailReason = 0x0B
	ReasonNumericComparisonFailed FailReason = 0x0C
	ReasonTimeout               FailReason = 0x0E
)

// Method is the key-generation method chosen by the IO-capability mapping
// table in the BLE core spec, per spec §4.5.
type Method int

const (
	MethodJustWorks Method = iota
	MethodPasskeyEntry
	MethodNumericComparison
	MethodOutOfBand
)
