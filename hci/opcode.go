package hci

// opcode is the 16-bit command opcode: 6 bits OGF, 10 bits OCF, matching the
// layout paypal-gatt's linux/cmd.go uses for the same commands.
type opcode uint16

func newOpcode(ogf uint8, ocf uint16) opcode {
	return opcode(uint16(ogf)<<10 | ocf)
}

const (
	ogfLinkControl    = 0x01
	ogfHostControl    = 0x03
	ogfInfoParam      = 0x04
	ogfLEController   = 0x08
	ogfVendor         = 0x3F
)

var (
	opDisconnect             = newOpcode(ogfLinkControl, 0x0006)
	opSetEventMask           = newOpcode(ogfHostControl, 0x0001)
	opReset                  = newOpcode(ogfHostControl, 0x0003)
	opWriteLocalName         = newOpcode(ogfHostControl, 0x0013)
	opWriteSimplePairingMode = newOpcode(ogfHostControl, 0x0056)
	opWriteLEHostSupported   = newOpcode(ogfHostControl, 0x006D)
	opReadBDAddr             = newOpcode(ogfInfoParam, 0x0009)

	opLESetEventMask              = newOpcode(ogfLEController, 0x0001)
	opLEReadBufferSize            = newOpcode(ogfLEController, 0x0002)
	opLESetAdvertisingParameters  = newOpcode(ogfLEController, 0x0006)
	opLESetAdvertisingData        = newOpcode(ogfLEController, 0x0008)
	opLESetScanResponseData       = newOpcode(ogfLEController, 0x0009)
	opLESetAdvertiseEnable        = newOpcode(ogfLEController, 0x000A)
	opLESetScanParameters         = newOpcode(ogfLEController, 0x000B)
	opLESetScanEnable             = newOpcode(ogfLEController, 0x000C)
	opLECreateConn                = newOpcode(ogfLEController, 0x000D)
	opLECreateConnCancel          = newOpcode(ogfLEController, 0x000E)
	opLEConnUpdate                = newOpcode(ogfLEController, 0x0013)
	opLEStartEncryption           = newOpcode(ogfLEController, 0x0019)
	opLELongTermKeyRequestReply   = newOpcode(ogfLEController, 0x001A)
	opLESetDefaultPHY             = newOpcode(ogfLEController, 0x0031)
)

// EventCode identifies an HCI event PDU.
type EventCode uint8

const (
	EventDisconnectionComplete EventCode = 0x05
	EventEncryptionChange      EventCode = 0x08
	EventCommandComplete       EventCode = 0x0E
	EventCommandStatus         EventCode = 0x0F
	EventNumberOfCompletedPkts EventCode = 0x13
	EventLEMeta                EventCode = 0x3E
	EventEncryptionKeyRefresh  EventCode = 0x30
)

// LESubevent identifies an LE meta-event subevent.
type LESubevent uint8

const (
	LEConnectionComplete        LESubevent = 0x01
	LEAdvertisingReport         LESubevent = 0x02
	LEConnectionUpdateComplete  LESubevent = 0x03
	LELongTermKeyRequest        LESubevent = 0x05
)

// Status is the one-byte HCI status code returned in Command-Complete,
// Command-Status and most connection-lifecycle events.
type Status uint8

const (
	StatusSuccess                       Status = 0x00
	StatusUnknownConnectionID           Status = 0x02
	StatusHardwareFailure                Status = 0x03
	StatusPageTimeout                    Status = 0x04
	StatusAuthenticationFailure          Status = 0x05
	StatusPINOrKeyMissing                Status = 0x06
	StatusMemoryCapacityExceeded         Status = 0x07
	StatusConnectionTimeout              Status = 0x08
	StatusCommandDisallowed              Status = 0x0C
	StatusUnsupportedFeature             Status = 0x11
	StatusInvalidHCICommandParameters    Status = 0x12
	StatusRemoteUserTerminatedConn       Status = 0x13
	StatusConnFailedToBeEstablished      Status = 0x3E
	StatusUnacceptableConnectionParam    Status = 0x3B
)

func (s Status) OK() bool { return s == StatusSuccess }
