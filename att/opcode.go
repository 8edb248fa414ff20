// Package att implements the Attribute Protocol PDU codec: a typed
// request/response pair for every opcode named in spec §4.3, plus the
// common error-response form. Every PDU type round-trips through
// Marshal/Decode with byte-exact length, which is the property §8 tests.
package att

// Opcode identifies an ATT PDU's operation.
type Opcode uint8

const (
	OpError             Opcode = 0x01
	OpMTUReq            Opcode = 0x02
	OpMTUResp           Opcode = 0x03
	OpFindInfoReq       Opcode = 0x04
	OpFindInfoResp      Opcode = 0x05
	OpFindByTypeReq     Opcode = 0x06
	OpFindByTypeResp    Opcode = 0x07
	OpReadByTypeReq     Opcode = 0x08
	OpReadByTypeResp    Opcode = 0x09
	OpReadReq           Opcode = 0x0A
	OpReadResp          Opcode = 0x0B
	OpReadBlobReq       Opcode = 0x0C
	OpReadBlobResp      Opcode = 0x0D
	OpReadMultiReq      Opcode = 0x0E
	OpReadMultiResp     Opcode = 0x0F
	OpReadByGroupReq    Opcode = 0x10
	OpReadByGroupResp   Opcode = 0x11
	OpWriteReq          Opcode = 0x12
	OpWriteResp         Opcode = 0x13
	OpPrepWriteReq      Opcode = 0x16
	OpPrepWriteResp     Opcode = 0x17
	OpExecWriteReq      Opcode = 0x18
	OpExecWriteResp     Opcode = 0x19
	OpHandleNotify      Opcode = 0x1B
	OpHandleInd         Opcode = 0x1D
	OpHandleCnf         Opcode = 0x1E
	OpWriteCmd          Opcode = 0x52
	OpSignedWriteCmd    Opcode = 0xD2
)

// ErrorCode is the one-byte error code carried in an Error-Response.
type ErrorCode uint8

const (
	ErrInvalidHandle       ErrorCode = 0x01
	ErrReadNotPermitted    ErrorCode = 0x02
	ErrWriteNotPermitted   ErrorCode = 0x03
	ErrInvalidPDU          ErrorCode = 0x04
	ErrInsufficientAuthn   ErrorCode = 0x05
	ErrRequestNotSupported ErrorCode = 0x06
	ErrInvalidOffset       ErrorCode = 0x07
	ErrInsufficientAuthz   ErrorCode = 0x08
	ErrPrepareQueueFull    ErrorCode = 0x09
	ErrAttrNotFound        ErrorCode = 0x0A
	ErrAttrNotLong         ErrorCode = 0x0B
	ErrInsufficientEncKeySize ErrorCode = 0x0C
	ErrInvalidAttrValueLen ErrorCode = 0x0D
	ErrUnlikely            ErrorCode = 0x0E
	ErrInsufficientEnc     ErrorCode = 0x0F
	ErrUnsupportedGroupType ErrorCode = 0x10
	ErrInsufficientResources ErrorCode = 0x11
)

// responseFor maps a request opcode to its success-response opcode; used by
// the client to recognize a matching reply.
var responseFor = map[Opcode]Opcode{
	OpMTUReq:         OpMTUResp,
	OpFindInfoReq:    OpFindInfoResp,
	OpFindByTypeReq:  OpFindByTypeResp,
	OpReadByTypeReq:  OpReadByTypeResp,
	OpReadReq:        OpReadResp,
	OpReadBlobReq:    OpReadBlobResp,
	OpReadMultiReq:   OpReadMultiResp,
	OpReadByGroupReq: OpReadByGroupResp,
	OpWriteReq:       OpWriteResp,
	OpPrepWriteReq:   OpPrepWriteResp,
	OpExecWriteReq:   OpExecWriteResp,
}

// ResponseFor reports the success-response opcode for a request opcode.
func ResponseFor(req Opcode) (Opcode, bool) {
	op, ok := responseFor[req]
	return op, ok
}

var errorCodeNames = map[ErrorCode]string{
	ErrInvalidHandle:          "invalid handle",
	ErrReadNotPermitted:       "read not permitted",
	ErrWriteNotPermitted:      "write not permitted",
	ErrInvalidPDU:             "invalid PDU",
	ErrInsufficientAuthn:      "insufficient authentication",
	ErrRequestNotSupported:    "request not supported",
	ErrInvalidOffset:          "invalid offset",
	ErrInsufficientAuthz:      "insufficient authorization",
	ErrPrepareQueueFull:       "prepare queue full",
	ErrAttrNotFound:           "attribute not found",
	ErrAttrNotLong:            "attribute not long",
	ErrInsufficientEncKeySize: "insufficient encryption key size",
	ErrInvalidAttrValueLen:    "invalid attribute value length",
	ErrUnlikely:               "unlikely error",
	ErrInsufficientEnc:        "insufficient encryption",
	ErrUnsupportedGroupType:   "unsupported group type",
	ErrInsufficientResources:  "insufficient resources",
}

func errorCodeName(c ErrorCode) string {
	if s, ok := errorCodeNames[c]; ok {
		return s
	}
	return "unknown error"
}

var opcodeNames = map[Opcode]string{
	OpMTUReq: "exchange-mtu", OpFindInfoReq: "find-information",
	OpFindByTypeReq: "find-by-type-value", OpReadByTypeReq: "read-by-type",
	OpReadReq: "read", OpReadBlobReq: "read-blob", OpReadByGroupReq: "read-by-group-type",
	OpWriteReq: "write", OpWriteCmd: "write-command", OpSignedWriteCmd: "signed-write-command",
	OpPrepWriteReq: "prepare-write", OpExecWriteReq: "execute-write",
}

func opcodeName(op Opcode) string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return "unknown"
}
