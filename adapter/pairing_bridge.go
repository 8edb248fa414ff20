package adapter

import "github.com/nimbusvale/directble/hci"

// hciEncryptor adapts one connection's hci.Handler calls to smp.Encryptor,
// decoupling smp from hci (see smp.Encryptor's doc) while giving a
// completed pairing a concrete way to start encryption or answer an
// LTK-request on the link it paired over.
type hciEncryptor struct {
	h      *hci.Handler
	handle uint16
}

func (e *hciEncryptor) StartEncryption(key [16]byte, rnd [8]byte, ediv uint16) error {
	return e.h.StartEncryption(e.handle, rnd, ediv, key)
}

func (e *hciEncryptor) ReplyLongTermKey(key [16]byte) error {
	return e.h.LongTermKeyReply(e.handle, key)
}
