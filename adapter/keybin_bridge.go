package adapter

import (
	"github.com/nimbusvale/directble/keystore"
	"github.com/nimbusvale/directble/smp"
)

// newEmptyKeyBin starts a fresh KeyBin for a (local, remote) pair that has
// no prior bond on disk.
func newEmptyKeyBin(local, remote [6]byte, remoteType uint8) *keystore.KeyBin {
	return &keystore.KeyBin{LocalAddr: local, RemoteAddr: remote, RemoteAddrType: remoteType}
}

// mergeKeySetInto folds a freshly-completed pairing's KeySet into kb,
// per spec §3/§6: the LTK a pairing distributes belongs to LTKInit when we
// paired as initiator (we hold the key we will present on reconnect) and to
// LTKResp when we paired as responder (the peer will present it to us).
func mergeKeySetInto(kb *keystore.KeyBin, keys *smp.KeySet, initiator bool) {
	if keys.LTK != ([16]byte{}) {
		rec := &keystore.LTKRecord{
			LTK:               keys.LTK,
			EDIV:              keys.EDIV,
			Rand:              keys.Rand,
			EncKeySize:        keys.EncKeySize,
			SecureConnections: keys.SecureConnections,
			ResponderRole:     !initiator,
		}
		if initiator {
			kb.LTKInit = rec
		} else {
			kb.LTKResp = rec
		}
	}
	if keys.IRK != ([16]byte{}) {
		kb.IRK = &keystore.IRKRecord{
			IRK:              keys.IRK,
			IdentityAddr:     keys.IdentityAddr.Bytes,
			IdentityAddrType: uint8(keys.IdentityAddr.Type),
		}
	}
	if keys.CSRK != ([16]byte{}) {
		kb.CSRK = &keystore.CSRKRecord{CSRK: keys.CSRK}
	}
}
