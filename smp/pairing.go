package smp

import (
	"crypto/rand"

	"github.com/nimbusvale/directble/codec"
)

// Encryptor bridges the pairing state machine to the controller commands
// that actually establish and verify link encryption, kept as an interface
// so this package never imports hci.
type Encryptor interface {
	// StartEncryption begins link encryption with the derived STK/LTK and
	// blocks until the controller reports the link encrypted, or returns an
	// error if the controller rejects it.
	StartEncryption(key [16]byte, rand [8]byte, ediv uint16) error
	// ReplyLongTermKey answers a peripheral-role LTK request with key and
	// blocks until the resulting encryption-change is observed.
	ReplyLongTermKey(key [16]byte) error
}

// PairAsInitiator drives the central/initiator side of a full pairing
// attempt: feature exchange, method selection, STK or LTK establishment,
// and key distribution, per spec §4.5.
func (m *Manager) PairAsInitiator(enc Encryptor) (*KeySet, error) {
	m.setState(StateFeatureExchange)

	req := PairingRequest{
		IOCapability:     m.local.IOCapability,
		OOBDataPresent:   boolToOOB(m.local.OOBDataPresent),
		AuthReq:          m.local.authReq(),
		MaxEncKeySize:    m.local.MaxEncKeySize,
		InitiatorKeyDist: m.local.DistributeKeys,
		ResponderKeyDist: m.local.RequestKeys,
	}
	preq := req.Marshal()
	if err := m.ch.Write(preq); err != nil {
		return nil, err
	}

	pdu, err := m.readPDU()
	if err != nil {
		return nil, m.timeoutOrFail(err)
	}
	resp, ok := pdu.(PairingResponse)
	if !ok {
		if pf, ok := pdu.(PairingFailed); ok {
			m.setState(StateFailed)
			return nil, codec.NewError(codec.KindSecurity, "PairAsInitiator", "peer rejected pairing: "+errReasonName(pf.Reason), nil)
		}
		return nil, m.fail(ReasonInvalidParameters)
	}
	pres := resp.Marshal()

	sc := m.local.SecureConnections && resp.AuthReq&AuthReqSC != 0
	method := selectMethod(m.local.IOCapability, resp.IOCapability, m.local.OOBDataPresent, resp.OOBDataPresent != 0, m.local.MITM || resp.AuthReq&AuthReqMITM != 0)

	var ltk, macKey [16]byte
	var ediv uint16
	var rnd [8]byte
	var usedSC bool

	if sc {
		usedSC = true
		m.setState(StatePublicKeyExchange)
		kp, err := GenerateECDHKeyPair()
		if err != nil {
			return nil, err
		}
		ourKey := kp.PublicKeyPDU()
		if err := m.ch.Write(ourKey.Marshal()); err != nil {
			return nil, err
		}
		pdu, err := m.readPDU()
		if err != nil {
			return nil, m.timeoutOrFail(err)
		}
		peerKey, ok := pdu.(PublicKey)
		if !ok {
			return nil, m.fail(ReasonInvalidParameters)
		}
		dhKey, err := kp.SharedSecret(peerKey)
		if err != nil {
			return nil, m.fail(ReasonDHKeyCheckFailed)
		}

		m.setState(StateAuthStage1)
		na, nb, passkeyVal, err := m.authStage1Initiator(method, ourKey, peerKey)
		if err != nil {
			return nil, err
		}

		a1 := identityAddress(m.localAddrType, m.localAddr)
		a2 := identityAddress(m.peerAddrType, m.peerAddr)
		macKey, ltk = f5(dhKey, na, nb, a1, a2)

		m.setState(StateDHKeyCheck)
		ioCapBytes := [3]byte{byte(req.IOCapability), req.OOBDataPresent, req.AuthReq}
		ea := f6(macKey, na, nb, passkeyVal, ioCapBytes, a1, a2)
		if err := m.ch.Write(NewDHKeyCheck(ea).Marshal()); err != nil {
			return nil, err
		}
		pdu, err = m.readPDU()
		if err != nil {
			return nil, m.timeoutOrFail(err)
		}
		eb, ok := AsValue16(pdu)
		if !ok {
			return nil, m.fail(ReasonDHKeyCheckFailed)
		}
		peerIoCap := [3]byte{byte(resp.IOCapability), resp.OOBDataPresent, resp.AuthReq}
		wantEb := f6(macKey, nb, na, passkeyVal, peerIoCap, a2, a1)
		if eb != wantEb {
			return nil, m.fail(ReasonDHKeyCheckFailed)
		}
	} else {
		tk := legacyTK(method, m.passkey)
		mrand, err := RandomNonce()
		if err != nil {
			return nil, err
		}
		ia, ra := m.localAddr.Bytes, m.peerAddr.Bytes
		mconfirm := c1(tk, mrand, preq, pres, m.localAddrType, m.peerAddrType, ia, ra)

		m.setState(StateLegacyConfirm)
		if err := m.ch.Write(NewPairingConfirm(mconfirm).Marshal()); err != nil {
			return nil, err
		}
		pdu, err := m.readPDU()
		if err != nil {
			return nil, m.timeoutOrFail(err)
		}
		sconfirm, ok := AsValue16(pdu)
		if !ok {
			return nil, m.fail(ReasonInvalidParameters)
		}

		m.setState(StateLegacyRandom)
		if err := m.ch.Write(NewPairingRandom(mrand).Marshal()); err != nil {
			return nil, err
		}
		pdu, err = m.readPDU()
		if err != nil {
			return nil, m.timeoutOrFail(err)
		}
		srand, ok := AsValue16(pdu)
		if !ok {
			return nil, m.fail(ReasonInvalidParameters)
		}
		wantSconfirm := c1(tk, srand, preq, pres, m.localAddrType, m.peerAddrType, ia, ra)
		if sconfirm != wantSconfirm {
			return nil, m.fail(ReasonConfirmValueFailed)
		}
		stk := s1(tk, mrand, srand)
		ltk = stk
	}

	if err := enc.StartEncryption(ltk, rnd, ediv); err != nil {
		return nil, err
	}

	m.setState(StateKeyDistribution)
	ks, err := m.distributeKeys(req.InitiatorKeyDist, resp.ResponderKeyDist, true)
	if err != nil {
		return nil, err
	}
	ks.LTK = ltk
	ks.SecureConnections = usedSC
	ks.EncKeySize = minU8(req.MaxEncKeySize, resp.MaxEncKeySize)
	m.setState(StateBonded)
	return ks, nil
}

// PairAsResponder drives the peripheral/responder side symmetric to
// PairAsInitiator.
func (m *Manager) PairAsResponder(enc Encryptor) (*KeySet, error) {
	m.setState(StateFeatureExchange)
	pdu, err := m.readPDU()
	if err != nil {
		return nil, m.timeoutOrFail(err)
	}
	req, ok := pdu.(PairingRequest)
	if !ok {
		return nil, m.fail(ReasonInvalidParameters)
	}
	preq := req.Marshal()

	resp := PairingResponse{
		IOCapability:     m.local.IOCapability,
		OOBDataPresent:   boolToOOB(m.local.OOBDataPresent),
		AuthReq:          m.local.authReq(),
		MaxEncKeySize:    m.local.MaxEncKeySize,
		InitiatorKeyDist: req.InitiatorKeyDist & m.local.RequestKeys,
		ResponderKeyDist: m.local.DistributeKeys,
	}
	pres := resp.Marshal()
	if err := m.ch.Write(resp.Marshal()); err != nil {
		return nil, err
	}

	sc := m.local.SecureConnections && req.AuthReq&AuthReqSC != 0
	method := selectMethod(m.local.IOCapability, req.IOCapability, m.local.OOBDataPresent, req.OOBDataPresent != 0, m.local.MITM || req.AuthReq&AuthReqMITM != 0)

	var ltk [16]byte
	var usedSC bool

	if sc {
		usedSC = true
		m.setState(StatePublicKeyExchange)
		kp, err := GenerateECDHKeyPair()
		if err != nil {
			return nil, err
		}
		pdu, err := m.readPDU()
		if err != nil {
			return nil, m.timeoutOrFail(err)
		}
		peerKey, ok := pdu.(PublicKey)
		if !ok {
			return nil, m.fail(ReasonInvalidParameters)
		}
		ourKey := kp.PublicKeyPDU()
		if err := m.ch.Write(ourKey.Marshal()); err != nil {
			return nil, err
		}
		dhKey, err := kp.SharedSecret(peerKey)
		if err != nil {
			return nil, m.fail(ReasonDHKeyCheckFailed)
		}

		m.setState(StateAuthStage1)
		na, nb, passkeyVal, err := m.authStage1Responder(method, ourKey, peerKey)
		if err != nil {
			return nil, err
		}

		a1 := identityAddress(m.peerAddrType, m.peerAddr)
		a2 := identityAddress(m.localAddrType, m.localAddr)
		macKey, derivedLTK := f5(dhKey, na, nb, a1, a2)
		ltk = derivedLTK

		m.setState(StateDHKeyCheck)
		pdu, err = m.readPDU()
		if err != nil {
			return nil, m.timeoutOrFail(err)
		}
		ea, ok := AsValue16(pdu)
		if !ok {
			return nil, m.fail(ReasonDHKeyCheckFailed)
		}
		peerIoCap := [3]byte{byte(req.IOCapability), req.OOBDataPresent, req.AuthReq}
		wantEa := f6(macKey, na, nb, passkeyVal, peerIoCap, a1, a2)
		if ea != wantEa {
			return nil, m.fail(ReasonDHKeyCheckFailed)
		}
		ioCapBytes := [3]byte{byte(resp.IOCapability), resp.OOBDataPresent, resp.AuthReq}
		eb := f6(macKey, nb, na, passkeyVal, ioCapBytes, a2, a1)
		if err := m.ch.Write(NewDHKeyCheck(eb).Marshal()); err != nil {
			return nil, err
		}
	} else {
		tk := legacyTK(method, m.passkey)
		m.setState(StateLegacyConfirm)
		pdu, err := m.readPDU()
		if err != nil {
			return nil, m.timeoutOrFail(err)
		}
		mconfirm, ok := AsValue16(pdu)
		if !ok {
			return nil, m.fail(ReasonInvalidParameters)
		}
		srand, err := RandomNonce()
		if err != nil {
			return nil, err
		}
		if err := m.ch.Write(NewPairingConfirm(c1(tk, srand, preq, pres, m.peerAddrType, m.localAddrType, m.peerAddr.Bytes, m.localAddr.Bytes)).Marshal()); err != nil {
			return nil, err
		}

		m.setState(StateLegacyRandom)
		pdu, err = m.readPDU()
		if err != nil {
			return nil, m.timeoutOrFail(err)
		}
		mrand, ok := AsValue16(pdu)
		if !ok {
			return nil, m.fail(ReasonInvalidParameters)
		}
		wantMconfirm := c1(tk, mrand, preq, pres, m.peerAddrType, m.localAddrType, m.peerAddr.Bytes, m.localAddr.Bytes)
		if mconfirm != wantMconfirm {
			return nil, m.fail(ReasonConfirmValueFailed)
		}
		if err := m.ch.Write(NewPairingRandom(srand).Marshal()); err != nil {
			return nil, err
		}
		ltk = s1(tk, mrand, srand)
	}

	m.setState(StateKeyDistribution)
	ks, err := m.distributeKeys(req.InitiatorKeyDist, resp.ResponderKeyDist, false)
	if err != nil {
		return nil, err
	}
	ks.LTK = ltk
	ks.SecureConnections = usedSC
	ks.EncKeySize = minU8(req.MaxEncKeySize, resp.MaxEncKeySize)

	if err := enc.ReplyLongTermKey(ltk); err != nil {
		return nil, err
	}
	m.setState(StateBonded)
	return ks, nil
}

// authStage1Initiator runs the SC authentication stage 1 exchange for the
// given method: confirm/random for Just-Works and Numeric-Comparison, or
// confirm/random per passkey bit for Passkey-Entry. It returns both
// nonces and the passkey value fed into f6, per spec §4.5.
func (m *Manager) authStage1Initiator(method Method, ourKey, peerKey PublicKey) (na, nb, passkeyVal [16]byte, err error) {
	switch method {
	case MethodJustWorks, MethodNumericComparison:
		na, err = RandomNonce()
		if err != nil {
			return na, nb, passkeyVal, err
		}
		if err := m.ch.Write(NewPairingConfirm(f4(publicKeyU(ourKey), publicKeyU(peerKey), na, 0)).Marshal()); err != nil {
			return na, nb, passkeyVal, err
		}
		pdu, err := m.readPDU()
		if err != nil {
			return na, nb, passkeyVal, err
		}
		cb, ok := AsValue16(pdu)
		if !ok {
			return na, nb, passkeyVal, m.fail(ReasonInvalidParameters)
		}
		if err := m.ch.Write(NewPairingRandom(na).Marshal()); err != nil {
			return na, nb, passkeyVal, err
		}
		pdu, err = m.readPDU()
		if err != nil {
			return na, nb, passkeyVal, err
		}
		nb, ok = AsValue16(pdu)
		if !ok {
			return na, nb, passkeyVal, m.fail(ReasonInvalidParameters)
		}
		if cb != f4(publicKeyU(peerKey), publicKeyU(ourKey), nb, 0) {
			return na, nb, passkeyVal, m.fail(ReasonConfirmValueFailed)
		}
		if method == MethodNumericComparison && m.numeric != nil {
			code := g2(publicKeyU(ourKey), publicKeyU(peerKey), na, nb)
			ok, cerr := m.numeric.ConfirmNumeric(code % 1000000)
			if cerr != nil || !ok {
				return na, nb, passkeyVal, m.fail(ReasonNumericComparisonFailed)
			}
		}
		return na, nb, passkeyVal, nil
	case MethodPasskeyEntry:
		var code uint32
		if m.passkey != nil {
			code, err = m.passkey.EnterPasskey()
			if err != nil {
				return na, nb, passkeyVal, m.fail(ReasonPasskeyEntryFailed)
			}
		}
		passkeyVal[12] = byte(code >> 24)
		passkeyVal[13] = byte(code >> 16)
		passkeyVal[14] = byte(code >> 8)
		passkeyVal[15] = byte(code)
		na, err = RandomNonce()
		if err != nil {
			return na, nb, passkeyVal, err
		}
		if err := m.ch.Write(NewPairingConfirm(f4(publicKeyU(ourKey), publicKeyU(peerKey), na, 0x80)).Marshal()); err != nil {
			return na, nb, passkeyVal, err
		}
		pdu, err := m.readPDU()
		if err != nil {
			return na, nb, passkeyVal, err
		}
		nb, ok := AsValue16(pdu)
		if !ok {
			return na, nb, passkeyVal, m.fail(ReasonInvalidParameters)
		}
		return na, nb, passkeyVal, nil
	default:
		return na, nb, passkeyVal, m.fail(ReasonAuthenticationReqs)
	}
}

func (m *Manager) authStage1Responder(method Method, ourKey, peerKey PublicKey) (na, nb, passkeyVal [16]byte, err error) {
	switch method {
	case MethodJustWorks, MethodNumericComparison:
		pdu, err := m.readPDU()
		if err != nil {
			return na, nb, passkeyVal, err
		}
		ca, ok := AsValue16(pdu)
		if !ok {
			return na, nb, passkeyVal, m.fail(ReasonInvalidParameters)
		}
		nb, err = RandomNonce()
		if err != nil {
			return na, nb, passkeyVal, err
		}
		if err := m.ch.Write(NewPairingConfirm(f4(publicKeyU(ourKey), publicKeyU(peerKey), nb, 0)).Marshal()); err != nil {
			return na, nb, passkeyVal, err
		}
		pdu, err = m.readPDU()
		if err != nil {
			return na, nb, passkeyVal, err
		}
		na, ok = AsValue16(pdu)
		if !ok {
			return na, nb, passkeyVal, m.fail(ReasonInvalidParameters)
		}
		if ca != f4(publicKeyU(peerKey), publicKeyU(ourKey), na, 0) {
			return na, nb, passkeyVal, m.fail(ReasonConfirmValueFailed)
		}
		if err := m.ch.Write(NewPairingRandom(nb).Marshal()); err != nil {
			return na, nb, passkeyVal, err
		}
		if method == MethodNumericComparison && m.numeric != nil {
			code := g2(publicKeyU(peerKey), publicKeyU(ourKey), na, nb)
			ok, cerr := m.numeric.ConfirmNumeric(code % 1000000)
			if cerr != nil || !ok {
				return na, nb, passkeyVal, m.fail(ReasonNumericComparisonFailed)
			}
		}
		return na, nb, passkeyVal, nil
	case MethodPasskeyEntry:
		var code uint32
		if m.passkey != nil {
			code, err = m.passkey.EnterPasskey()
			if err != nil {
				return na, nb, passkeyVal, m.fail(ReasonPasskeyEntryFailed)
			}
		}
		passkeyVal[12] = byte(code >> 24)
		passkeyVal[13] = byte(code >> 16)
		passkeyVal[14] = byte(code >> 8)
		passkeyVal[15] = byte(code)
		pdu, err := m.readPDU()
		if err != nil {
			return na, nb, passkeyVal, err
		}
		if _, ok := AsValue16(pdu); !ok {
			return na, nb, passkeyVal, m.fail(ReasonInvalidParameters)
		}
		nb, err = RandomNonce()
		if err != nil {
			return na, nb, passkeyVal, err
		}
		if err := m.ch.Write(NewPairingRandom(nb).Marshal()); err != nil {
			return na, nb, passkeyVal, err
		}
		return na, nb, passkeyVal, nil
	default:
		return na, nb, passkeyVal, m.fail(ReasonAuthenticationReqs)
	}
}

// distributeKeys runs the key-distribution phase named by both sides'
// negotiated KeyDist masks, per spec §4.5. isInitiator determines which
// side sends first (the spec has the initiator's keys flow first).
func (m *Manager) distributeKeys(initMask, respMask uint8, isInitiator bool) (*KeySet, error) {
	ks := &KeySet{}
	send := func(mask uint8) error {
		if mask&KeyDistEncKey != 0 {
			ltk, err := RandomNonce()
			if err != nil {
				return err
			}
			if err := m.ch.Write(NewEncryptionInformation(ltk).Marshal()); err != nil {
				return err
			}
			var rnd [8]byte
			if _, err := rand.Read(rnd[:]); err != nil {
				return err
			}
			if err := m.ch.Write(MasterIdentification{EDIV: 0, Rand: rnd}.Marshal()); err != nil {
				return err
			}
		}
		if mask&KeyDistIDKey != 0 {
			irk, err := RandomNonce()
			if err != nil {
				return err
			}
			if err := m.ch.Write(value16{code: CodeIdentityInformation, Value: irk}.Marshal()); err != nil {
				return err
			}
			if err := m.ch.Write(IdentityAddressInformation{AddrType: m.localAddrType, Addr: m.localAddr.Bytes}.Marshal()); err != nil {
				return err
			}
		}
		if mask&KeyDistSignKey != 0 {
			csrk, err := RandomNonce()
			if err != nil {
				return err
			}
			if err := m.ch.Write(SigningInformation{CSRK: csrk}.Marshal()); err != nil {
				return err
			}
		}
		return nil
	}

	recv := func(mask uint8) error {
		if mask&KeyDistEncKey != 0 {
			pdu, err := m.readPDU()
			if err != nil {
				return err
			}
			if v, ok := AsValue16(pdu); ok {
				ks.LTK = v
			}
			pdu, err = m.readPDU()
			if err != nil {
				return err
			}
			if mi, ok := pdu.(MasterIdentification); ok {
				ks.EDIV = mi.EDIV
				ks.Rand = mi.Rand
			}
		}
		if mask&KeyDistIDKey != 0 {
			pdu, err := m.readPDU()
			if err != nil {
				return err
			}
			if v, ok := AsValue16(pdu); ok {
				ks.IRK = v
			}
			pdu, err = m.readPDU()
			if err != nil {
				return err
			}
			if ai, ok := pdu.(IdentityAddressInformation); ok {
				ks.IdentityAddr = codec.Address{Bytes: ai.Addr, Type: addrTypeFromWire(ai.AddrType)}
			}
		}
		if mask&KeyDistSignKey != 0 {
			pdu, err := m.readPDU()
			if err != nil {
				return err
			}
			if si, ok := pdu.(SigningInformation); ok {
				ks.CSRK = si.CSRK
			}
		}
		return nil
	}

	if isInitiator {
		if err := send(initMask); err != nil {
			return nil, err
		}
		if err := recv(respMask); err != nil {
			return nil, err
		}
	} else {
		if err := recv(initMask); err != nil {
			return nil, err
		}
		if err := send(respMask); err != nil {
			return nil, err
		}
	}
	return ks, nil
}

func (m *Manager) timeoutOrFail(err error) error {
	if e, ok := err.(*codec.Error); ok && e.Kind == codec.KindTimeout {
		return m.fail(ReasonTimeout)
	}
	m.setState(StateFailed)
	return err
}

func legacyTK(method Method, p PasskeyProvider) [16]byte {
	var tk [16]byte
	if method != MethodPasskeyEntry || p == nil {
		return tk
	}
	code, err := p.EnterPasskey()
	if err != nil {
		return tk
	}
	tk[12] = byte(code >> 24)
	tk[13] = byte(code >> 16)
	tk[14] = byte(code >> 8)
	tk[15] = byte(code)
	return tk
}

func publicKeyU(pk PublicKey) [32]byte { return pk.X }

func boolToOOB(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func minU8(a, b uint8) uint8 {
	if a < b {
		return a
	}
	return b
}

func addrTypeFromWire(t uint8) codec.AddressType {
	if t == 1 {
		return codec.AddressRandomStatic
	}
	return codec.AddressPublic
}
