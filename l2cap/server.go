package l2cap

import (
	"sync"

	"github.com/nimbusvale/directble/hcitransport"
)

// Server listens on a fixed CID and accepts the peer's first PDU after the
// link is up, per spec §4.2. Each accepted channel gets its own handler
// binding via Accept's return value; this type does no ATT/SMP-level work.
type Server struct {
	listener hcitransport.Listener
	cid      uint16

	closeOnce sync.Once
}

// Listen opens a listening endpoint bound to cid on the given adapter.
func Listen(transport hcitransport.Transport, adapterIndex int, cid uint16) (*Server, error) {
	l, err := transport.ListenL2CAP(adapterIndex, cid)
	if err != nil {
		return nil, err
	}
	return &Server{listener: l, cid: cid}, nil
}

// Accept blocks until a peer opens a channel on this CID, returning the
// bound Channel and the peer's address.
func (s *Server) Accept() (*Channel, error) {
	sock, addr, err := s.listener.Accept()
	if err != nil {
		return nil, err
	}
	return newChannel(sock, s.cid, addr), nil
}

// Close is idempotent.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() { err = s.listener.Close() })
	return err
}
