//go:build linux

package hcitransport

import (
	"sync"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/nimbusvale/directble/codec"
)

// AF_BLUETOOTH and the Bluetooth protocol/channel/level numbers below are not
// exposed by golang.org/x/sys/unix (Bluetooth sockaddrs are non-portable and
// deliberately unsupported there, which is also why paypal-gatt hand-rolled
// its own sockaddr encoding in linux/internal/socket). We keep that same
// hand-rolled encoding, but issue the generic socket syscalls
// (Socket/Bind/Connect/Setsockopt/Accept) through x/sys/unix's Syscall and
// Syscall6 rather than the bare syscall package.
const (
	afBluetooth = 31

	btProtoHCI    = 1
	btProtoL2CAP  = 0
	hciChannelRaw = 0

	solHCI            = 0
	hciFilterOpt      = 2
	solBluetooth      = 274
	btSecurityOpt     = 4
)

type sockaddrHCIRaw struct {
	Family  uint16
	Dev     uint16
	Channel uint16
}

type sockaddrL2Raw struct {
	Family   uint16
	PSM      uint16
	Addr     [6]byte
	AddrType uint8
	CID      uint16
}

type btSecurity struct {
	Level uint8
	KeySize uint8
}

// LinuxTransport implements Transport on Linux using raw AF_BLUETOOTH
// sockets, the same socket family paypal-gatt's linux/internal/socket
// package binds to, reimplemented over golang.org/x/sys/unix's syscall
// primitives instead of the bare syscall package.
type LinuxTransport struct{}

func NewLinuxTransport() *LinuxTransport { return &LinuxTransport{} }

func (t *LinuxTransport) OpenHCI(adapterIndex int) (Socket, error) {
	fd, err := retrySocket(afBluetooth, unix.SOCK_RAW, btProtoHCI)
	if err != nil {
		return nil, codec.NewError(codec.KindTransport, "OpenHCI", "socket", err)
	}
	sa := sockaddrHCIRaw{Family: afBluetooth, Dev: uint16(adapterIndex), Channel: hciChannelRaw}
	if err := rawBind(fd, unsafe.Pointer(&sa), unsafe.Sizeof(sa)); err != nil {
		unix.Close(fd)
		return nil, codec.NewError(codec.KindTransport, "OpenHCI", "bind", err)
	}
	return &fdSocket{fd: fd}, nil
}

func (t *LinuxTransport) BindRaw(sock Socket, filter Filter) error {
	fs, ok := sock.(*fdSocket)
	if !ok {
		return codec.NewError(codec.KindParam, "BindRaw", "socket not a Linux HCI fd", nil)
	}
	raw := struct {
		TypeMask  uint32
		EventMask [2]uint32
		Opcode    uint16
	}{filter.TypeMask, filter.EventMask, filter.Opcode}
	return rawSetsockopt(fs.fd, solHCI, hciFilterOpt, unsafe.Pointer(&raw), unsafe.Sizeof(raw))
}

func (t *LinuxTransport) OpenL2CAP(adapterIndex int, addr codec.Address, cid uint16, secLevel SecurityLevel) (Socket, error) {
	fd, err := retrySocket(afBluetooth, unix.SOCK_SEQPACKET, btProtoL2CAP)
	if err != nil {
		return nil, codec.NewError(codec.KindTransport, "OpenL2CAP", "socket", err)
	}
	sec := btSecurity{Level: uint8(secLevel) + 1}
	if err := rawSetsockopt(fd, solBluetooth, btSecurityOpt, unsafe.Pointer(&sec), unsafe.Sizeof(sec)); err != nil {
		unix.Close(fd)
		return nil, codec.NewError(codec.KindSecurity, "OpenL2CAP", "setsockopt security", err)
	}
	sa := sockaddrL2Raw{Family: afBluetooth, CID: cid, Addr: addr.Bytes, AddrType: uint8(addr.Type)}
	if err := rawConnect(fd, unsafe.Pointer(&sa), unsafe.Sizeof(sa)); err != nil {
		unix.Close(fd)
		return nil, codec.NewError(codec.KindTransport, "OpenL2CAP", "connect", err)
	}
	return &fdSocket{fd: fd}, nil
}

func (t *LinuxTransport) ListenL2CAP(adapterIndex int, cid uint16) (Listener, error) {
	fd, err := retrySocket(afBluetooth, unix.SOCK_SEQPACKET, btProtoL2CAP)
	if err != nil {
		return nil, codec.NewError(codec.KindTransport, "ListenL2CAP", "socket", err)
	}
	sa := sockaddrL2Raw{Family: afBluetooth, CID: cid}
	if err := rawBind(fd, unsafe.Pointer(&sa), unsafe.Sizeof(sa)); err != nil {
		unix.Close(fd)
		return nil, codec.NewError(codec.KindTransport, "ListenL2CAP", "bind", err)
	}
	if err := unix.Listen(fd, 8); err != nil {
		unix.Close(fd)
		return nil, codec.NewError(codec.KindTransport, "ListenL2CAP", "listen", err)
	}
	return &l2capListener{fd: fd}, nil
}

func retrySocket(domain, typ, proto int) (int, error) {
	for i := 0; i < 5; i++ {
		fd, err := unix.Socket(domain, typ, proto)
		if err == nil || err != unix.EBUSY {
			return fd, err
		}
		time.Sleep(time.Second)
	}
	return 0, unix.EBUSY
}

func rawBind(fd int, addr unsafe.Pointer, addrlen uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd), uintptr(addr), addrlen)
	if errno != 0 {
		return errno
	}
	return nil
}

func rawConnect(fd int, addr unsafe.Pointer, addrlen uintptr) error {
	_, _, errno := unix.Syscall(unix.SYS_CONNECT, uintptr(fd), uintptr(addr), addrlen)
	if errno != 0 {
		return errno
	}
	return nil
}

func rawSetsockopt(fd, level, name int, val unsafe.Pointer, vallen uintptr) error {
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), uintptr(level), uintptr(name), uintptr(val), vallen, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// fdSocket adapts a raw file descriptor to io.ReadWriteCloser.
type fdSocket struct {
	fd int
	mu sync.Mutex
}

func (s *fdSocket) Read(p []byte) (int, error)  { return unix.Read(s.fd, p) }
func (s *fdSocket) Write(p []byte) (int, error) { return unix.Write(s.fd, p) }
func (s *fdSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

type l2capListener struct {
	fd int
}

func (l *l2capListener) Accept() (Socket, codec.Address, error) {
	var sa sockaddrL2Raw
	sz := unsafe.Sizeof(sa)
	nfd, _, errno := unix.Syscall(unix.SYS_ACCEPT, uintptr(l.fd), uintptr(unsafe.Pointer(&sa)), uintptr(unsafe.Pointer(&sz)))
	if errno != 0 {
		return nil, codec.Address{}, codec.NewError(codec.KindTransport, "Accept", "accept", errno)
	}
	addr := codec.Address{Bytes: sa.Addr, Type: codec.AddressType(sa.AddrType)}
	return &fdSocket{fd: int(nfd)}, addr, nil
}

func (l *l2capListener) Close() error { return unix.Close(l.fd) }
