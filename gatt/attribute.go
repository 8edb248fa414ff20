package gatt

import (
	"sort"
	"sync"

	"github.com/nimbusvale/directble/codec"
)

// AttrPermission gates read/write access to a server-side attribute,
// independent of the characteristic properties exposed to the client.
type AttrPermission struct {
	Read, Write                     bool
	ReadRequiresEncryption          bool
	WriteRequiresEncryption         bool
	ReadRequiresAuthentication      bool
	WriteRequiresAuthentication     bool
}

// Attribute is one handle-numbered slot in the server's database, per spec
// §4.4. Value holds a static value; ReadFunc and WriteFunc, when set, are
// called instead of reading or writing Value, for a dynamic value.
type Attribute struct {
	Handle uint16
	Type   codec.UUID
	Value  []byte
	Perm   AttrPermission

	ReadFunc  func() ([]byte, ErrorCode)
	WriteFunc func(value []byte) ErrorCode
}

// ErrorCode aliases att.ErrorCode's underlying type without importing att,
// keeping the database attribute-shaped independent of the wire codec.
// Server translates to att.ErrorCode when building a PDU.
type ErrorCode = uint8

// Characteristic describes one characteristic to add to a Service: the
// declared UUID, properties, permissions, and an optional initial value.
type Characteristic struct {
	UUID        codec.UUID
	Properties  CharacteristicProperty
	Perm        AttrPermission
	Value       []byte
	ReadFunc    func() ([]byte, ErrorCode)
	WriteFunc   func(value []byte) ErrorCode
	Descriptors []DescriptorSpec

	// handles populated by AddService
	declHandle  uint16
	valueHandle uint16
	cccdHandle  uint16 // 0 if none
}

// DescriptorSpec describes a non-CCCD descriptor to attach to a
// characteristic. The CCCD itself is added automatically when Properties
// includes PropNotify or PropIndicate.
type DescriptorSpec struct {
	UUID      codec.UUID
	Perm      AttrPermission
	Value     []byte
	ReadFunc  func() ([]byte, ErrorCode)
	WriteFunc func(value []byte) ErrorCode
}

// Service is a primary or secondary service grouping, added to a Database
// via AddService.
type Service struct {
	UUID            codec.UUID
	Secondary       bool
	Characteristics []Characteristic

	startHandle, endHandle uint16
}

// Database is the handle-ordered attribute table a GATT server answers
// requests against. Handles are allocated monotonically starting at 1 as
// services are added; the handle-ordering invariant (spec §4.4: handles
// within a service are contiguous and increasing) holds by construction.
type Database struct {
	mu       sync.RWMutex
	attrs    []*Attribute // kept sorted by Handle
	services []*Service
	next     uint16
}

// NewDatabase returns an empty database with handle allocation starting at 1
// (handle 0 is reserved/invalid per the ATT spec).
func NewDatabase() *Database {
	return &Database{next: 1}
}

// AddService appends svc's declaration, characteristic declarations, value
// attributes, and descriptors (including an implicit CCCD for any
// notify/indicate characteristic) to the database, allocating handles in
// order. It returns the populated Service with its handle range recorded.
func (db *Database) AddService(svc Service) *Service {
	db.mu.Lock()
	defer db.mu.Unlock()

	s := svc
	s.startHandle = db.next
	declType := UUIDPrimaryService
	if s.Secondary {
		declType = UUIDSecondaryService
	}
	db.addAttr(&Attribute{Handle: db.alloc(), Type: declType, Value: s.UUID.Bytes(), Perm: AttrPermission{Read: true}})

	for i := range s.Characteristics {
		c := &s.Characteristics[i]
		c.declHandle = db.alloc()
		c.valueHandle = db.alloc()

		declValue := make([]byte, 0, 3+c.UUID.Len())
		declValue = append(declValue, byte(c.Properties))
		declValue = append(declValue, byte(c.valueHandle), byte(c.valueHandle>>8))
		declValue = append(declValue, c.UUID.Bytes()...)
		db.addAttr(&Attribute{Handle: c.declHandle, Type: UUIDCharacteristic, Value: declValue, Perm: AttrPermission{Read: true}})

		db.addAttr(&Attribute{
			Handle: c.valueHandle, Type: c.UUID, Value: c.Value, Perm: c.Perm,
			ReadFunc: c.ReadFunc, WriteFunc: c.WriteFunc,
		})

		if c.Properties&(PropNotify|PropIndicate) != 0 {
			c.cccdHandle = db.alloc()
			db.addAttr(&Attribute{
				Handle: c.cccdHandle, Type: UUIDClientCharConfig,
				Value: []byte{0x00, 0x00},
				Perm:  AttrPermission{Read: true, Write: true},
			})
		}

		for _, d := range c.Descriptors {
			db.addAttr(&Attribute{
				Handle: db.alloc(), Type: d.UUID, Value: d.Value, Perm: d.Perm,
				ReadFunc: d.ReadFunc, WriteFunc: d.WriteFunc,
			})
		}
	}

	s.endHandle = db.next - 1
	db.services = append(db.services, &s)
	return &s
}

func (db *Database) alloc() uint16 {
	h := db.next
	db.next++
	return h
}

func (db *Database) addAttr(a *Attribute) {
	db.attrs = append(db.attrs, a)
}

// Attr returns the attribute at handle, if present.
func (db *Database) Attr(handle uint16) (*Attribute, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	i := sort.Search(len(db.attrs), func(i int) bool { return db.attrs[i].Handle >= handle })
	if i < len(db.attrs) && db.attrs[i].Handle == handle {
		return db.attrs[i], true
	}
	return nil, false
}

// Range returns every attribute with start <= Handle <= end, in handle order.
func (db *Database) Range(start, end uint16) []*Attribute {
	db.mu.RLock()
	defer db.mu.RUnlock()
	lo := sort.Search(len(db.attrs), func(i int) bool { return db.attrs[i].Handle >= start })
	var out []*Attribute
	for i := lo; i < len(db.attrs) && db.attrs[i].Handle <= end; i++ {
		out = append(out, db.attrs[i])
	}
	return out
}

// Services returns every registered service, in declaration order.
func (db *Database) Services() []*Service {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*Service, len(db.services))
	copy(out, db.services)
	return out
}

// CCCDHandle returns the handle of c's Client Characteristic Configuration
// descriptor, and whether one exists.
func (c *Characteristic) CCCDHandle() (uint16, bool) { return c.cccdHandle, c.cccdHandle != 0 }

// ValueHandle returns the handle holding c's value.
func (c *Characteristic) ValueHandle() uint16 { return c.valueHandle }

// StartHandle/EndHandle report s's handle range within the database.
func (s *Service) StartHandle() uint16 { return s.startHandle }
func (s *Service) EndHandle() uint16   { return s.endHandle }
