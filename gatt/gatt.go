// Package gatt implements the Generic Attribute Profile client and server
// named in spec §4.4: an attribute database with handle-ordering invariant,
// a client that discovers services/characteristics/descriptors over ATT and
// dispatches notifications/indications, and a server that answers ATT
// requests against the database with permission and encryption checks.
package gatt

import "github.com/nimbusvale/directble/codec"

// GATT declaration and descriptor UUIDs from the Bluetooth SIG assigned
// numbers, used to tag attributes in the database.
var (
	UUIDPrimaryService        = codec.UUID16(0x2800)
	UUIDSecondaryService      = codec.UUID16(0x2801)
	UUIDInclude               = codec.UUID16(0x2802)
	UUIDCharacteristic        = codec.UUID16(0x2803)
	UUIDCharExtendedProps     = codec.UUID16(0x2900)
	UUIDCharUserDescription   = codec.UUID16(0x2901)
	UUIDClientCharConfig      = codec.UUID16(0x2902)
	UUIDServerCharConfig      = codec.UUID16(0x2903)
)

// CharacteristicProperty bits, as carried in a characteristic declaration's
// value (first octet).
type CharacteristicProperty uint8

const (
	PropBroadcast       CharacteristicProperty = 1 << 0
	PropRead            CharacteristicProperty = 1 << 1
	PropWriteNoResponse CharacteristicProperty = 1 << 2
	PropWrite           CharacteristicProperty = 1 << 3
	PropNotify          CharacteristicProperty = 1 << 4
	PropIndicate        CharacteristicProperty = 1 << 5
	PropAuthSignedWrite CharacteristicProperty = 1 << 6
	PropExtendedProps   CharacteristicProperty = 1 << 7
)

// CCCD bit values, written by the client to enable notifications/indications.
const (
	CCCDNotificationEnable uint16 = 1 << 0
	CCCDIndicationEnable   uint16 = 1 << 1
)
