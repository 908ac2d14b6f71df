package provision

import (
	"github.com/google/uuid"
)

// Property flags of a characteristic.
type Property uint8

const (
	PropRead Property = 1 << iota
	PropWrite
	PropNotify
)

// Characteristic describes one attribute of the pairing service.
type Characteristic struct {
	UUID  uuid.UUID
	Name  string
	Props Property
	// Field is the session field fed by writes; FieldNone for read/notify attributes.
	Field Field
}

// Service groups characteristics.
type Service struct {
	UUID            uuid.UUID
	Name            string
	Characteristics []Characteristic
}

var (
	DeviceInfoService = uuid.MustParse("12345678-1234-1234-1234-1234567890a0")
	DeviceIDChar      = uuid.MustParse("12345678-1234-1234-1234-1234567890a1")
	FirmwareChar      = uuid.MustParse("12345678-1234-1234-1234-1234567890a2")

	WiFiService  = uuid.MustParse("12345678-1234-1234-1234-1234567890b0")
	SSIDChar     = uuid.MustParse("12345678-1234-1234-1234-1234567890b1")
	PasswordChar = uuid.MustParse("12345678-1234-1234-1234-1234567890b2")
	CommandChar  = uuid.MustParse("12345678-1234-1234-1234-1234567890b3")
	StatusChar   = uuid.MustParse("12345678-1234-1234-1234-1234567890b4")
	APIKeyChar   = uuid.MustParse("12345678-1234-1234-1234-1234567890b5")
)

// Layout is the attribute table exposed while pairing.
var Layout = []Service{
	{
		UUID: DeviceInfoService,
		Name: "device_info",
		Characteristics: []Characteristic{
			{UUID: DeviceIDChar, Name: "device_id", Props: PropRead, Field: FieldNone},
			{UUID: FirmwareChar, Name: "fw_version", Props: PropRead, Field: FieldNone},
		},
	},
	{
		UUID: WiFiService,
		Name: "wifi_setup",
		Characteristics: []Characteristic{
			{UUID: SSIDChar, Name: "ssid", Props: PropWrite, Field: FieldSSID},
			{UUID: PasswordChar, Name: "password", Props: PropWrite, Field: FieldPassword},
			{UUID: CommandChar, Name: "command", Props: PropWrite, Field: FieldCommand},
			{UUID: StatusChar, Name: "status", Props: PropNotify, Field: FieldNone},
			{UUID: APIKeyChar, Name: "api_key", Props: PropWrite, Field: FieldAPIKey},
		},
	},
}

// Lookup finds a characteristic by UUID.
func Lookup(id uuid.UUID) (Characteristic, bool) {
	for _, svc := range Layout {
		for _, c := range svc.Characteristics {
			if c.UUID == id {
				return c, true
			}
		}
	}
	return Characteristic{}, false
}

// CharacteristicFor returns the writable characteristic feeding f.
func CharacteristicFor(f Field) (Characteristic, bool) {
	for _, svc := range Layout {
		for _, c := range svc.Characteristics {
			if c.Field == f && c.Props&PropWrite != 0 {
				return c, true
			}
		}
	}
	return Characteristic{}, false
}
