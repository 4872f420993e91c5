package device

import "time"

// Config carries every externally configurable attribute of the device
// object, matching the process-configuration options the command line
// recognizes.
type Config struct {
	Instance uint32 // 0 - 4194303

	Name        string
	Description string

	VendorIdentifier           uint32
	VendorName                 string
	ModelName                  string
	FirmwareRevision           string
	ApplicationSoftwareVersion string
	DatabaseRevision           uint32

	MaxAPDULengthAccepted uint32
	APDUTimeout           time.Duration
	APDURetries           uint32
	APDUSegmentTimeout    time.Duration

	Location     string
	SerialNumber string

	Port int

	// BroadcastAddress is the subnet directed broadcast address
	// (e.g. "192.168.1.255") Who-Is/I-Am and other broadcasts are sent to.
	// Empty uses the limited broadcast address 255.255.255.255.
	BroadcastAddress string
}

// DefaultConfig returns a Config populated with this server's documented
// defaults for every field left unspecified.
func DefaultConfig(instance uint32, name string) Config {
	return Config{
		Instance:              instance,
		Name:                  name,
		MaxAPDULengthAccepted: 1476,
		APDUTimeout:           6000 * time.Millisecond,
		APDURetries:           3,
		APDUSegmentTimeout:    2000 * time.Millisecond,
		Port:                  47808,
	}
}
