package color

// Default I2C address of the TCS34725 style color sensor
const Address = 0x29

// Part IDs reported by ReadID
const (
	PartTCS34725 = 0x44
	PartTCS34727 = 0x4D
)

// PartName names a known part ID
func PartName(id uint8) (string, bool) {
	switch id {
	case PartTCS34725:
		return "TCS34725", true
	case PartTCS34727:
		return "TCS34727", true
	}
	return "", false
}

// Register map. Every register access carries the command bit.
const (
	regCommand = 0x80

	regEnable = 0x00
	regID     = 0x12
	regCData  = 0x14
	regRData  = 0x16
	regGData  = 0x18
	regBData  = 0x1A
)

// Enable register values
const (
	enablePowerOn = 0x01
	enableRGBC    = 0x02
)

// Power-up timing, in milliseconds
const (
	powerOnDelayMS    = 3
	integrationTimeMS = 50
)
