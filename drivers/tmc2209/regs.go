package tmc2209

// TMC2209 Register Definitions
// Based on TMC2209 datasheet Rev. 1.09

// TMC2209 Register Addresses
const (
	GCONF      = 0x00 // Global configuration flags
	GSTAT      = 0x01 // Global status flags
	IFCNT      = 0x02 // Interface transmission counter (read only)
	SLAVECONF  = 0x03 // SENDDELAY for read access
	IOIN       = 0x06 // Reads the state of all input pins
	IHOLD_IRUN = 0x10 // Driver current control
	TPOWERDOWN = 0x11 // Delay after standstill before power down
	TSTEP      = 0x12 // Measured time between two steps (read only)
	TPWMTHRS   = 0x13 // Upper velocity for StealthChop
	TCOOLTHRS  = 0x14 // Lower velocity for CoolStep and StallGuard output
	SGTHRS     = 0x40 // StallGuard threshold
	SG_RESULT  = 0x41 // StallGuard result (read only)
	COOLCONF   = 0x42 // CoolStep configuration
	CHOPCONF   = 0x6C // Chopper configuration
	DRV_STATUS = 0x6F // Driver status flags (read only)
)

// GCONF Register Bit Definitions
const (
	GCONF_I_SCALE_ANALOG   = 1 << 0 // Use VREF as current reference
	GCONF_INTERNAL_RSENSE  = 1 << 1 // Internal sense resistors
	GCONF_EN_SPREADCYCLE   = 1 << 2 // SpreadCycle instead of StealthChop
	GCONF_SHAFT            = 1 << 3 // Inverse motor direction
	GCONF_INDEX_OTPW       = 1 << 4 // INDEX shows overtemperature pre-warning
	GCONF_INDEX_STEP       = 1 << 5 // INDEX shows step pulses
	GCONF_PDN_DISABLE      = 1 << 6 // PDN_UART input function disabled
	GCONF_MSTEP_REG_SELECT = 1 << 7 // Microstep resolution from MRES register
	GCONF_MULTISTEP_FILT   = 1 << 8 // Software pulse generator optimization
)

// CHOPCONF Register Fields
const (
	CHOPCONF_VSENSE     = 1 << 17 // High sensitivity, low sense resistor voltage
	CHOPCONF_MRES_SHIFT = 24      // Microstep resolution, 4 bits
	CHOPCONF_MRES_MASK  = 0xF << CHOPCONF_MRES_SHIFT
	CHOPCONF_INTPOL     = 1 << 28 // Interpolation to 256 microsteps

	MRES_FULLSTEP = 0b1000 // One step per full step
)

// Power-on defaults of the registers written during configuration
const (
	GCONF_DEFAULT    = GCONF_I_SCALE_ANALOG | GCONF_MULTISTEP_FILT
	CHOPCONF_DEFAULT = 0x10000053 // TOFF=3, HSTRT=5, HEND=0, TBL=0, intpol=1

	// SENDDELAY of 2 bit times, the minimum for several drivers on one line
	SLAVECONF_SENDDELAY_MIN = 2 << 8

	// Upper bound of the 20-bit velocity thresholds
	TSTEP_MAX = 0xFFFFF

	SGTHRS_DEFAULT = 100
)

// Datagram constants
const (
	SYNC          = 0x05 // Sync nibble plus reserved bits
	WRITE_BIT     = 0x80 // Register address bit 7 marks a write
	MASTER_ADDR   = 0xFF // Address field of replies
	MAX_NODE_ADDR = 3    // MS1/MS2 select addresses 0 to 3

	WRITE_DATAGRAM_LEN = 8
	READ_REQUEST_LEN   = 4
	READ_REPLY_LEN     = 8
)

// ChopConf builds a CHOPCONF value from the power-on default
func ChopConf(mres uint32, vsense bool) uint32 {
	v := uint32(CHOPCONF_DEFAULT)&^CHOPCONF_MRES_MASK | (mres<<CHOPCONF_MRES_SHIFT)&CHOPCONF_MRES_MASK
	if vsense {
		v |= CHOPCONF_VSENSE
	} else {
		v &^= CHOPCONF_VSENSE
	}
	return v
}
