package tmc2209

import "errors"

var (
	ErrCRC        = errors.New("tmc2209: crc mismatch")
	ErrSync       = errors.New("tmc2209: bad sync byte")
	ErrReplyAddr  = errors.New("tmc2209: reply not addressed to master")
	ErrReplyReg   = errors.New("tmc2209: reply for another register")
	ErrShortReply = errors.New("tmc2209: short reply")
)

// crc8 computes the UART datagram CRC (polynomial x^8+x^2+x+1, bits fed LSB first)
func crc8(data []byte) uint8 {
	var crc uint8
	for _, b := range data {
		for j := 0; j < 8; j++ {
			if (crc>>7)^(b&0x01) != 0 {
				crc = (crc << 1) ^ 0x07
			} else {
				crc <<= 1
			}
			b >>= 1
		}
	}
	return crc
}

// EncodeWrite builds the 8-byte write datagram for a register
func EncodeWrite(addr, reg uint8, value uint32) [WRITE_DATAGRAM_LEN]byte {
	d := [WRITE_DATAGRAM_LEN]byte{
		SYNC,
		addr,
		reg | WRITE_BIT,
		byte(value >> 24),
		byte(value >> 16),
		byte(value >> 8),
		byte(value),
	}
	d[7] = crc8(d[:7])
	return d
}

// EncodeReadRequest builds the 4-byte read request datagram
func EncodeReadRequest(addr, reg uint8) [READ_REQUEST_LEN]byte {
	d := [READ_REQUEST_LEN]byte{SYNC, addr, reg &^ WRITE_BIT}
	d[3] = crc8(d[:3])
	return d
}

// EncodeReadReply builds the driver's reply to a read request. Used by
// simulated drivers and tests.
func EncodeReadReply(reg uint8, value uint32) [READ_REPLY_LEN]byte {
	d := [READ_REPLY_LEN]byte{
		SYNC,
		MASTER_ADDR,
		reg &^ WRITE_BIT,
		byte(value >> 24),
		byte(value >> 16),
		byte(value >> 8),
		byte(value),
	}
	d[7] = crc8(d[:7])
	return d
}

// DecodeReadReply validates a reply datagram and extracts the register value
func DecodeReadReply(reg uint8, data []byte) (uint32, error) {
	if len(data) < READ_REPLY_LEN {
		return 0, ErrShortReply
	}
	if data[0]&0x0F != SYNC {
		return 0, ErrSync
	}
	if crc8(data[:7]) != data[7] {
		return 0, ErrCRC
	}
	if data[1] != MASTER_ADDR {
		return 0, ErrReplyAddr
	}
	if data[2] != reg&^WRITE_BIT {
		return 0, ErrReplyReg
	}
	return uint32(data[3])<<24 | uint32(data[4])<<16 | uint32(data[5])<<8 | uint32(data[6]), nil
}
