package protocol

// CRC16 returns the CRC-16/MCRF4XX checksum protecting each block: the
// reflected CCITT polynomial, 0xFFFF seed and no final xor.
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc)
		b ^= b << 4
		w := uint16(b)
		crc = (w<<8 | crc>>8) ^ (w >> 4) ^ (w << 3)
	}
	return crc
}
