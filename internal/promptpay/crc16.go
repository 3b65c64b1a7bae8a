package promptpay

const crcPolynomial = 0x1021

// checksum computes CRC16/CCITT over data: initial value 0xFFFF, MSB first,
// no final XOR. Scanners recompute this over the payload minus the last four
// hex digits to detect corruption.
func checksum(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPolynomial
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
