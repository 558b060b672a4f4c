package zmodem

import "hash/crc32"

// CRC32CheckValue is the CRC-32 residue left after running the register
// over data followed by its transmitted (inverted, little-endian) CRC.
const CRC32CheckValue = 0xDEBB20E3

// crc16Table is the CCITT (XMODEM) table, polynomial 0x1021, MSB first.
var crc16Table = func() (tab [256]uint16) {
	for i := range tab {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
		tab[i] = crc
	}
	return tab
}()

// updcrc16 feeds one byte into a CRC-16 register. Running it over a
// message followed by its big-endian CRC yields zero.
func updcrc16(b byte, crc uint16) uint16 {
	return crc<<8 ^ crc16Table[byte(crc>>8)^b]
}

// updcrc32 feeds one byte into a reflected CRC-32 register.
// Start from 0xFFFFFFFF and invert before sending.
func updcrc32(b byte, crc uint32) uint32 {
	return crc32.IEEETable[byte(crc)^b] ^ crc>>8
}
