package slots

import "strings"

const crc16Poly = 0x1021

// Checksum16 computes CRC16/XMODEM: polynomial 0x1021, zero initial value,
// no final XOR, most significant bit first.
func Checksum16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// NormalizeKey trims surrounding whitespace and a single pair of braces
// wrapping the whole identifier. This is not Redis hash-tag extraction,
// see HashTag for that.
func NormalizeKey(id string) string {
	key := strings.TrimSpace(id)
	if len(key) >= 2 && key[0] == '{' && key[len(key)-1] == '}' {
		key = strings.TrimSpace(key[1 : len(key)-1])
	}
	return key
}

// CRC16Slot returns the zero-based slot in [0, n) for a device identifier,
// hashing the brace-trimmed key. A missing identifier yields None.
func CRC16Slot(id string, n int) (Slot, error) {
	if n <= 0 {
		return None(), ErrInvalidSlotCount
	}
	key := NormalizeKey(id)
	if key == "" {
		return None(), nil
	}
	return Of(int(Checksum16([]byte(key))) % n), nil
}

// HashTag returns the part of key that Redis Cluster hashes: the substring
// between the first '{' and the next '}', when that substring is not empty.
func HashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return key
	}
	end := strings.IndexByte(key[start+1:], '}')
	if end <= 0 {
		return key
	}
	return key[start+1 : start+1+end]
}

// RedisSlot is the exact CLUSTER KEYSLOT computation.
func RedisSlot(key string) Slot {
	return Of(int(Checksum16([]byte(HashTag(key))) & (RedisSlots - 1)))
}
