package loader

// chainloaderCode is a small ARM stub that jumps from the factory
// bootloader into the romloader.
var chainloaderCode = []byte{
	0x0a, 0x18, 0xa0, 0xe3, 0x01, 0x10, 0x51, 0xe2,
	0xfd, 0xff, 0xff, 0x1a, 0x08, 0x10, 0x9f, 0xe5,
	0x01, 0x2c, 0xa0, 0xe3, 0xb0, 0x20, 0xc1, 0xe1,
	0x00, 0xf0, 0xa0, 0xe3, 0x10, 0xfb, 0xff, 0xff,
}

var (
	headerC123 = []byte{0xee, 0x4c, 0x9f, 0x63}
	magic      = []byte{'1', '0', '0', '3'}
)

// MagicOffset is where C140 bootloaders look for the "1003" marker.
const MagicOffset = 0x3be2

// BuildChainloader returns the download image sent after PROMPT2:
//
//	[0x02]            xor variants only
//	length (BE16)     of header + code
//	header (4 bytes)
//	code, padded so the magic fits at MagicOffset on C140 variants
//	[xor checksum]    xor variants only
func BuildChainloader(v Variant) ([]byte, error) {
	if !v.valid() {
		return nil, ErrUnknownVariant
	}

	codeLen := len(chainloaderCode)
	if v.usesMagic() && codeLen <= MagicOffset {
		codeLen = MagicOffset + len(magic)
	}

	prefix := 0
	size := 2 + len(headerC123) + codeLen
	if v.usesXOR() {
		prefix = 1
		size += 2
	}

	img := make([]byte, size)
	off := 0
	if v.usesXOR() {
		img[off] = 0x02
		off++
	}
	bodyLen := len(headerC123) + codeLen
	img[off] = byte(bodyLen >> 8)
	img[off+1] = byte(bodyLen)
	off += 2
	off += copy(img[off:], headerC123)
	copy(img[off:], chainloaderCode)

	if v.usesMagic() {
		copy(img[MagicOffset+prefix:], magic)
	}
	if v.usesXOR() {
		var sum byte
		for _, b := range img[:len(img)-1] {
			sum ^= b
		}
		img[len(img)-1] = sum
	}
	return img, nil
}
