package pak

// alphabet maps the archive's 6-bit name codes to characters. Codes 28 and 29
// are reserved and decode to '?'.
var alphabet = [44]byte{
	0, 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n',
	'o', 'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z', '\\', '?', '?',
	'-', '_', '\'', '.', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9',
}

var codes = func() [256]int8 {
	var c [256]int8
	for i := range c {
		c[i] = -1
	}
	for i := len(alphabet) - 1; i >= 0; i-- {
		c[alphabet[i]] = int8(i)
	}
	return c
}()

// decodeChar maps a name-table byte to its character.
func decodeChar(code byte) byte {
	if int(code) >= len(alphabet) {
		return '?'
	}
	return alphabet[code]
}

// encodeChar returns the alphabet code for c, or -1 when c cannot appear in
// an archive path.
func encodeChar(c byte) int {
	return int(codes[c])
}
