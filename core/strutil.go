package core

// String helpers for log lines. Firmware builds avoid fmt.

func appendUint(buf []byte, n uint32) []byte {
	var tmp [10]byte
	i := len(tmp)
	for {
		i--
		tmp[i] = byte('0' + n%10)
		n /= 10
		if n == 0 {
			break
		}
	}
	return append(buf, tmp[i:]...)
}

func itoa(n int) string {
	var buf [12]byte
	b := buf[:0]
	if n < 0 {
		b = append(b, '-')
		return string(appendUint(b, uint32(-int64(n))))
	}
	return string(appendUint(b, uint32(n)))
}

func utoa(n uint32) string {
	var buf [10]byte
	return string(appendUint(buf[:0], n))
}

// hex formats n as 0x-prefixed uppercase hex with at least digits digits
func hex(n uint32, digits int) string {
	const chars = "0123456789ABCDEF"
	var tmp [8]byte
	i := len(tmp)
	for n != 0 || len(tmp)-i < digits {
		i--
		tmp[i] = chars[n&0xF]
		n >>= 4
		if i == 0 {
			break
		}
	}
	return "0x" + string(tmp[i:])
}

// ftoa formats f with three decimals
func ftoa(f float32) string {
	var buf [24]byte
	b := buf[:0]
	if f != f {
		return "NaN"
	}
	if f < 0 {
		b = append(b, '-')
		f = -f
	}
	if f >= 4e9 {
		return string(append(b, "inf"...))
	}
	milli := uint64(f*1000 + 0.5)
	b = appendUint(b, uint32(milli/1000))
	frac := uint32(milli % 1000)
	b = append(b, '.', byte('0'+frac/100), byte('0'+frac/10%10), byte('0'+frac%10))
	return string(b)
}
