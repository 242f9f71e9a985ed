package core

// ReadNodeID reads a binary-weighted switch bank; pins[i] is bit i. A high
// input is a set bit.
func ReadNodeID(pins []InputPin) uint8 {
	var id uint8
	for i, p := range pins {
		if i >= 8 {
			break
		}
		if p.Get() {
			id |= 1 << i
		}
	}
	return id
}
