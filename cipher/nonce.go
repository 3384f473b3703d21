package cipher

// Increment treats b as a little-endian unsigned integer and adds one,
// carrying and wrapping silently around on overflow.
func Increment(b []byte) {
	for i := range b {
		b[i]++
		if b[i] != 0 {
			return
		}
	}
}

// NewNonce returns a zeroed nonce of NonceSize bytes, the initial value for
// a direction's nonce counter.
func NewNonce() []byte {
	return make([]byte, NonceSize)
}
