package wire

// cursor is a bounds-checked view over the unread remainder of a packet.
// Every advance is an atomic checked step: it either moves the cursor and
// shrinks the remaining length, or refuses and leaves the cursor alone.
type cursor struct {
	rem []byte
}

func (c *cursor) len() int {
	return len(c.rem)
}

// advance moves the cursor forward n bytes. It fails closed when n exceeds
// the remaining length.
func (c *cursor) advance(n int) bool {
	if n < 0 || n > len(c.rem) {
		return false
	}
	c.rem = c.rem[n:]
	return true
}
