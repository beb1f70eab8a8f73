package sysex

// Bind returns a copy of pattern with every Cap token replaced by a Buf
// holding the bytes captured under its tag, so the result can be encoded.
// Captures are padded with zeros or cut to the tag size. Tags missing from
// values keep their Cap token and emit nothing.
//
// Tags that appear more than once in pattern share one capture buffer when
// matching; Bind hands out consecutive slices of it in pattern order.
func Bind(pattern []Token, values CaptureBuffer) []Token {
	out := make([]Token, len(pattern))
	used := make(map[Tag]int)
	for i, t := range pattern {
		tag, ok := t.Tag()
		if !ok {
			out[i] = t
			continue
		}
		bs, ok := values.Get(tag)
		if !ok {
			out[i] = t
			continue
		}
		size := tag.Size()
		buf := make([]byte, size)
		off := used[tag]
		if off < len(bs) {
			copy(buf, bs[off:])
		}
		used[tag] = off + size
		out[i] = Buf(buf)
	}
	return out
}
