package sysex

import "fmt"

// TokenKind discriminates the variants of Token
type TokenKind uint8

const (
	KindSeq  TokenKind = iota // literal byte sequence
	KindVal                   // literal byte
	KindSkip                  // n bytes of anything
	KindBuf                   // owned variable length buffer
	KindCap                   // capture under a tag
)

// Token is one element of a pattern. The set of variants is closed; build
// tokens with Seq, Val, Skip, Buf and Cap and switch on Kind.
type Token struct {
	kind  TokenKind
	bytes []byte
	val   byte
	n     int
	tag   Tag
}

// Seq matches or emits the exact bytes given
func Seq(bs ...byte) Token {
	return Token{kind: KindSeq, bytes: append([]byte(nil), bs...)}
}

func Val(b byte) Token {
	return Token{kind: KindVal, val: b}
}

// Skip ignores n incoming bytes. Encoding a Skip emits nothing.
func Skip(n int) Token {
	if n < 0 {
		n = 0
	}
	return Token{kind: KindSkip, n: n}
}

// Buf owns a copy of bs. It emits bs when encoding and accepts len(bs)
// bytes of anything when matching, without recording them.
func Buf(bs []byte) Token {
	return Token{kind: KindBuf, bytes: append([]byte(nil), bs...)}
}

// Cap captures tag.Size() incoming bytes under tag. Encoding a Cap emits
// nothing; see Bind.
func Cap(tag Tag) Token {
	return Token{kind: KindCap, tag: tag}
}

func (t Token) Kind() TokenKind {
	return t.kind
}

// Tag returns the captured tag of a Cap token
func (t Token) Tag() (Tag, bool) {
	return t.tag, t.kind == KindCap
}

// Width is the number of incoming bytes the token consumes when matching.
// A Buf consumes len(buf) bytes, not one. Zero width tokens such as Skip(0),
// a zero sized dump capture or an empty Seq consume nothing and are stepped
// over by the matcher.
func (t Token) Width() int {
	switch t.kind {
	case KindSeq, KindBuf:
		return len(t.bytes)
	case KindVal:
		return 1
	case KindSkip:
		return t.n
	case KindCap:
		return t.tag.Size()
	}
	return 0
}

// Emitted returns the bytes the token contributes to an encoded message
func (t Token) Emitted() []byte {
	switch t.kind {
	case KindSeq, KindBuf:
		return t.bytes
	case KindVal:
		return []byte{t.val}
	}
	return nil
}

// at returns the literal byte expected at offset i of a Seq or Val token
func (t Token) at(i int) byte {
	if t.kind == KindVal {
		return t.val
	}
	return t.bytes[i]
}

func (t Token) String() string {
	switch t.kind {
	case KindSeq:
		return formatRun(t.bytes, ".")
	case KindVal:
		return fmt.Sprintf("%02X", t.val)
	case KindSkip:
		return fmt.Sprintf("skip:%d", t.n)
	case KindBuf:
		return "buf:" + formatRun(t.bytes, "")
	case KindCap:
		if t.tag.kind == TagDump {
			return t.tag.String()
		}
		return "cap:" + t.tag.String()
	}
	return "?"
}

// Bytes flattens the bytes a token list emits
func Bytes(tokens []Token) []byte {
	var out []byte
	for _, t := range tokens {
		out = append(out, t.Emitted()...)
	}
	return out
}

func formatRun(bs []byte, sep string) string {
	s := ""
	for i, b := range bs {
		if i > 0 {
			s += sep
		}
		s += fmt.Sprintf("%02X", b)
	}
	return s
}
