package sysex

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrPattern = errors.New("invalid pattern")

// ParsePattern reads the text form of a token list. Items are separated by
// whitespace:
//
//	7E          literal byte
//	06.02       literal sequence
//	skip:4      ignore 4 bytes
//	buf:0102    owned buffer
//	cap:device  capture a scalar tag (channel velocity device param control value msb lsb)
//	dump:16     capture 16 raw bytes
func ParsePattern(text string) ([]Token, error) {
	var tokens []Token
	for _, item := range strings.Fields(text) {
		tok, err := parseItem(item)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
	}
	return tokens, nil
}

// MustParsePattern is ParsePattern for patterns known at compile time
func MustParsePattern(text string) []Token {
	tokens, err := ParsePattern(text)
	if err != nil {
		panic(err)
	}
	return tokens
}

// FormatPattern is the inverse of ParsePattern
func FormatPattern(tokens []Token) string {
	items := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t.kind == KindSeq && len(t.bytes) == 0 {
			continue
		}
		if t.kind == KindSeq && len(t.bytes) == 1 {
			// a single byte sequence prints like a Val
			items = append(items, fmt.Sprintf("%02X.", t.bytes[0]))
			continue
		}
		items = append(items, t.String())
	}
	return strings.Join(items, " ")
}

func parseItem(item string) (Token, error) {
	key, arg, hasArg := strings.Cut(item, ":")
	if !hasArg {
		return parseLiteral(item)
	}
	switch strings.ToLower(key) {
	case "skip":
		n, err := parseCount(item, arg)
		if err != nil {
			return Token{}, err
		}
		return Skip(n), nil
	case "dump":
		n, err := parseCount(item, arg)
		if err != nil {
			return Token{}, err
		}
		return Cap(Dump(n)), nil
	case "buf":
		bs, err := hex.DecodeString(arg)
		if err != nil {
			return Token{}, fmt.Errorf("%w: %q: %v", ErrPattern, item, err)
		}
		return Buf(bs), nil
	case "cap":
		tag, ok := scalarTag(strings.ToLower(arg))
		if !ok {
			return Token{}, fmt.Errorf("%w: %q: unknown tag", ErrPattern, item)
		}
		return Cap(tag), nil
	}
	return Token{}, fmt.Errorf("%w: %q: unknown item", ErrPattern, item)
}

func parseLiteral(item string) (Token, error) {
	parts := strings.Split(item, ".")
	isSeq := len(parts) > 1
	var bs []byte
	for _, p := range parts {
		if p == "" && isSeq {
			continue
		}
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil || len(p) > 2 {
			return Token{}, fmt.Errorf("%w: %q: not a hex byte", ErrPattern, item)
		}
		bs = append(bs, byte(v))
	}
	if !isSeq {
		return Val(bs[0]), nil
	}
	return Seq(bs...), nil
}

func parseCount(item, arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q: bad count", ErrPattern, item)
	}
	return n, nil
}

func scalarTag(name string) (Tag, bool) {
	for k, n := range tagNames {
		if n == name && TagKind(k) != TagDump {
			return Tag{kind: TagKind(k)}, true
		}
	}
	return Tag{}, false
}
