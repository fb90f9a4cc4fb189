package fcgi

import (
	"encoding/binary"
	"fmt"
)

// Pair is one name/value entry of the params stream.
type Pair struct {
	Name  []byte
	Value []byte
}

// Params is an ordered name/value mapping. Setting an existing name replaces
// its value in place, so the first insertion position is kept on the wire.
type Params struct {
	pairs []Pair
	index map[string]int
}

// NewParams returns an empty mapping.
func NewParams() *Params {
	return &Params{index: make(map[string]int)}
}

// ParamsFrom builds a mapping from name/value strings in order.
func ParamsFrom(kv ...string) *Params {
	p := NewParams()
	for i := 0; i+1 < len(kv); i += 2 {
		p.Set(kv[i], kv[i+1])
	}
	return p
}

// Set adds or replaces name.
func (p *Params) Set(name, value string) *Params {
	return p.SetBytes([]byte(name), []byte(value))
}

// SetBytes adds or replaces name without converting through strings.
func (p *Params) SetBytes(name, value []byte) *Params {
	if p.index == nil {
		p.index = make(map[string]int)
	}
	if i, ok := p.index[string(name)]; ok {
		p.pairs[i].Value = value
		return p
	}
	p.index[string(name)] = len(p.pairs)
	p.pairs = append(p.pairs, Pair{Name: name, Value: value})
	return p
}

// Get returns the value for name.
func (p *Params) Get(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	i, ok := p.index[name]
	if !ok {
		return "", false
	}
	return string(p.pairs[i].Value), true
}

// Del removes name, keeping the order of the remaining pairs.
func (p *Params) Del(name string) {
	i, ok := p.index[name]
	if !ok {
		return
	}
	p.pairs = append(p.pairs[:i], p.pairs[i+1:]...)
	delete(p.index, name)
	for j := i; j < len(p.pairs); j++ {
		p.index[string(p.pairs[j].Name)] = j
	}
}

// Len returns the number of pairs.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.pairs)
}

// Each calls fn for every pair in insertion order until fn returns false.
func (p *Params) Each(fn func(name, value string) bool) {
	if p == nil {
		return
	}
	for _, pair := range p.pairs {
		if !fn(string(pair.Name), string(pair.Value)) {
			return
		}
	}
}

// Pairs returns the pairs in insertion order. The slice must not be modified.
func (p *Params) Pairs() []Pair {
	if p == nil {
		return nil
	}
	return p.pairs
}

// Clone returns an independent copy.
func (p *Params) Clone() *Params {
	c := NewParams()
	if p == nil {
		return c
	}
	for _, pair := range p.pairs {
		c.SetBytes(append([]byte(nil), pair.Name...), append([]byte(nil), pair.Value...))
	}
	return c
}

// pairSize returns the encoded size of one pair.
func pairSize(nameLen, valueLen int) int {
	size := 1 + 1 + nameLen + valueLen
	if nameLen > 127 {
		size += 3
	}
	if valueLen > 127 {
		size += 3
	}
	return size
}

func appendLength(dst []byte, n int) []byte {
	if n > 127 {
		return binary.BigEndian.AppendUint32(dst, uint32(n)|1<<31)
	}
	return append(dst, byte(n))
}

// AppendPair appends the encoding of one pair to dst: nameLength, valueLength,
// name, value. Lengths below 128 take one byte, others four with the high bit set.
func AppendPair(dst, name, value []byte) []byte {
	dst = appendLength(dst, len(name))
	dst = appendLength(dst, len(value))
	dst = append(dst, name...)
	return append(dst, value...)
}

// EncodeParams encodes p into FCGI_PARAMS record bodies of at most MaxContent
// bytes each. Pairs are packed whole while they fit; a pair larger than one
// record is split across consecutive bodies since the stream is read as one
// concatenated byte sequence. The empty terminating record is not included.
func EncodeParams(p *Params) [][]byte {
	var bodies [][]byte
	var cur []byte
	for _, pair := range p.Pairs() {
		size := pairSize(len(pair.Name), len(pair.Value))
		if len(cur)+size > MaxContent && len(cur) > 0 {
			bodies = append(bodies, cur)
			cur = nil
		}
		if size <= MaxContent {
			cur = AppendPair(cur, pair.Name, pair.Value)
			continue
		}
		encoded := AppendPair(make([]byte, 0, size), pair.Name, pair.Value)
		for len(encoded) > MaxContent {
			bodies = append(bodies, encoded[:MaxContent])
			encoded = encoded[MaxContent:]
		}
		cur = encoded
	}
	if len(cur) > 0 {
		bodies = append(bodies, cur)
	}
	return bodies
}

func readLength(content []byte, at int) (n int, next int, err error) {
	if at >= len(content) {
		return 0, at, &ProtocolError{Reason: "params: truncated length"}
	}
	if content[at]&0x80 == 0 {
		return int(content[at]), at + 1, nil
	}
	if at+4 > len(content) {
		return 0, at, &ProtocolError{Reason: "params: truncated 4-byte length"}
	}
	return int(binary.BigEndian.Uint32(content[at:at+4]) &^ (1 << 31)), at + 4, nil
}

// DecodeParams decodes a concatenated params stream back into pairs in wire order.
func DecodeParams(content []byte) ([]Pair, error) {
	var pairs []Pair
	for at := 0; at < len(content); {
		nameLen, next, err := readLength(content, at)
		if err != nil {
			return nil, err
		}
		valueLen, next, err := readLength(content, next)
		if err != nil {
			return nil, err
		}
		remain := len(content) - next
		if nameLen > remain || valueLen > remain-nameLen {
			return nil, &ProtocolError{Reason: fmt.Sprintf("params: declared length %d+%d exceeds remaining %d bytes", nameLen, valueLen, remain)}
		}
		name := content[next : next+nameLen]
		value := content[next+nameLen : next+nameLen+valueLen]
		pairs = append(pairs, Pair{Name: name, Value: value})
		at = next + nameLen + valueLen
	}
	return pairs, nil
}
