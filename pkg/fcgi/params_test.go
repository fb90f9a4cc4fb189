package fcgi

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestParamsRoundTrip(t *testing.T) {
	longName := strings.Repeat("N", 200)
	longValue := strings.Repeat("v", 300)

	p := ParamsFrom(
		"SHORT", "x",
		longName, "short value",
		"LONG_VALUE", longValue,
		longName+"_2", longValue,
		"EMPTY", "",
	)

	var stream []byte
	for _, body := range EncodeParams(p) {
		stream = append(stream, body...)
	}
	pairs, err := DecodeParams(stream)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := p.Pairs()
	if len(pairs) != len(want) {
		t.Fatalf("got %d pairs, want %d", len(pairs), len(want))
	}
	for i := range want {
		if !bytes.Equal(pairs[i].Name, want[i].Name) || !bytes.Equal(pairs[i].Value, want[i].Value) {
			t.Errorf("pair %d: got %q=%q", i, pairs[i].Name, truncate(pairs[i].Value))
		}
	}
}

func truncate(b []byte) string {
	if len(b) > 20 {
		return string(b[:20]) + "..."
	}
	return string(b)
}

func TestAppendPairLengths(t *testing.T) {
	testCases := []struct {
		nameLen int
		prefix  []byte
	}{
		{5, []byte{5, 1}},
		{127, []byte{127, 1}},
		{128, []byte{0x80, 0, 0, 128, 1}},
		{200, []byte{0x80, 0, 0, 200, 1}},
		{70000, []byte{0x80, 0x01, 0x11, 0x70, 1}},
	}

	for _, tc := range testCases {
		got := AppendPair(nil, bytes.Repeat([]byte("a"), tc.nameLen), []byte("b"))
		if !bytes.HasPrefix(got, tc.prefix) {
			t.Errorf("name length %d: prefix % x, want % x", tc.nameLen, got[:len(tc.prefix)], tc.prefix)
		}
		if len(got) != len(tc.prefix)+tc.nameLen+1 {
			t.Errorf("name length %d: encoded %d bytes", tc.nameLen, len(got))
		}
	}
}

func TestParamsSetKeepsOrder(t *testing.T) {
	p := NewParams()
	p.Set("A", "1").Set("B", "2").Set("C", "3")
	p.Set("A", "changed")
	p.Del("B")

	var names []string
	p.Each(func(name, value string) bool {
		names = append(names, name+"="+value)
		return true
	})
	if got := strings.Join(names, ","); got != "A=changed,C=3" {
		t.Errorf("got %s", got)
	}
	if v, ok := p.Get("C"); !ok || v != "3" {
		t.Errorf("Get after Del: %q %v", v, ok)
	}
	if _, ok := p.Get("B"); ok {
		t.Error("deleted name still present")
	}

	c := p.Clone()
	c.Set("A", "clone")
	if v, _ := p.Get("A"); v != "changed" {
		t.Error("Clone shares values with the original")
	}
}

func TestEncodeParamsRecordLimit(t *testing.T) {
	p := NewParams()
	for i := 0; i < 40; i++ {
		p.Set(strings.Repeat("K", 10)+string(rune('a'+i%26))+strings.Repeat("k", i), strings.Repeat("v", 3000))
	}
	p.Set("HUGE", strings.Repeat("h", 150000))

	bodies := EncodeParams(p)
	if len(bodies) < 3 {
		t.Fatalf("expected the params to span several records, got %d", len(bodies))
	}
	var stream []byte
	for i, body := range bodies {
		if len(body) == 0 || len(body) > MaxContent {
			t.Errorf("body %d has %d bytes", i, len(body))
		}
		stream = append(stream, body...)
	}

	pairs, err := DecodeParams(stream)
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != p.Len() {
		t.Fatalf("got %d pairs, want %d", len(pairs), p.Len())
	}
	last := pairs[len(pairs)-1]
	if string(last.Name) != "HUGE" || len(last.Value) != 150000 {
		t.Errorf("last pair %q has %d value bytes", last.Name, len(last.Value))
	}
}

func TestEncodeParamsEmpty(t *testing.T) {
	if bodies := EncodeParams(nil); len(bodies) != 0 {
		t.Errorf("expected no bodies, got %d", len(bodies))
	}
	if bodies := EncodeParams(NewParams()); len(bodies) != 0 {
		t.Errorf("expected no bodies, got %d", len(bodies))
	}
}

func TestDecodeParamsErrors(t *testing.T) {
	testCases := []struct {
		name  string
		input []byte
	}{
		{"name longer than body", []byte{10, 1, 'a', 'b'}},
		{"value longer than body", []byte{1, 10, 'a', 'b'}},
		{"missing value length", []byte{1}},
		{"truncated 4-byte length", []byte{0x80, 0, 1}},
		{"huge declared length", []byte{0xff, 0xff, 0xff, 0xff, 0, 'a'}},
	}

	for _, tc := range testCases {
		_, err := DecodeParams(tc.input)
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Errorf("%s: expected a ProtocolError, got %v", tc.name, err)
		}
	}
}
