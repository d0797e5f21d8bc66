package blocklist

import (
	"strings"
	"testing"

	"github.com/kestrelfaas/kestrel/internal/ipaddr"
)

func TestParseLinesTolerant(t *testing.T) {
	input := `
# comment line
203.0.113.7
203.0.113.8/32, trailing notes ignored
  198.51.100.0/24 ; another comment marker
not-an-ip
10.0.0.0/8
`
	entries, err := ParseLines(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("got %d entries, want 4: %+v", len(entries), entries)
	}
}

func TestCoalesceMergesAdjacentAndOverlapping(t *testing.T) {
	a, _ := ipaddr.ParseIPv4("10.0.0.0")
	b, _ := ipaddr.ParseIPv4("10.0.0.5")
	c, _ := ipaddr.ParseIPv4("10.0.0.6")
	d, _ := ipaddr.ParseIPv4("10.0.0.10")
	e, _ := ipaddr.ParseIPv4("10.0.1.0")
	f, _ := ipaddr.ParseIPv4("10.0.1.10")

	ranges := []Range{
		{First: c, Last: d}, // 10.0.0.6 - 10.0.0.10
		{First: a, Last: b}, // 10.0.0.0 - 10.0.0.5 (adjacent to above)
		{First: e, Last: f}, // disjoint
	}
	out := Coalesce(ranges)
	if len(out) != 2 {
		t.Fatalf("got %d coalesced ranges, want 2: %+v", len(out), out)
	}
	if out[0].First != a || out[0].Last != d {
		t.Fatalf("first merged range = %+v, want [%d,%d]", out[0], a, d)
	}
}

func TestCoalesceIdempotent(t *testing.T) {
	a, _ := ipaddr.ParseIPv4("1.2.3.4")
	b, _ := ipaddr.ParseIPv4("1.2.3.10")
	ranges := []Range{{First: a, Last: b}}
	once := Coalesce(ranges)
	twice := Coalesce(once)
	if len(once) != len(twice) || once[0] != twice[0] {
		t.Fatalf("coalesce not idempotent: %+v vs %+v", once, twice)
	}
}

func TestBuildRoundTripRNG1(t *testing.T) {
	built, err := Build(strings.NewReader("203.0.113.7\n10.0.0.0/8\n"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data := built.EncodeRNG1()
	decoded, err := DecodeRNG1(data)
	if err != nil {
		t.Fatalf("DecodeRNG1: %v", err)
	}
	if len(decoded) != len(built.Ranges) {
		t.Fatalf("decoded %d ranges, want %d", len(decoded), len(built.Ranges))
	}
	for i := range decoded {
		if decoded[i] != built.Ranges[i] {
			t.Fatalf("range %d mismatch: got %+v, want %+v", i, decoded[i], built.Ranges[i])
		}
	}
}

func TestBuildTRI1RootAtOffset8(t *testing.T) {
	built, err := Build(strings.NewReader("203.0.113.7/32\n"))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data := built.EncodeTRI1()
	if string(data[:4]) != MagicTRI1 {
		t.Fatalf("missing TRI1 magic")
	}
	nodeType, bitIndex, _, _, err := ReadTriNode(data, 8)
	if err != nil {
		t.Fatalf("ReadTriNode at root: %v", err)
	}
	if nodeType != nodeTypeLeaf {
		t.Fatalf("expected a single /32 entry to compress to one leaf at root, got type %d bitIndex %d", nodeType, bitIndex)
	}
	if bitIndex != 32 {
		t.Fatalf("expected leaf bitIndex 32 for a /32 entry, got %d", bitIndex)
	}
}

func TestBuildTRI1EmptyIsHarmless(t *testing.T) {
	built, err := Build(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	data := built.EncodeTRI1()
	nodeType, _, left, right, err := ReadTriNode(data, 8)
	if err != nil {
		t.Fatalf("ReadTriNode: %v", err)
	}
	if nodeType != nodeTypeBranch || left != 0 || right != 0 {
		t.Fatalf("expected empty trie to be a dead-end branch, got type=%d left=%d right=%d", nodeType, left, right)
	}
}
