package blocklist

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/kestrelfaas/kestrel/internal/atomicfile"
	"github.com/kestrelfaas/kestrel/internal/ipaddr"
)

// Range is a closed, inclusive IPv4 range, as produced by the IP utilities.
type Range = ipaddr.Range

var (
	ipv4Pattern  = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})$`)
	cidrPattern  = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})/(\d{1,2})$`)
	tokenSplitRe = regexp.MustCompile(`[\s,;]+`)
)

// entry is one recognized IP or CIDR token, carrying both its full inclusive
// range (for RNG1) and its network/prefix-length form (for TRI1 insertion).
type entry struct {
	rng        Range
	network    uint32
	prefixLen  int
}

// ParseLines reads newline-delimited text from r, strips `#`-comments,
// extracts the first whitespace/comma/semicolon-separated token on each
// line, and keeps tokens that parse as an IPv4 address or CIDR. Anything
// else is silently ignored, matching the builder's tolerant line format.
func ParseLines(r io.Reader) ([]entry, error) {
	var entries []entry
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := tokenSplitRe.Split(line, 2)
		token := strings.TrimSpace(fields[0])
		if token == "" {
			continue
		}

		if cidrPattern.MatchString(token) {
			rng, err := ipaddr.ParseCIDR(token)
			if err != nil {
				continue
			}
			prefixLen := mustPrefixLen(token)
			entries = append(entries, entry{rng: rng, network: rng.First, prefixLen: prefixLen})
			continue
		}
		if ipv4Pattern.MatchString(token) {
			ip, err := ipaddr.ParseIPv4(token)
			if err != nil {
				continue
			}
			entries = append(entries, entry{rng: Range{First: ip, Last: ip}, network: ip, prefixLen: 32})
			continue
		}
		// Unrecognized token: ignored.
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func mustPrefixLen(cidr string) int {
	idx := strings.IndexByte(cidr, '/')
	n := 0
	for _, c := range cidr[idx+1:] {
		n = n*10 + int(c-'0')
	}
	return n
}

// Coalesce sorts ranges by First and merges adjacent/overlapping ones: a
// range r is folded into the running range cur whenever r.First <= cur.Last
// + 1. Coalescing is idempotent: re-coalescing an already-coalesced list
// returns it unchanged.
func Coalesce(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].First < sorted[j].First })

	out := make([]Range, 0, len(sorted))
	cur := sorted[0]
	for _, r := range sorted[1:] {
		if r.First <= cur.Last+1 {
			if r.Last > cur.Last {
				cur.Last = r.Last
			}
			continue
		}
		out = append(out, cur)
		cur = r
	}
	out = append(out, cur)
	return out
}

// Built holds both parallel structures the blocklist builder produces from
// one set of entries: the coalesced range list for RNG1 and the compressed
// prefix trie for TRI1.
type Built struct {
	Ranges []Range
	trie   *compressedNode
}

// Build parses entries from r and constructs both output structures.
func Build(r io.Reader) (*Built, error) {
	entries, err := ParseLines(r)
	if err != nil {
		return nil, err
	}

	ranges := make([]Range, len(entries))
	var root *trieNode
	for i, e := range entries {
		ranges[i] = e.rng
		root = root.insert(e.network, e.prefixLen)
	}

	return &Built{
		Ranges: Coalesce(ranges),
		trie:   compress(root, 0),
	}, nil
}

// EncodeRNG1 serializes b's coalesced ranges.
func (b *Built) EncodeRNG1() []byte {
	return EncodeRNG1(b.Ranges)
}

// EncodeTRI1 serializes b's compressed trie.
func (b *Built) EncodeTRI1() []byte {
	return EncodeTRI1(b.trie)
}

// WriteRNG1File builds the RNG1 encoding of entries read from r and
// atomically writes it to path.
func WriteRNG1File(path string, r io.Reader) error {
	built, err := Build(r)
	if err != nil {
		return err
	}
	return atomicfile.Write(path, built.EncodeRNG1(), 0o644)
}

// WriteTRI1File builds the TRI1 encoding of entries read from r and
// atomically writes it to path.
func WriteTRI1File(path string, r io.Reader) error {
	built, err := Build(r)
	if err != nil {
		return err
	}
	return atomicfile.Write(path, built.EncodeTRI1(), 0o644)
}

// WriteFromFile is a convenience wrapper reading entries from a source file
// on disk (e.g. a fetched blocklist feed) rather than an arbitrary reader.
func WriteFromFile(format, srcPath, destPath string) error {
	f, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer f.Close()

	switch format {
	case MagicRNG1:
		return WriteRNG1File(destPath, f)
	case MagicTRI1:
		return WriteTRI1File(destPath, f)
	default:
		return WriteTRI1File(destPath, f)
	}
}
