// Package egress implements the IP blocklist-backed outbound connection
// filter: it memory-maps a blocklist file built by package blocklist,
// answers isBlocked/enforceUri queries, and hot-reloads the file in the
// background with fail-closed semantics on any load error.
package egress

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/kestrelfaas/kestrel/internal/blocklist"
	"github.com/kestrelfaas/kestrel/internal/domain"
	"github.com/kestrelfaas/kestrel/internal/ipaddr"
	"github.com/kestrelfaas/kestrel/internal/logging"
	"github.com/kestrelfaas/kestrel/internal/metrics"
)

// loadedState is the immutable snapshot held by Filter.ref. A nil *loadedState
// means the Missing state: no usable blocklist is currently loaded, and
// every non-loopback address is blocked.
type loadedState struct {
	format string // blocklist.MagicRNG1 or blocklist.MagicTRI1
	mtime  time.Time
	size   int64

	data    []byte // mmap'd file contents; kept mapped for both formats
	mmapped bool

	ranges []blocklist.Range // parsed once, for RNG1 binary search
}

// Filter holds the current blocklist state and answers lookup queries. The
// zero value is not usable; construct with New.
type Filter struct {
	path string

	loadMu sync.Mutex // serializes ensureLoaded
	ref    atomic.Pointer[loadedState]

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New constructs a Filter pointed at path. The state starts Missing until
// the first EnsureLoaded call succeeds.
func New(path string) *Filter {
	return &Filter{path: path, stopCh: make(chan struct{})}
}

// EnsureLoaded loads or refreshes the blocklist file if its mtime or size
// has changed since the last successful load. It is safe to call
// concurrently; calls are serialized so only one goroutine does the actual
// I/O. Any parse or format error collapses the state to Missing rather
// than returning an error to the caller, per the fail-closed policy.
func (f *Filter) EnsureLoaded() {
	f.loadMu.Lock()
	defer f.loadMu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		f.collapse("stat failed: " + err.Error())
		return
	}

	if cur := f.ref.Load(); cur != nil && cur.mtime.Equal(info.ModTime()) && cur.size == info.Size() {
		return
	}

	next, err := f.load(info)
	if err != nil {
		f.collapse(err.Error())
		return
	}
	f.ref.Store(next)
	metrics.Default().RecordBlocklistReload()
}

func (f *Filter) collapse(reason string) {
	if prev := f.ref.Swap(nil); prev != nil && prev.mmapped {
		unix.Munmap(prev.data)
	}
	logging.Op().Warn("egress blocklist collapsed to Missing state", "path", f.path, "reason", reason)
}

func (f *Filter) load(info os.FileInfo) (*loadedState, error) {
	fh, err := os.Open(f.path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()

	size := info.Size()
	if size < 8 {
		return nil, fmt.Errorf("blocklist file too small: %d bytes", size)
	}

	data, err := unix.Mmap(int(fh.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap failed: %w", err)
	}

	magic := string(data[:4])
	st := &loadedState{
		format:  magic,
		mtime:   info.ModTime(),
		size:    size,
		data:    data,
		mmapped: true,
	}

	switch magic {
	case blocklist.MagicRNG1:
		ranges, err := blocklist.DecodeRNG1(data)
		if err != nil {
			unix.Munmap(data)
			return nil, err
		}
		st.ranges = ranges
	case blocklist.MagicTRI1:
		// Traversal reads directly from the mmap'd bytes; nothing more to
		// precompute.
	default:
		unix.Munmap(data)
		return nil, fmt.Errorf("unknown blocklist magic %q", magic)
	}

	if prev := f.ref.Load(); prev != nil && prev.mmapped {
		unix.Munmap(prev.data)
	}
	return st, nil
}

// IsBlocked reports whether ip (a 32-bit IPv4 value) is blocked by the
// current state. Loopback addresses (127.0.0.0/8) are always allowed. A
// Missing state blocks everything else.
func (f *Filter) IsBlocked(ip uint32) bool {
	if ip>>24 == 127 {
		return false
	}
	st := f.ref.Load()
	if st == nil {
		return true
	}
	switch st.format {
	case blocklist.MagicRNG1:
		return rangesContain(st.ranges, ip)
	case blocklist.MagicTRI1:
		return triBlocks(st.data, ip)
	default:
		return true
	}
}

func rangesContain(ranges []blocklist.Range, ip uint32) bool {
	i := sort.Search(len(ranges), func(i int) bool { return ranges[i].Last >= ip })
	return i < len(ranges) && ranges[i].First <= ip
}

// triBlocks walks the TRI1 trie encoded in data starting at the root (offset
// 8); the stored bitIndex of each node
// is authoritative and resets the cursor rather than being incremented
// blindly from the parent, since a compressed node may jump several bits.
func triBlocks(data []byte, ip uint32) bool {
	offset := int32(8)
	for {
		nodeType, bitIndex, left, right, err := blocklist.ReadTriNode(data, offset)
		if err != nil {
			return true // unknown/corrupt node: fail closed
		}
		switch nodeType {
		case 2: // leaf
			return true
		case 1: // branch
			bitIdx := int(bitIndex)
			if bitIdx >= 32 {
				return true
			}
			bit := (ip >> uint(31-bitIdx)) & 1
			var next int32
			if bit == 0 {
				next = left
			} else {
				next = right
			}
			if next == 0 {
				return false
			}
			offset = next
		default:
			return true
		}
	}
}

// EnforceURI checks whether a request to uri would be allowed: if the URI
// has no host it is allowed outright; if the host is a literal IPv4
// address it is checked directly; otherwise the host is resolved and every
// returned IPv4 address is checked.
func (f *Filter) EnforceURI(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		metrics.Default().RecordEgressDecision(false)
		return &domain.EgressDeniedError{Reason: "invalid URL: " + err.Error()}
	}
	host := u.Hostname()
	if host == "" {
		metrics.Default().RecordEgressDecision(true)
		return nil
	}

	if ip, err := ipaddr.ParseIPv4(host); err == nil {
		if f.IsBlocked(ip) {
			metrics.Default().RecordEgressDecision(false)
			return &domain.EgressDeniedError{Reason: fmt.Sprintf("%s is blocked", host)}
		}
		metrics.Default().RecordEgressDecision(true)
		return nil
	}

	addrs, err := net.LookupIP(host)
	if err != nil {
		metrics.Default().RecordEgressDecision(false)
		return &domain.EgressDeniedError{Reason: "DNS failure: " + err.Error()}
	}
	var v4 []net.IP
	for _, a := range addrs {
		if v4addr := a.To4(); v4addr != nil {
			v4 = append(v4, v4addr)
		}
	}
	if len(v4) == 0 {
		metrics.Default().RecordEgressDecision(false)
		return &domain.EgressDeniedError{Reason: "no resolvable IPv4 address for " + host}
	}
	for _, a := range v4 {
		ip, err := ipaddr.ParseIPv4(a.String())
		if err != nil {
			continue
		}
		if f.IsBlocked(ip) {
			metrics.Default().RecordEgressDecision(false)
			return &domain.EgressDeniedError{Reason: fmt.Sprintf("%s resolved to blocked address %s", host, a.String())}
		}
	}
	metrics.Default().RecordEgressDecision(true)
	return nil
}

// StartReloader launches a background goroutine that calls EnsureLoaded on
// interval until Stop is called. Call EnsureLoaded once synchronously
// before calling StartReloader if the initial load result matters to the
// caller.
func (f *Filter) StartReloader(interval time.Duration) {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				f.EnsureLoaded()
			case <-f.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the background reloader goroutine, if running.
func (f *Filter) Stop() {
	f.stopOnce.Do(func() { close(f.stopCh) })
}
