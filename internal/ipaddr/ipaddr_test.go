package ipaddr

import "testing"

func TestParseIPv4RoundTrip(t *testing.T) {
	cases := []string{"0.0.0.0", "255.255.255.255", "192.168.1.1", "10.0.0.1"}
	for _, s := range cases {
		v, err := ParseIPv4(s)
		if err != nil {
			t.Fatalf("ParseIPv4(%q): %v", s, err)
		}
		if got := FormatIPv4(v); got != s {
			t.Fatalf("FormatIPv4(ParseIPv4(%q)) = %q, want %q", s, got, s)
		}
	}
}

func TestParseIPv4Invalid(t *testing.T) {
	cases := []string{"256.0.0.1", "1.2.3", "1.2.3.4.5", "a.b.c.d", "", "1.2.3.-1"}
	for _, s := range cases {
		if _, err := ParseIPv4(s); err == nil {
			t.Fatalf("ParseIPv4(%q) expected error", s)
		}
	}
}

func TestParseCIDR(t *testing.T) {
	r, err := ParseCIDR("192.168.1.0/24")
	if err != nil {
		t.Fatalf("ParseCIDR: %v", err)
	}
	want, _ := ParseIPv4("192.168.1.0")
	if r.First != want {
		t.Fatalf("network = %s, want 192.168.1.0", FormatIPv4(r.First))
	}
	wantLast, _ := ParseIPv4("192.168.1.255")
	if r.Last != wantLast {
		t.Fatalf("broadcast = %s, want 192.168.1.255", FormatIPv4(r.Last))
	}
}

func TestParseCIDRSlash0(t *testing.T) {
	r, err := ParseCIDR("0.0.0.0/0")
	if err != nil {
		t.Fatalf("ParseCIDR: %v", err)
	}
	if r.First != 0 || r.Last != 0xffffffff {
		t.Fatalf("slash-0 range = [%d,%d], want full space", r.First, r.Last)
	}
}

func TestParseCIDRSlash32(t *testing.T) {
	r, err := ParseCIDR("203.0.113.7/32")
	if err != nil {
		t.Fatalf("ParseCIDR: %v", err)
	}
	if r.First != r.Last {
		t.Fatalf("slash-32 range should be a single address, got [%d,%d]", r.First, r.Last)
	}
}

func TestParseCIDRInvalid(t *testing.T) {
	cases := []string{"1.2.3.4/33", "1.2.3.4/-1", "1.2.3.4", "1.2.3.4/abc"}
	for _, s := range cases {
		if _, err := ParseCIDR(s); err == nil {
			t.Fatalf("ParseCIDR(%q) expected error", s)
		}
	}
}
