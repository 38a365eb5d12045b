package netx

import (
	"net/netip"
	"testing"
)

func TestCIDRSetContains(t *testing.T) {
	set, err := ParseCIDRSet([]string{"10.0.0.0/8", "127.0.0.1", " ", "fd00::/8"})
	if err != nil {
		t.Fatal(err)
	}
	if set.Len() != 3 {
		t.Fatalf("expected 3 prefixes, got %d", set.Len())
	}

	for _, in := range []string{"10.1.2.3", "127.0.0.1", "::ffff:10.9.9.9", "fd12::1"} {
		if !set.Contains(netip.MustParseAddr(in)) {
			t.Fatalf("expected %s to be contained", in)
		}
	}
	for _, out := range []string{"192.168.1.1", "127.0.0.2", "2001:db8::1"} {
		if set.Contains(netip.MustParseAddr(out)) {
			t.Fatalf("did not expect %s to be contained", out)
		}
	}
}

func TestCIDRSetRejectsGarbage(t *testing.T) {
	if _, err := ParseCIDRSet([]string{"not-an-ip"}); err == nil {
		t.Fatal("expected error for bare garbage")
	}
	if _, err := ParseCIDRSet([]string{"10.0.0.0/33"}); err == nil {
		t.Fatal("expected error for bad prefix length")
	}
}

func TestNilSetContainsNothing(t *testing.T) {
	var set *CIDRSet
	if set.Contains(netip.MustParseAddr("10.0.0.1")) {
		t.Fatal("nil set must not match")
	}
}
