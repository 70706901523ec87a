package instance

import (
	"errors"
	"testing"
)

func TestResolvePrefersConfiguredID(t *testing.T) {
	t.Setenv("RX_INSTANCE_ID", "pos-eu-1")
	got := resolve(func() (string, error) { return "host", nil }, func() int { return 7 })
	if got != "pos-eu-1" {
		t.Fatalf("expected configured id, got %q", got)
	}
}

func TestResolveDistinguishesProcesses(t *testing.T) {
	t.Setenv("RX_INSTANCE_ID", "")
	t.Setenv("INSTANCE_ID", "")
	host := func() (string, error) { return "app-3", nil }
	a := resolve(host, func() int { return 100 })
	b := resolve(host, func() int { return 101 })
	if a != "app-3-100" || a == b {
		t.Fatalf("expected per-process ids, got %q and %q", a, b)
	}

	noHost := resolve(func() (string, error) { return "", errors.New("no hostname") }, func() int { return 1 })
	if noHost != "pharmacyd-1" {
		t.Fatalf("unexpected fallback id %q", noHost)
	}
}
