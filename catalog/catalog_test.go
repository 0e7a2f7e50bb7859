package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

const fixtureYAML = `
version: "2026.03.01"
entries:
  - address: "0xAbC0000000000000000000000000000000dEaD"
    chain: "evm"
    kind: "exchange_deposit"
    label: "Binance Hot Wallet"
  - address: "bc1qxyz"
    chain: "utxo"
    kind: "bridge"
    label: "Wrapped BTC Bridge"
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "addresses.yaml")
	if err := os.WriteFile(path, []byte(fixtureYAML), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return path
}

func TestLoadAndLookup(t *testing.T) {
	path := writeFixture(t)
	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cat.Version() != "2026.03.01" {
		t.Errorf("Version() = %q", cat.Version())
	}

	entry, ok := cat.Lookup("0xabc0000000000000000000000000000000dead")
	if !ok {
		t.Fatal("expected lookup to match case-insensitively")
	}
	if entry.Kind != KindExchangeDeposit {
		t.Errorf("Kind = %v, want %v", entry.Kind, KindExchangeDeposit)
	}
}

func TestLookupMiss(t *testing.T) {
	cat, err := Load(writeFixture(t))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := cat.Lookup("0xnotintheset"); ok {
		t.Error("expected lookup miss for unlisted address")
	}
}

func TestReloadSwapsContent(t *testing.T) {
	path := writeFixture(t)
	cat, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	updated := `
version: "2026.04.01"
entries:
  - address: "0xnew"
    chain: "evm"
    kind: "router"
    label: "New Router"
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("write updated fixture: %v", err)
	}
	if err := cat.Reload(path); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	if cat.Version() != "2026.04.01" {
		t.Errorf("Version() after reload = %q", cat.Version())
	}
	if _, ok := cat.Lookup("0xabc0000000000000000000000000000000dead"); ok {
		t.Error("expected old entry to be gone after reload")
	}
	if _, ok := cat.Lookup("0xnew"); !ok {
		t.Error("expected new entry to be present after reload")
	}
}
