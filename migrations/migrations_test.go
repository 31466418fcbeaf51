package migrations

import (
	"strings"
	"testing"
)

func TestVersionFromFile(t *testing.T) {
	cases := map[string]int64{
		"001_ledger_accounts.up.sql": 1,
		"012_extra.down.sql":         12,
	}
	for name, want := range cases {
		got, err := VersionFromFile(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != want {
			t.Errorf("%s: got %d, want %d", name, got, want)
		}
	}
	for _, bad := range []string{"init.sql", "abc_init.up.sql"} {
		if _, err := VersionFromFile(bad); err == nil {
			t.Errorf("%s: expected error", bad)
		}
	}
}

func TestAll(t *testing.T) {
	all, err := All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) == 0 {
		t.Fatal("no migrations embedded")
	}
	first := all[0]
	if first.Version != 1 || first.Name != "001_ledger_accounts" {
		t.Errorf("unexpected first migration: %d %s", first.Version, first.Name)
	}
	if !strings.Contains(first.Up, "ledger_accounts_id_key") {
		t.Error("up script must name the id uniqueness constraint")
	}
	if first.Down == "" {
		t.Error("expected a down script")
	}
	for i := 1; i < len(all); i++ {
		if all[i].Version <= all[i-1].Version {
			t.Errorf("migrations out of order at %d", i)
		}
	}
}
