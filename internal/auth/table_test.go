package auth

import "testing"

func TestRoleCapabilities(t *testing.T) {
	table := NewTable(map[string]Role{
		"root":  RoleAdmin,
		"bot":   RoleUpdater,
		"watch": RoleViewer,
	})

	cases := []struct {
		actor string
		cap   Capability
		want  bool
	}{
		{"root", CapPriceWrite, true},
		{"root", CapWhitelistWrite, true},
		{"root", CapStrategyWrite, true},
		{"root", CapRiskWrite, true},
		{"root", CapConfigWrite, true},
		{"bot", CapPriceWrite, true},
		{"bot", CapRiskWrite, true},
		{"bot", CapWhitelistWrite, false},
		{"bot", CapStrategyWrite, false},
		{"bot", CapConfigWrite, false},
		{"watch", CapPriceWrite, false},
		{"stranger", CapPriceWrite, false},
	}
	for _, c := range cases {
		if got := table.Allowed(c.actor, c.cap); got != c.want {
			t.Errorf("Allowed(%s, %s) = %v, want %v", c.actor, c.cap, got, c.want)
		}
	}
}

func TestOpenTable(t *testing.T) {
	table := Open()
	if !table.Allowed("anyone", CapConfigWrite) {
		t.Error("open table denied a capability")
	}
}

func TestGrantRevoke(t *testing.T) {
	table := NewTable(nil)
	if table.Allowed("alex", CapPriceWrite) {
		t.Error("ungranted actor allowed")
	}
	table.Grant("alex", RoleUpdater)
	if !table.Allowed("alex", CapPriceWrite) {
		t.Error("granted updater denied price write")
	}
	if role, ok := table.Role("alex"); !ok || role != RoleUpdater {
		t.Errorf("Role = %v/%v, want updater/true", role, ok)
	}
	table.Revoke("alex")
	if table.Allowed("alex", CapPriceWrite) {
		t.Error("revoked actor still allowed")
	}
}
