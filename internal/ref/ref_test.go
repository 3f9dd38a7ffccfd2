package ref

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  EntityRef
	}{
		{"bare name", "Alice", EntityRef{"wiki1", "XWiki", "Alice"}},
		{"space and name", "Main.Alice", EntityRef{"wiki1", "Main", "Alice"}},
		{"fully qualified", "wiki2:XWiki.Alice", EntityRef{"wiki2", "XWiki", "Alice"}},
		{"wiki and bare name", "wiki2:Alice", EntityRef{"wiki2", "XWiki", "Alice"}},
		{"nested space keeps last dot as name separator", "A.B.C", EntityRef{"wiki1", "A.B", "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.in, "wiki1")
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestSerializedForms(t *testing.T) {
	r := Parse("wiki2:Main.Alice", "wiki1")

	if got := r.Full(); got != "wiki2:Main.Alice" {
		t.Errorf("Full() = %q", got)
	}
	if got := r.Local(); got != "Main.Alice" {
		t.Errorf("Local() = %q", got)
	}
	if got := r.Compact("wiki2"); got != "Main.Alice" {
		t.Errorf("Compact(same wiki) = %q", got)
	}
	if got := r.Compact("wiki1"); got != "wiki2:Main.Alice" {
		t.Errorf("Compact(other wiki) = %q", got)
	}
}

func TestReservedIdentities(t *testing.T) {
	for _, name := range []string{"superadmin", "SuperAdmin", "SUPERADMIN"} {
		if !Parse("xwiki:XWiki."+name, "xwiki").IsSuperAdmin() {
			t.Errorf("IsSuperAdmin(%q) = false, want true", name)
		}
	}
	if Parse("XWiki.Admin", "xwiki").IsSuperAdmin() {
		t.Error("IsSuperAdmin(Admin) = true, want false")
	}

	if !Parse(Guest, "xwiki").IsGuest() {
		t.Error("IsGuest(XWikiGuest) = false, want true")
	}
	if Parse("XWiki.Alice", "xwiki").IsGuest() {
		t.Error("IsGuest(Alice) = true, want false")
	}
}
