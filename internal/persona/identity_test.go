package persona

import (
	"strings"
	"testing"
)

func TestNewIdentityCallbackShape(t *testing.T) {
	allowed := map[string]bool{"555": true, "667": true, "301": true, "443": true, "410": true}
	for i := 0; i < 50; i++ {
		id := NewIdentity("42 Oak Street")
		parts := strings.Split(id.CallbackNumber, "-")
		if len(parts) != 3 {
			t.Fatalf("callback = %q, want three dash separated groups", id.CallbackNumber)
		}
		if !allowed[parts[0]] {
			t.Fatalf("area code = %q, not in pool", parts[0])
		}
		if len(parts[1]) != 3 || parts[1][0] < '2' {
			t.Fatalf("exchange = %q, want 200-999", parts[1])
		}
		if len(parts[2]) != 4 {
			t.Fatalf("line = %q, want four digits", parts[2])
		}
	}
}

func TestEnforcerRewritesPhoneNumbers(t *testing.T) {
	id := Identity{CallbackNumber: "555-201-4321", Address: "42 Oak Street"}
	e := id.NewEnforcer()
	got := e.Apply("You can reach me at (301) 555-9876.")
	if !strings.Contains(got, "555-201-4321") || strings.Contains(got, "9876") {
		t.Fatalf("Apply() = %q, want callback number substituted", got)
	}
}

func TestEnforcerReplacesAddressOncePerResponse(t *testing.T) {
	id := Identity{CallbackNumber: "555-201-4321", Address: "42 Oak Street"}
	e := id.NewEnforcer()

	got := e.Apply("I'm at 9 Maple Avenue.")
	if !strings.Contains(got, "42 Oak Street") {
		t.Fatalf("first Apply() = %q, want consistent address", got)
	}
	got = e.Apply("Yes, 17 Birch Lane, hurry!")
	if strings.Contains(got, "42 Oak Street") {
		t.Fatalf("second Apply() = %q, address replaced twice in one response", got)
	}
}

func TestEnforcerLeavesMatchingAddressAlone(t *testing.T) {
	id := Identity{CallbackNumber: "555-201-4321", Address: "42 Oak Street"}
	e := id.NewEnforcer()
	got := e.Apply("I told you, 42 Oak Street.")
	if !strings.Contains(got, "42 Oak Street") {
		t.Fatalf("Apply() = %q, want address untouched", got)
	}
}
