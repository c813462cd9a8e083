package domain

import "testing"

func TestDualSessionContext(t *testing.T) {
	cases := []struct {
		name   string
		sc     DualSessionContext
		legacy bool
		hosted bool
	}{
		{"empty", DualSessionContext{}, false, false},
		{"blank legacy email", DualSessionContext{Legacy: &LegacySession{Email: "  "}}, false, false},
		{"legacy only", DualSessionContext{Legacy: &LegacySession{Email: "a@x.com"}}, true, false},
		{"hosted without id", DualSessionContext{Hosted: &HostedSession{}}, false, false},
		{"both", DualSessionContext{Legacy: &LegacySession{Email: "a@x.com"}, Hosted: &HostedSession{UserID: "user_1"}}, true, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.sc.HasLegacy() != tc.legacy || tc.sc.HasHosted() != tc.hosted {
				t.Fatalf("legacy=%v hosted=%v, expected %v %v", tc.sc.HasLegacy(), tc.sc.HasHosted(), tc.legacy, tc.hosted)
			}
		})
	}
}

func TestHostedSessionAttributeKey(t *testing.T) {
	if got := (HostedSession{UserID: "user_1", ExternalID: "42"}).AttributeKey(); got != "42" {
		t.Fatalf("expected legacy id for migrated user, got %q", got)
	}
	if got := (HostedSession{UserID: "user_1"}).AttributeKey(); got != "user_1" {
		t.Fatalf("expected hosted id for native user, got %q", got)
	}
}

func TestUserHelpers(t *testing.T) {
	if got := (LegacyUser{ID: 1234}).ExternalID(); got != "1234" {
		t.Fatalf("unexpected external id %q", got)
	}
	u := HostedUser{EmailAddresses: []string{"A@X.com"}}
	if !u.HasEmail(" a@x.COM ") || u.HasEmail("b@x.com") {
		t.Fatalf("unexpected HasEmail result")
	}
}
