package normalize

import (
	"testing"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "staff@acme.org", want: "staff@acme.org"},
		{input: "STAFF@ACME.ORG", want: "staff@acme.org"},
		{input: "  staff@acme.org  ", want: "staff@acme.org"},
		{input: "staff@acme.org.", want: "staff@acme.org"},
		{input: "first.last+tag@sub.acme.org", want: "first.last+tag@sub.acme.org"},

		// Invalid cases
		{input: "", wantErr: true},
		{input: "   ", wantErr: true},
		{input: "staff", wantErr: true},
		{input: "staff@", wantErr: true},
		{input: "@acme.org", wantErr: true},
		{input: "staff@acme@org", wantErr: true},
		{input: "sta ff@acme.org", wantErr: true},
		{input: ".staff@acme.org", wantErr: true},
		{input: "staff@localhost", wantErr: true},
		{input: "staff@-acme.org", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := Email(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("Email(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestOrgSlug(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{input: "acme", want: "acme"},
		{input: "ACME", want: "acme"},
		{input: " st-marys ", want: "st-marys"},
		{input: "parish2", want: "parish2"},

		// Invalid cases
		{input: "", wantErr: true},
		{input: "-acme", wantErr: true},
		{input: "acme-", wantErr: true},
		{input: "st marys", wantErr: true},
		{input: "acme/settings", wantErr: true},
		{input: "ac_me", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := OrgSlug(tc.input)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %q", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error for %q: %v", tc.input, err)
			}
			if got != tc.want {
				t.Fatalf("OrgSlug(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
