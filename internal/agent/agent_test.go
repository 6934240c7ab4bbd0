package agent

import "testing"

func TestParse(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expect    Role
		expectErr bool
	}{
		{name: "exact match", input: "researcher", expect: RoleResearcher},
		{name: "mixed case with spaces", input: "  Analyst ", expect: RoleAnalyst},
		{name: "uppercase", input: "CODER", expect: RoleCoder},
		{name: "unknown role", input: "intern", expectErr: true},
		{name: "empty string", input: "", expectErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(tc.input)
			if tc.expectErr {
				if err == nil {
					t.Fatalf("expected error for %q, got role %q", tc.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.expect {
				t.Errorf("expected %q, got %q", tc.expect, got)
			}
		})
	}
}

func TestParseOrDefault(t *testing.T) {
	if r := ParseOrDefault("writer", RoleResearcher); r != RoleWriter {
		t.Errorf("expected writer, got %q", r)
	}
	if r := ParseOrDefault("project manager", RoleResearcher); r != RoleResearcher {
		t.Errorf("expected fallback researcher, got %q", r)
	}
}

func TestNormalizeIsTotal(t *testing.T) {
	testCases := []struct {
		name  string
		input map[Role]string
	}{
		{name: "nil map", input: nil},
		{name: "partial map", input: map[Role]string{RoleWriter: "custom writer prompt"}},
		{name: "empty values backfilled", input: map[Role]string{RoleCoder: "   "}},
		{name: "unknown keys dropped", input: map[Role]string{"ghost": "boo"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.input)
			for _, r := range All() {
				if got[r] == "" {
					t.Errorf("role %q missing from normalized prompt map", r)
				}
			}
			if _, ok := got["ghost"]; ok {
				t.Error("unknown role key survived normalization")
			}
		})
	}
}

func TestNormalizeKeepsOverrides(t *testing.T) {
	in := map[Role]string{RoleWriter: "custom writer prompt"}
	got := Normalize(in)
	if got[RoleWriter] != "custom writer prompt" {
		t.Errorf("override lost: %q", got[RoleWriter])
	}
	if got[RoleEditor] != DefaultPrompts()[RoleEditor] {
		t.Error("untouched role should carry the default prompt")
	}
}
