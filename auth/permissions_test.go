package auth

import (
	"errors"
	"testing"

	"scspa/internal/idptest"
)

func TestRequirementSatisfiedBy(t *testing.T) {
	tests := []struct {
		name string
		req  Requirement
		held []string
		want bool
	}{
		{"single held", Permission("read"), []string{"read"}, true},
		{"single missing", Permission("read"), []string{"write"}, false},
		{"all of held", AllOf("a", "b"), []string{"b", "a", "c"}, true},
		{"all of partial", AllOf("a", "b"), []string{"a"}, false},
		{"any of second group", AnyOf([]string{"a", "b"}, []string{"c"}), []string{"c"}, true},
		{"any of partial first group", AnyOf([]string{"a", "b"}, []string{"c"}), []string{"a"}, false},
		{"nothing held", Permission("read"), nil, false},
		{"empty requirement", Requirement{}, []string{"read"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.req.SatisfiedBy(tt.held); got != tt.want {
				t.Fatalf("SatisfiedBy(%v) = %v, want %v", tt.held, got, tt.want)
			}
		})
	}
}

func TestParseRequirement(t *testing.T) {
	tests := []struct {
		raw  string
		held []string
		want bool
	}{
		{`"read"`, []string{"read"}, true},
		{`["read","write"]`, []string{"read"}, false},
		{`["read","write"]`, []string{"write", "read"}, true},
		{`[["a","b"],["c"]]`, []string{"c"}, true},
		{`[["a","b"],["c"]]`, []string{"a"}, false},
	}
	for _, tt := range tests {
		req, err := ParseRequirement([]byte(tt.raw))
		if err != nil {
			t.Fatalf("ParseRequirement(%s): %v", tt.raw, err)
		}
		if got := req.SatisfiedBy(tt.held); got != tt.want {
			t.Fatalf("%s with %v = %v, want %v", tt.raw, tt.held, got, tt.want)
		}
	}

	single, _ := ParseRequirement([]byte(`"x"`))
	nested, _ := ParseRequirement([]byte(`[["x"]]`))
	for _, held := range [][]string{{"x"}, {"y"}, nil} {
		if single.SatisfiedBy(held) != nested.SatisfiedBy(held) {
			t.Fatalf("\"x\" and [[\"x\"]] disagree for %v", held)
		}
	}

	if _, err := ParseRequirement([]byte(`{"a":1}`)); err == nil {
		t.Fatalf("expected error for object requirement")
	}
}

func TestTokenPermissions(t *testing.T) {
	idp := idptest.New(t, "spa-client")

	got, err := tokenPermissions(idp.AccessToken("read", "write"))
	if err != nil {
		t.Fatalf("tokenPermissions: %v", err)
	}
	if len(got) != 2 || got[0] != "read" || got[1] != "write" {
		t.Fatalf("unexpected permissions %v", got)
	}

	none, err := tokenPermissions(idp.AccessToken())
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no permissions, got %v %v", none, err)
	}

	if _, err := tokenPermissions("not-a-jwt"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestHasPermissions(t *testing.T) {
	env := newTestEnv(t, nil)
	if _, err := env.client.HasPermissions(Permission("read")); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected ErrNotLoggedIn, got %v", err)
	}

	env.idp.Update(func(p *idptest.Provider) { p.Identity.Permissions = []string{"read", "billing"} })
	env.login(t)

	ok, err := env.client.HasPermissions(AnyOf([]string{"admin"}, []string{"read", "billing"}))
	if err != nil || !ok {
		t.Fatalf("HasPermissions = %v, %v", ok, err)
	}
	ok, _ = env.client.HasPermissions(Permission("admin"))
	if ok {
		t.Fatalf("expected admin to be missing")
	}
}
