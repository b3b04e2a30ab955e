package identity

import (
	"context"
	"errors"
	"testing"

	"civicpulse-be/apperr"
)

func TestRequire(t *testing.T) {
	if _, err := Require(context.Background()); !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("Require() error = %v, want Unauthorized", err)
	}

	ctx := WithActor(context.Background(), Actor{ID: "u1", Role: RoleCitizen})
	actor, err := Require(ctx)
	if err != nil {
		t.Fatalf("Require() error = %v", err)
	}
	if actor.ID != "u1" {
		t.Fatalf("actor.ID = %q, want u1", actor.ID)
	}
}

func TestRequireAdmin(t *testing.T) {
	cases := []struct {
		name string
		ctx  context.Context
		want error
	}{
		{name: "anonymous", ctx: context.Background(), want: apperr.ErrUnauthorized},
		{name: "citizen", ctx: WithActor(context.Background(), Actor{ID: "c", Role: RoleCitizen}), want: apperr.ErrForbidden},
		{name: "admin", ctx: WithActor(context.Background(), Actor{ID: "a", Role: RoleAdmin}), want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := RequireAdmin(tc.ctx)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("RequireAdmin() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("RequireAdmin() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestNormalizeRole(t *testing.T) {
	if NormalizeRole("admin") != RoleAdmin {
		t.Fatal("admin should stay admin")
	}
	for _, r := range []string{"", "citizen", "superuser"} {
		if NormalizeRole(r) != RoleCitizen {
			t.Fatalf("NormalizeRole(%q) should be citizen", r)
		}
	}
}
