package harness

import (
	"context"
	"path/filepath"
	"testing"

	"harness/internal/config"
	"harness/internal/gate"
)

// Group begins g for the test t and ends it when t finishes. Any failure
// stops t immediately.
//
//	func TestOrders(t *testing.T) {
//	    var it OrdersIT
//	    g := suite.Group(t, &harness.Group{Name: "OrdersIT", Methods: methods}, &it)
//	    t.Run("list", func(t *testing.T) {
//	        g.Case(t, &it)
//	        ...
//	    })
//	}
func (s *Suite) Group(t testing.TB, g *Group, static any) *GroupContext {
	t.Helper()
	gc, err := s.BeginGroup(t.Context(), g, static)
	if err != nil {
		t.Fatalf("failed to begin group %s: %v", g.Name, err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.settings.TimeoutDuration())
		defer cancel()
		if err := gc.End(ctx); err != nil {
			t.Errorf("failed to end group %s: %v", g.Name, err)
		}
	})
	return gc
}

// Case begins a case named after t and ends it when t finishes.
func (g *GroupContext) Case(t testing.TB, instance any) *CaseContext {
	t.Helper()
	c, err := g.BeginCase(t.Context(), t.Name(), instance)
	if err != nil {
		t.Fatalf("failed to begin case %s: %v", t.Name(), err)
	}
	t.Cleanup(func() {
		if err := c.End(context.Background()); err != nil {
			t.Errorf("failed to end case %s: %v", t.Name(), err)
		}
	})
	return c
}

// ModulesDir returns the module directory of the configured server
// installation.
func ModulesDir(s *config.Settings) (string, error) {
	if s.ModulePath != "" {
		return filepath.SplitList(s.ModulePath)[0], nil
	}
	home, err := s.ResolveJBossHome()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "modules"), nil
}

// RequireModule skips t unless the server module name is installed in at
// least minVersion. An empty slot means "main"; an empty minVersion accepts
// any version.
func (s *Suite) RequireModule(t testing.TB, name, slot, minVersion string) {
	t.Helper()
	dir, err := ModulesDir(s.settings)
	if err != nil {
		t.Skipf("Module %s cannot be checked: %v. Disabling test.", name, err)
	}
	if res := gate.RequireModule(dir, name, slot, minVersion); !res.Enabled {
		t.Skip(res.Reason)
	}
}
