package llm

import (
	"context"
	"encoding/json"
	"testing"
)

type staticTool struct {
	name string
}

func (s staticTool) Spec() ToolSpec {
	return ToolSpec{Name: s.name, Description: s.name, Schema: map[string]interface{}{"type": "object"}}
}

func (s staticTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	return s.name, nil
}

func TestRegistryInternalReplaces(t *testing.T) {
	r := NewToolRegistry()
	r.Register(staticTool{name: "read_file"})
	r.Register(staticTool{name: "read_file"})

	if r.Len() != 1 {
		t.Errorf("Len = %d", r.Len())
	}
	if !r.IsInternal("read_file") {
		t.Error("read_file should be internal")
	}
}

func TestRegistryExternalConflict(t *testing.T) {
	r := NewToolRegistry()
	r.Register(staticTool{name: "write_file"})

	if r.RegisterExternal(staticTool{name: "write_file"}) {
		t.Error("external registration over an internal name should fail")
	}
	if !r.RegisterExternal(staticTool{name: "notes__search"}) {
		t.Error("fresh external registration should succeed")
	}
	if !r.RegisterExternal(staticTool{name: "other__search"}) {
		t.Error("distinct external name should succeed")
	}
	if r.RegisterExternal(staticTool{name: "notes__search"}) {
		t.Error("duplicate external name should fail")
	}
	if r.IsInternal("notes__search") {
		t.Error("external tool reported as internal")
	}
}

func TestRegistrySpecsKeepRegistrationOrder(t *testing.T) {
	r := NewToolRegistry()
	r.Register(staticTool{name: "charlie"})
	r.Register(staticTool{name: "alpha"})
	r.RegisterExternal(staticTool{name: "bravo"})

	specs := r.Specs()
	want := []string{"charlie", "alpha", "bravo"}
	if len(specs) != len(want) {
		t.Fatalf("got %d specs", len(specs))
	}
	for i, spec := range specs {
		if spec.Name != want[i] {
			t.Errorf("specs[%d] = %q, want %q", i, spec.Name, want[i])
		}
	}
}

func TestRegistryGet(t *testing.T) {
	r := NewToolRegistry()
	r.Register(staticTool{name: "read_file"})

	if _, ok := r.Get("read_file"); !ok {
		t.Error("Get failed for registered tool")
	}
	if _, ok := r.Get("missing"); ok {
		t.Error("Get succeeded for unknown tool")
	}
}
