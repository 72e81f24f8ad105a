package registry

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"winsentry/pkg/plugin"
)

// fakeModule is a scriptable plugin for registry tests.
type fakeModule struct {
	info    plugin.PluginInfo
	initErr error
	cfgErr  error

	initialized bool
	started     bool
	stopped     bool
}

func (f *fakeModule) Info() plugin.PluginInfo { return f.info }

func (f *fakeModule) Init(context.Context, plugin.Dependencies) error {
	f.initialized = true
	return f.initErr
}

func (f *fakeModule) Start(context.Context) error {
	f.started = true
	return nil
}

func (f *fakeModule) Stop(context.Context) error {
	f.stopped = true
	return nil
}

func (f *fakeModule) ValidateConfig() error { return f.cfgErr }

func noDeps(string) plugin.Dependencies { return plugin.Dependencies{} }

func TestRegistry_RegisterDuplicate(t *testing.T) {
	r := New(zap.NewNop())
	m := &fakeModule{info: plugin.PluginInfo{Name: "monitor"}}

	if err := r.Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(m); err == nil {
		t.Error("duplicate Register succeeded")
	}
}

func TestRegistry_RegisterEmptyName(t *testing.T) {
	r := New(zap.NewNop())
	if err := r.Register(&fakeModule{}); err == nil {
		t.Error("Register accepted empty module name")
	}
}

func TestRegistry_DependencyOrder(t *testing.T) {
	r := New(zap.NewNop())

	alertMod := &fakeModule{info: plugin.PluginInfo{Name: "alert", Dependencies: []string{"monitor"}}}
	monitorMod := &fakeModule{info: plugin.PluginInfo{Name: "monitor", Dependencies: []string{"script"}}}
	scriptMod := &fakeModule{info: plugin.PluginInfo{Name: "script"}}

	// Register out of order on purpose.
	for _, m := range []*fakeModule{alertMod, monitorMod, scriptMod} {
		if err := r.Register(m); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	pos := map[string]int{}
	for i, name := range r.order {
		pos[name] = i
	}
	if pos["script"] > pos["monitor"] || pos["monitor"] > pos["alert"] {
		t.Errorf("start order = %v, want script before monitor before alert", r.order)
	}
}

func TestRegistry_MissingDependency(t *testing.T) {
	r := New(zap.NewNop())

	optional := &fakeModule{info: plugin.PluginInfo{Name: "alert", Dependencies: []string{"ghost"}}}
	if err := r.Register(optional); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !r.IsDisabled("alert") {
		t.Error("optional module with missing dependency was not disabled")
	}

	r2 := New(zap.NewNop())
	required := &fakeModule{info: plugin.PluginInfo{Name: "monitor", Dependencies: []string{"ghost"}, Required: true}}
	if err := r2.Register(required); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r2.Validate(); err == nil {
		t.Error("Validate passed with a required module missing its dependency")
	}
}

func TestRegistry_CascadeDisable(t *testing.T) {
	r := New(zap.NewNop())

	broken := &fakeModule{info: plugin.PluginInfo{Name: "script", Dependencies: []string{"ghost"}}}
	dependent := &fakeModule{info: plugin.PluginInfo{Name: "alert", Dependencies: []string{"script"}}}
	for _, m := range []*fakeModule{broken, dependent} {
		if err := r.Register(m); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !r.IsDisabled("alert") {
		t.Error("dependent of a disabled module was not cascade disabled")
	}
}

func TestRegistry_CycleDetection(t *testing.T) {
	r := New(zap.NewNop())

	a := &fakeModule{info: plugin.PluginInfo{Name: "a", Dependencies: []string{"b"}}}
	b := &fakeModule{info: plugin.PluginInfo{Name: "b", Dependencies: []string{"a"}}}
	for _, m := range []*fakeModule{a, b} {
		if err := r.Register(m); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	if err := r.Validate(); err == nil {
		t.Error("Validate passed with a dependency cycle")
	}
}

func TestRegistry_InitFailureDisablesOptional(t *testing.T) {
	r := New(zap.NewNop())

	failing := &fakeModule{
		info:    plugin.PluginInfo{Name: "alert"},
		initErr: errors.New("boom"),
	}
	if err := r.Register(failing); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if err := r.InitAll(context.Background(), noDeps); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if !r.IsDisabled("alert") {
		t.Error("optional module surviving failed Init")
	}
}

func TestRegistry_InitFailureRequiredAborts(t *testing.T) {
	r := New(zap.NewNop())

	failing := &fakeModule{
		info:    plugin.PluginInfo{Name: "monitor", Required: true},
		initErr: errors.New("boom"),
	}
	if err := r.Register(failing); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if err := r.InitAll(context.Background(), noDeps); err == nil {
		t.Error("InitAll passed with a failing required module")
	}
}

func TestRegistry_ConfigValidationDisablesOptional(t *testing.T) {
	r := New(zap.NewNop())

	badCfg := &fakeModule{
		info:   plugin.PluginInfo{Name: "alert"},
		cfgErr: errors.New("recurring_tick must be positive"),
	}
	if err := r.Register(badCfg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := r.InitAll(context.Background(), noDeps); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if !r.IsDisabled("alert") {
		t.Error("optional module surviving failed config validation")
	}
}

func TestRegistry_StartStopLifecycle(t *testing.T) {
	r := New(zap.NewNop())

	m := &fakeModule{info: plugin.PluginInfo{Name: "script"}}
	if err := r.Register(m); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	ctx := context.Background()
	if err := r.InitAll(ctx, noDeps); err != nil {
		t.Fatalf("InitAll: %v", err)
	}
	if err := r.StartAll(ctx); err != nil {
		t.Fatalf("StartAll: %v", err)
	}
	r.StopAll(ctx)

	if !m.initialized || !m.started || !m.stopped {
		t.Errorf("lifecycle = init:%v start:%v stop:%v, want all true",
			m.initialized, m.started, m.stopped)
	}

	if _, ok := r.Get("script"); !ok {
		t.Error("Get failed for registered module")
	}
	if _, ok := r.Get("ghost"); ok {
		t.Error("Get succeeded for unknown module")
	}
}
