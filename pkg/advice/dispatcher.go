package advice

import (
	"github.com/chazu/weft/pkg/classfile"
)

// Dispatcher owns the resolved bindings for one advice role. It has two
// lifecycle states: inactive (no marked method; terminal) and active (exactly
// one marked method plus one offset mapping per parameter). Built once at
// composition time, immutable afterwards.
type Dispatcher struct {
	active   bool
	method   Method
	info     *classfile.MethodInfo
	params   []adviceParam
	mappings []OffsetMapping
}

// Active reports whether a marked method was found for this role.
func (d *Dispatcher) Active() bool { return d.active }

// AdviceMethod returns the resolved advice method metadata. Only meaningful
// on an active dispatcher.
func (d *Dispatcher) AdviceMethod() Method { return d.method }

// EnterType returns the advice method's return type, or Void when the
// dispatcher is inactive. For the enter role this is the type of the injected
// enter-result slot.
func (d *Dispatcher) EnterType() classfile.TypeDesc {
	if !d.active {
		return classfile.Void
	}
	return d.method.Desc.Return
}

// matches reports whether a method read from the advice class's raw form is
// the resolved advice method.
func (d *Dispatcher) matches(name, descriptor string) bool {
	return d.active && d.method.Name == name && d.method.Descriptor == descriptor
}

// resolveTargets resolves every mapping against a concrete instrumented
// method, keyed by the advice parameter's local slot. All binding errors
// surface here, before any code is emitted.
func (d *Dispatcher) resolveTargets(ctx resolveContext) (map[int]Target, error) {
	targets := make(map[int]Target, len(d.mappings))
	for i, m := range d.mappings {
		t, err := m.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		targets[d.params[i].slot] = t
	}
	return targets, nil
}

// resolveDispatcher scans the advice class for the role's marker annotation
// and builds the dispatcher. The marker is an annotation internal name;
// absence of any marked method yields an inactive dispatcher, which only the
// caller can judge (at least one of the two roles must be active).
func resolveDispatcher(cf *classfile.ClassFile, r role, marker string, opts Options) (*Dispatcher, error) {
	want := "L" + marker + ";"
	d := &Dispatcher{}
	for _, m := range cf.Methods {
		anns, err := m.Annotations(cf.Pool)
		if err != nil {
			return nil, err
		}
		marked := false
		for _, a := range anns {
			if a.Type == want {
				marked = true
				break
			}
		}
		if !marked {
			continue
		}
		if d.active {
			return nil, compositionErrf("duplicate %s advice: %s%s and %s%s",
				r, d.method.Name, d.method.Descriptor, m.Name, m.Descriptor)
		}
		if !m.IsStatic() {
			return nil, compositionErrf("%s advice %s%s is not static", r, m.Name, m.Descriptor)
		}
		if !m.HasCode() {
			return nil, compositionErrf("%s advice %s%s has no body", r, m.Name, m.Descriptor)
		}
		meta, err := methodOf(cf, m)
		if err != nil {
			return nil, compositionErrf("%s advice: %v", r, err)
		}
		d.active = true
		d.method = meta
		d.info = m
	}
	if !d.active {
		return d, nil
	}

	paramAnns, err := d.info.ParameterAnnotations(cf.Pool)
	if err != nil {
		return nil, err
	}
	for i, t := range d.method.Desc.Params {
		p := adviceParam{index: i, slot: d.method.ParamSlot(i), typ: t}
		if i < len(paramAnns) {
			p.anns = paramAnns[i]
		}
		d.params = append(d.params, p)
	}
	if d.mappings, err = resolveMappings(r, d.params, opts); err != nil {
		return nil, err
	}
	return d, nil
}
