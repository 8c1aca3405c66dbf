package advice

import (
	"github.com/chazu/weft/pkg/classfile"
)

// Default method marker annotation internal names.
const (
	DefaultEnterMarker = "weft/OnMethodEnter"
	DefaultExitMarker  = "weft/OnMethodExit"
)

// MarkerSet names the annotations that mark enter and exit advice methods,
// by internal name.
type MarkerSet struct {
	Enter string
	Exit  string
}

// Options configures composition.
type Options struct {
	// ExceptionalInvocation routes exceptions thrown by the instrumented
	// method through the exit advice before rethrowing.
	ExceptionalInvocation bool

	// SuppressedThrowable, when set to an internal class name, wraps every
	// inlined advice body in a handler that swallows throwables of that type
	// and substitutes the role's default value.
	SuppressedThrowable string

	// Markers overrides the marker annotation names. Zero fields fall back
	// to the defaults.
	Markers MarkerSet
}

// DefaultOptions returns the default configuration: exceptional invocation
// on, no suppression, default markers.
func DefaultOptions() Options {
	return Options{ExceptionalInvocation: true}
}

func (o Options) markers() MarkerSet {
	m := o.Markers
	if m.Enter == "" {
		m.Enter = DefaultEnterMarker
	}
	if m.Exit == "" {
		m.Exit = DefaultExitMarker
	}
	return m
}

// Advice is a composed advice class: the resolved enter and exit dispatchers
// plus the parsed compiled form their bodies are read from. Immutable once
// built and safe for concurrent use; all mutable translation state lives in
// per-method weave sessions.
type Advice struct {
	enter *Dispatcher
	exit  *Dispatcher
	cf    *classfile.ClassFile
	opts  Options
}

// Compose builds an Advice from the compiled form of an advice class.
func Compose(classBytes []byte, opts Options) (*Advice, error) {
	cf, err := classfile.Parse(classBytes)
	if err != nil {
		return nil, compositionErrf("%v", err)
	}
	markers := opts.markers()
	enter, err := resolveDispatcher(cf, roleEnter, markers.Enter, opts)
	if err != nil {
		return nil, err
	}
	exit, err := resolveDispatcher(cf, roleExit, markers.Exit, opts)
	if err != nil {
		return nil, err
	}
	if !enter.Active() && !exit.Active() {
		return nil, compositionErrf("class %s marks no advice method", cf.ThisClass)
	}
	return &Advice{enter: enter, exit: exit, cf: cf, opts: opts}, nil
}

// Enter returns the enter dispatcher.
func (a *Advice) Enter() *Dispatcher { return a.enter }

// Exit returns the exit dispatcher.
func (a *Advice) Exit() *Dispatcher { return a.exit }

// EnterType returns the type of the injected enter-result slot, Void when
// the enter advice is absent or returns nothing.
func (a *Advice) EnterType() classfile.TypeDesc { return a.enter.EnterType() }

// exceptional reports whether the exceptional path is woven: it needs both
// the configuration flag and an active exit advice to observe it.
func (a *Advice) exceptional() bool {
	return a.opts.ExceptionalInvocation && a.exit.Active()
}

// classFields resolves field bindings against the class being woven. Only
// fields the class itself declares (or an explicitly named declaring type
// matching it) are visible; the engine does not load a class path to walk
// the hierarchy.
type classFields struct {
	cf *classfile.ClassFile
}

func (r classFields) ResolveField(declaring, name string) (FieldRef, error) {
	if declaring != "" && declaring != r.cf.ThisClass {
		return FieldRef{}, bindingErrf("field %s.%s: declaring type is not the woven class %s",
			declaring, name, r.cf.ThisClass)
	}
	f := r.cf.Field(name)
	if f == nil {
		return FieldRef{}, bindingErrf("field %s not found in %s", name, r.cf.ThisClass)
	}
	return FieldRef{
		Owner:      r.cf.ThisClass,
		Name:       f.Name,
		Descriptor: f.Descriptor,
		Static:     f.AccessFlags&classfile.AccStatic != 0,
	}, nil
}

// ApplyTo weaves the advice into one method of a parsed class, emitting the
// rewritten stream into out. The method's own stream drives the pass; out is
// typically a CodeWriter interning into cf's pool.
func (a *Advice) ApplyTo(cf *classfile.ClassFile, m *classfile.MethodInfo, out classfile.MethodVisitor) error {
	if !m.HasCode() {
		return structuralErrf("cannot weave abstract or native method %s.%s%s", cf.ThisClass, m.Name, m.Descriptor)
	}
	if m.Name == "<init>" {
		return structuralErrf("cannot weave constructor %s.%s%s", cf.ThisClass, m.Name, m.Descriptor)
	}
	inst, err := methodOf(cf, m)
	if err != nil {
		return structuralErrf("%v", err)
	}
	lay := newLayout(inst, a.EnterType(), a.exceptional())
	ctx := resolveContext{lay: lay, fields: classFields{cf: cf}}

	// All binding errors surface here, before a byte reaches the writer.
	var enterTargets, exitTargets map[int]Target
	if a.enter.Active() {
		if enterTargets, err = a.enter.resolveTargets(ctx); err != nil {
			return err
		}
	}
	if a.exit.Active() {
		if exitTargets, err = a.exit.resolveTargets(ctx); err != nil {
			return err
		}
	}

	in := &injector{
		out:          out,
		adviceCF:     a.cf,
		enter:        a.enter,
		exit:         a.exit,
		enterTargets: enterTargets,
		exitTargets:  exitTargets,
		lay:          lay,
		suppress:     a.opts.SuppressedThrowable,
		exceptional:  a.exceptional(),
	}
	return classfile.AcceptCode(cf, m, in)
}

// Woven describes one successfully woven method.
type Woven struct {
	Name       string
	Descriptor string
	SlotShift  int
	SizeBefore int
	SizeAfter  int
}

// WeaveClass parses a class, weaves every concrete method the matcher
// accepts, and re-emits the class. Constructors and methods without code are
// skipped regardless of the matcher. The returned Woven list records what
// changed; a class where nothing matched round-trips with an empty list.
func (a *Advice) WeaveClass(classBytes []byte, match func(name, descriptor string) bool) ([]byte, []Woven, error) {
	cf, err := classfile.Parse(classBytes)
	if err != nil {
		return nil, nil, err
	}
	var woven []Woven
	for _, m := range cf.Methods {
		if !m.HasCode() || m.Name == "<init>" {
			continue
		}
		if match != nil && !match(m.Name, m.Descriptor) {
			continue
		}
		before := len(m.CodeAttribute())
		w := classfile.NewCodeWriter(cf.Pool)
		if err := a.ApplyTo(cf, m, w); err != nil {
			return nil, nil, err
		}
		data, err := w.Finish()
		if err != nil {
			return nil, nil, err
		}
		if err := m.SetCode(data); err != nil {
			return nil, nil, err
		}
		woven = append(woven, Woven{
			Name:       m.Name,
			Descriptor: m.Descriptor,
			SlotShift:  a.EnterType().SlotWidth(),
			SizeBefore: before,
			SizeAfter:  len(data),
		})
	}
	out, err := cf.Bytes()
	if err != nil {
		return nil, nil, err
	}
	return out, woven, nil
}
