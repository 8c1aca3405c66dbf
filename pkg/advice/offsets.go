package advice

import (
	"github.com/chazu/weft/pkg/classfile"
)

// Parameter annotation types recognized on advice method parameters. The
// method-level markers are configurable (MarkerSet); the parameter bindings
// are fixed vocabulary.
const (
	annArg    = "Lweft/Arg;"
	annThis   = "Lweft/This;"
	annField  = "Lweft/FieldValue;"
	annEnter  = "Lweft/Enter;"
	annReturn = "Lweft/Return;"
	annThrown = "Lweft/Thrown;"
)

// FieldRef locates a resolved field.
type FieldRef struct {
	Owner      string
	Name       string
	Descriptor string
	Static     bool
}

// FieldResolver resolves a field binding against the class being woven.
// declaring is the explicitly requested declaring type, or "" for the
// instrumented type itself.
type FieldResolver interface {
	ResolveField(declaring, name string) (FieldRef, error)
}

// resolveContext carries everything a mapping needs to resolve against one
// concrete instrumented method.
type resolveContext struct {
	lay    layout
	fields FieldResolver
}

// ---------------------------------------------------------------------------
// Targets
// ---------------------------------------------------------------------------

// Target is a resolved binding location. The translator hands it every
// local-variable access against the bound advice parameter slot.
type Target interface {
	// Apply emits the access. op is the base-form load or store opcode of
	// the advice parameter's category.
	Apply(w classfile.MethodVisitor, op classfile.Opcode) error

	// ApplyIinc emits an integer increment of the bound location.
	ApplyIinc(w classfile.MethodVisitor, increment int) error
}

// slotTarget is a read-write local slot binding.
type slotTarget struct {
	slot int
}

func (t slotTarget) Apply(w classfile.MethodVisitor, op classfile.Opcode) error {
	return w.VisitVarInsn(op, t.slot)
}

func (t slotTarget) ApplyIinc(w classfile.MethodVisitor, increment int) error {
	return w.VisitIincInsn(t.slot, increment)
}

// readOnlySlotTarget is a local slot binding that rejects stores.
type readOnlySlotTarget struct {
	slot int
	what string
}

func (t readOnlySlotTarget) Apply(w classfile.MethodVisitor, op classfile.Opcode) error {
	if op.IsStore() {
		return structuralErrf("store to read-only %s binding", t.what)
	}
	return w.VisitVarInsn(op, t.slot)
}

func (t readOnlySlotTarget) ApplyIinc(w classfile.MethodVisitor, increment int) error {
	return structuralErrf("increment of read-only %s binding", t.what)
}

// fieldTarget reads a field in place of the local. Instance fields push the
// receiver first; stores are always rejected.
type fieldTarget struct {
	field FieldRef
}

func (t fieldTarget) Apply(w classfile.MethodVisitor, op classfile.Opcode) error {
	if op.IsStore() {
		return structuralErrf("store to field binding %s.%s", t.field.Owner, t.field.Name)
	}
	if t.field.Static {
		return w.VisitFieldInsn(classfile.OpGetstatic, t.field.Owner, t.field.Name, t.field.Descriptor)
	}
	if err := w.VisitVarInsn(classfile.OpAload, 0); err != nil {
		return err
	}
	return w.VisitFieldInsn(classfile.OpGetfield, t.field.Owner, t.field.Name, t.field.Descriptor)
}

func (t fieldTarget) ApplyIinc(w classfile.MethodVisitor, increment int) error {
	return structuralErrf("increment of field binding %s.%s", t.field.Owner, t.field.Name)
}

// ---------------------------------------------------------------------------
// Offset mappings
// ---------------------------------------------------------------------------

// OffsetMapping is the declared intent of one advice parameter binding,
// resolved to a Target once a concrete instrumented method is known.
type OffsetMapping interface {
	Resolve(ctx resolveContext) (Target, error)
}

// checkTypes applies the binding type rule: read-write bindings need the
// exact type, read-only bindings need the bound location's type to be
// assignable to the advice parameter's type.
func checkTypes(bound, expected classfile.TypeDesc, readOnly bool, what string) error {
	if readOnly {
		if !bound.AssignableTo(expected) {
			return bindingErrf("%s: %s is not assignable to read-only parameter of type %s",
				what, bound.Descriptor, expected.Descriptor)
		}
		return nil
	}
	if bound.Descriptor != expected.Descriptor {
		return bindingErrf("%s: writable parameter of type %s requires exactly %s",
			what, expected.Descriptor, bound.Descriptor)
	}
	return nil
}

func slotOrReadOnly(slot int, readOnly bool, what string) Target {
	if readOnly {
		return readOnlySlotTarget{slot: slot, what: what}
	}
	return slotTarget{slot: slot}
}

// parameterMapping binds to instrumented-method parameter index.
type parameterMapping struct {
	index    int
	readOnly bool
	typ      classfile.TypeDesc
}

func (m parameterMapping) Resolve(ctx resolveContext) (Target, error) {
	inst := ctx.lay.instrumented
	if m.index < 0 || m.index >= len(inst.Desc.Params) {
		return nil, bindingErrf("parameter index %d out of range for %s", m.index, inst)
	}
	if err := checkTypes(inst.Desc.Params[m.index], m.typ, m.readOnly, "argument binding"); err != nil {
		return nil, err
	}
	return slotOrReadOnly(inst.ParamSlot(m.index), m.readOnly, "argument"), nil
}

// thisMapping binds to the receiver slot.
type thisMapping struct {
	readOnly bool
	typ      classfile.TypeDesc
}

func (m thisMapping) Resolve(ctx resolveContext) (Target, error) {
	inst := ctx.lay.instrumented
	if inst.Static {
		return nil, bindingErrf("receiver binding on static method %s", inst)
	}
	if err := checkTypes(inst.SelfType(), m.typ, m.readOnly, "receiver binding"); err != nil {
		return nil, err
	}
	return slotOrReadOnly(0, m.readOnly, "receiver"), nil
}

// fieldMapping binds to a named field, resolved in the instrumented type or
// an explicitly named declaring type. Field bindings are always read-only.
type fieldMapping struct {
	name      string
	declaring string // "" = instrumented type
	typ       classfile.TypeDesc
}

func (m fieldMapping) Resolve(ctx resolveContext) (Target, error) {
	inst := ctx.lay.instrumented
	ref, err := ctx.fields.ResolveField(m.declaring, m.name)
	if err != nil {
		return nil, err
	}
	if !ref.Static && inst.Static {
		return nil, bindingErrf("instance field %s.%s bound in static method %s", ref.Owner, ref.Name, inst)
	}
	fieldType, err := classfile.ParseTypeDesc(ref.Descriptor)
	if err != nil {
		return nil, bindingErrf("field %s.%s: %v", ref.Owner, ref.Name, err)
	}
	if err := checkTypes(fieldType, m.typ, true, "field binding"); err != nil {
		return nil, err
	}
	return fieldTarget{field: ref}, nil
}

// enterMapping binds to the enter advice's result slot.
type enterMapping struct {
	readOnly bool
	typ      classfile.TypeDesc
}

func (m enterMapping) Resolve(ctx resolveContext) (Target, error) {
	if ctx.lay.enterType.IsVoid() {
		return nil, bindingErrf("enter value binding without an enter advice result")
	}
	if err := checkTypes(ctx.lay.enterType, m.typ, m.readOnly, "enter value binding"); err != nil {
		return nil, err
	}
	return slotOrReadOnly(ctx.lay.enterSlot(), m.readOnly, "enter value"), nil
}

// returnMapping binds to the instrumented method's parked return value.
type returnMapping struct {
	readOnly bool
	typ      classfile.TypeDesc
}

func (m returnMapping) Resolve(ctx resolveContext) (Target, error) {
	inst := ctx.lay.instrumented
	if ctx.lay.returnType.IsVoid() {
		return nil, bindingErrf("return value binding on void method %s", inst)
	}
	if err := checkTypes(ctx.lay.returnType, m.typ, m.readOnly, "return value binding"); err != nil {
		return nil, err
	}
	return slotOrReadOnly(ctx.lay.returnSlot(), m.readOnly, "return value"), nil
}

// throwableMapping binds to the parked throwable on the exceptional path.
// Composition already guarantees exceptional invocation is enabled and the
// parameter type is java/lang/Throwable.
type throwableMapping struct {
	readOnly bool
}

func (m throwableMapping) Resolve(ctx resolveContext) (Target, error) {
	return slotOrReadOnly(ctx.lay.throwableSlot(), m.readOnly, "thrown value"), nil
}

// ---------------------------------------------------------------------------
// Mapping factories
// ---------------------------------------------------------------------------

// adviceParam is one advice method parameter as seen by the factories.
type adviceParam struct {
	index int
	slot  int
	typ   classfile.TypeDesc
	anns  []classfile.Annotation
}

// mappingFactory builds the mapping for one parameter annotation type.
type mappingFactory struct {
	annotation string
	make       func(p adviceParam, ann classfile.Annotation, opts Options) (OffsetMapping, error)
}

func argFactory() mappingFactory {
	return mappingFactory{annotation: annArg, make: func(p adviceParam, ann classfile.Annotation, _ Options) (OffsetMapping, error) {
		return parameterMapping{
			index:    int(ann.Int("value", int32(p.index))),
			readOnly: ann.Bool("readOnly", true),
			typ:      p.typ,
		}, nil
	}}
}

func thisFactory() mappingFactory {
	return mappingFactory{annotation: annThis, make: func(p adviceParam, ann classfile.Annotation, _ Options) (OffsetMapping, error) {
		if !p.typ.IsReference() {
			return nil, compositionErrf("receiver binding on non-reference parameter %d", p.index)
		}
		return thisMapping{readOnly: ann.Bool("readOnly", true), typ: p.typ}, nil
	}}
}

func fieldFactory() mappingFactory {
	return mappingFactory{annotation: annField, make: func(p adviceParam, ann classfile.Annotation, _ Options) (OffsetMapping, error) {
		name := ann.String("value", "")
		if name == "" {
			return nil, compositionErrf("field binding on parameter %d names no field", p.index)
		}
		return fieldMapping{
			name:      name,
			declaring: ann.String("declaringType", ""),
			typ:       p.typ,
		}, nil
	}}
}

func enterFactory() mappingFactory {
	return mappingFactory{annotation: annEnter, make: func(p adviceParam, ann classfile.Annotation, _ Options) (OffsetMapping, error) {
		return enterMapping{readOnly: ann.Bool("readOnly", true), typ: p.typ}, nil
	}}
}

func returnFactory() mappingFactory {
	return mappingFactory{annotation: annReturn, make: func(p adviceParam, ann classfile.Annotation, _ Options) (OffsetMapping, error) {
		return returnMapping{readOnly: ann.Bool("readOnly", true), typ: p.typ}, nil
	}}
}

func thrownFactory() mappingFactory {
	return mappingFactory{annotation: annThrown, make: func(p adviceParam, ann classfile.Annotation, opts Options) (OffsetMapping, error) {
		if !opts.ExceptionalInvocation {
			return nil, compositionErrf("thrown value binding on parameter %d requires exceptional invocation", p.index)
		}
		if p.typ.Descriptor != classfile.ThrowableType.Descriptor {
			return nil, compositionErrf("thrown value binding on parameter %d must be java/lang/Throwable, got %s",
				p.index, p.typ.Descriptor)
		}
		return throwableMapping{readOnly: ann.Bool("readOnly", true)}, nil
	}}
}

// illegalFactory rejects an exit-only binding used in the enter role.
func illegalFactory(annotation, what string) mappingFactory {
	return mappingFactory{annotation: annotation, make: func(p adviceParam, _ classfile.Annotation, _ Options) (OffsetMapping, error) {
		return nil, compositionErrf("%s binding on parameter %d is only valid in exit advice", what, p.index)
	}}
}

func factoriesFor(r role) []mappingFactory {
	common := []mappingFactory{argFactory(), thisFactory(), fieldFactory()}
	if r == roleEnter {
		return append(common,
			illegalFactory(annEnter, "enter value"),
			illegalFactory(annReturn, "return value"),
			illegalFactory(annThrown, "thrown value"),
		)
	}
	return append(common, enterFactory(), returnFactory(), thrownFactory())
}

// resolveMappings folds the ordered factory list over one parameter's
// annotations. More than one claim is a composition error; no claim defaults
// to the positional read-only argument binding.
func resolveMappings(r role, params []adviceParam, opts Options) ([]OffsetMapping, error) {
	factories := factoriesFor(r)
	mappings := make([]OffsetMapping, 0, len(params))
	for _, p := range params {
		var chosen OffsetMapping
		for _, f := range factories {
			for _, ann := range p.anns {
				if ann.Type != f.annotation {
					continue
				}
				if chosen != nil {
					return nil, compositionErrf("parameter %d of %s advice is bound more than once", p.index, r)
				}
				m, err := f.make(p, ann, opts)
				if err != nil {
					return nil, err
				}
				chosen = m
			}
		}
		if chosen == nil {
			chosen = parameterMapping{index: p.index, readOnly: true, typ: p.typ}
		}
		mappings = append(mappings, chosen)
	}
	return mappings, nil
}
