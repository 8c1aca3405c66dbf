package classfile

import (
	"errors"
	"testing"
)

func TestParseTypeDesc(t *testing.T) {
	cases := []struct {
		in    string
		cat   Category
		width int
	}{
		{"I", CatInt, 1},
		{"Z", CatInt, 1},
		{"B", CatInt, 1},
		{"C", CatInt, 1},
		{"S", CatInt, 1},
		{"F", CatFloat, 1},
		{"J", CatLong, 2},
		{"D", CatDouble, 2},
		{"V", CatVoid, 0},
		{"Ljava/lang/String;", CatReference, 1},
		{"[I", CatReference, 1},
		{"[[Ljava/lang/Object;", CatReference, 1},
	}
	for _, c := range cases {
		td, err := ParseTypeDesc(c.in)
		if err != nil {
			t.Errorf("ParseTypeDesc(%q) failed: %v", c.in, err)
			continue
		}
		if td.Category != c.cat {
			t.Errorf("ParseTypeDesc(%q).Category = %v, want %v", c.in, td.Category, c.cat)
		}
		if td.SlotWidth() != c.width {
			t.Errorf("ParseTypeDesc(%q).SlotWidth() = %d, want %d", c.in, td.SlotWidth(), c.width)
		}
		if td.Descriptor != c.in {
			t.Errorf("ParseTypeDesc(%q).Descriptor = %q", c.in, td.Descriptor)
		}
	}
}

func TestParseTypeDescErrors(t *testing.T) {
	for _, in := range []string{"", "X", "L", "Ljava/lang/String", "[V", "II"} {
		if _, err := ParseTypeDesc(in); !errors.Is(err, ErrBadDescriptor) {
			t.Errorf("ParseTypeDesc(%q) = %v, want ErrBadDescriptor", in, err)
		}
	}
}

func TestInternalName(t *testing.T) {
	if got := ObjectDesc("java/lang/String").InternalName(); got != "java/lang/String" {
		t.Errorf("InternalName = %q, want java/lang/String", got)
	}
	arr, _ := ParseTypeDesc("[I")
	if got := arr.InternalName(); got != "[I" {
		t.Errorf("array InternalName = %q, want [I", got)
	}
	i, _ := ParseTypeDesc("I")
	if got := i.InternalName(); got != "" {
		t.Errorf("primitive InternalName = %q, want empty", got)
	}
}

func TestAssignableTo(t *testing.T) {
	str := ObjectDesc("java/lang/String")
	i, _ := ParseTypeDesc("I")
	j, _ := ParseTypeDesc("J")

	if !str.AssignableTo(str) {
		t.Error("String should be assignable to itself")
	}
	if !str.AssignableTo(ObjectType) {
		t.Error("String should be assignable to Object")
	}
	if ObjectType.AssignableTo(str) {
		t.Error("Object should not be assignable to String")
	}
	if !i.AssignableTo(i) {
		t.Error("int should be assignable to itself")
	}
	if i.AssignableTo(j) {
		t.Error("int should not be assignable to long")
	}
	if i.AssignableTo(ObjectType) {
		t.Error("int should not be assignable to Object")
	}
}

func TestParseMethodDesc(t *testing.T) {
	d, err := ParseMethodDesc("(IJLjava/lang/String;[D)V")
	if err != nil {
		t.Fatalf("ParseMethodDesc failed: %v", err)
	}
	if len(d.Params) != 4 {
		t.Fatalf("param count = %d, want 4", len(d.Params))
	}
	if d.Params[1].Category != CatLong {
		t.Errorf("param 1 category = %v, want long", d.Params[1].Category)
	}
	if d.Params[3].Descriptor != "[D" {
		t.Errorf("param 3 = %q, want [D", d.Params[3].Descriptor)
	}
	if !d.Return.IsVoid() {
		t.Errorf("return = %v, want void", d.Return)
	}
	if d.ArgSlotWidth() != 5 {
		t.Errorf("ArgSlotWidth = %d, want 5", d.ArgSlotWidth())
	}
}

func TestParamSlot(t *testing.T) {
	d, err := ParseMethodDesc("(JID)I")
	if err != nil {
		t.Fatal(err)
	}
	// static: J at 0, I at 2, D at 3
	if got := d.ParamSlot(0, 0); got != 0 {
		t.Errorf("ParamSlot(0) = %d, want 0", got)
	}
	if got := d.ParamSlot(1, 0); got != 2 {
		t.Errorf("ParamSlot(1) = %d, want 2", got)
	}
	if got := d.ParamSlot(2, 0); got != 3 {
		t.Errorf("ParamSlot(2) = %d, want 3", got)
	}
	// instance: shifted by the receiver
	if got := d.ParamSlot(2, 1); got != 4 {
		t.Errorf("ParamSlot(2, 1) = %d, want 4", got)
	}
}

func TestParseMethodDescErrors(t *testing.T) {
	for _, in := range []string{"", "I", "(I", "(V)V", "()"} {
		if _, err := ParseMethodDesc(in); !errors.Is(err, ErrBadDescriptor) {
			t.Errorf("ParseMethodDesc(%q) = %v, want ErrBadDescriptor", in, err)
		}
	}
}

func TestVerification(t *testing.T) {
	cases := []struct {
		desc string
		tag  VerificationTag
	}{
		{"I", VTInteger},
		{"Z", VTInteger},
		{"F", VTFloat},
		{"J", VTLong},
		{"D", VTDouble},
	}
	for _, c := range cases {
		td, _ := ParseTypeDesc(c.desc)
		if v := td.Verification(); v.Tag != c.tag {
			t.Errorf("%q verification tag = %v, want %v", c.desc, v.Tag, c.tag)
		}
	}
	str := ObjectDesc("java/lang/String")
	v := str.Verification()
	if v.Tag != VTObject || v.ClassName != "java/lang/String" {
		t.Errorf("String verification = %+v", v)
	}
}
