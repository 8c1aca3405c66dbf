package classfile

import "testing"

func TestInternDedup(t *testing.T) {
	cp := NewConstantPool()
	a, err := cp.Utf8Index("hello")
	if err != nil {
		t.Fatal(err)
	}
	b, err := cp.Utf8Index("hello")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("interning the same Utf8 twice gave %d and %d", a, b)
	}
	c, err := cp.Utf8Index("world")
	if err != nil {
		t.Fatal(err)
	}
	if c == a {
		t.Error("distinct strings interned to the same index")
	}
}

func TestInternWideConstants(t *testing.T) {
	cp := NewConstantPool()
	l, err := cp.LongIndex(42)
	if err != nil {
		t.Fatal(err)
	}
	d, err := cp.DoubleIndex(3.5)
	if err != nil {
		t.Fatal(err)
	}
	// A long takes two slots, so the double lands two past it.
	if d != l+2 {
		t.Errorf("double index = %d, want %d", d, l+2)
	}
	if got, err := cp.Loadable(l); err != nil || got != ConstLong(42) {
		t.Errorf("Loadable(long) = %v, %v", got, err)
	}
	if got, err := cp.Loadable(d); err != nil || got != ConstDouble(3.5) {
		t.Errorf("Loadable(double) = %v, %v", got, err)
	}
	// The phantom slot after a wide constant is not addressable.
	if _, err := cp.Loadable(l + 1); err == nil {
		t.Error("phantom slot after long should not resolve")
	}
}

func TestClassAndRefEntries(t *testing.T) {
	cp := NewConstantPool()
	ci, err := cp.ClassIndex("java/lang/String")
	if err != nil {
		t.Fatal(err)
	}
	name, err := cp.ClassName(ci)
	if err != nil || name != "java/lang/String" {
		t.Errorf("ClassName = %q, %v", name, err)
	}

	mi, err := cp.MethodrefIndex("java/io/PrintStream", "println", "(I)V", false)
	if err != nil {
		t.Fatal(err)
	}
	owner, mname, desc, err := cp.Ref(mi)
	if err != nil {
		t.Fatal(err)
	}
	if owner != "java/io/PrintStream" || mname != "println" || desc != "(I)V" {
		t.Errorf("Ref = %q %q %q", owner, mname, desc)
	}

	// Interface references get a distinct entry even for the same member.
	ii, err := cp.MethodrefIndex("java/io/PrintStream", "println", "(I)V", true)
	if err != nil {
		t.Fatal(err)
	}
	if ii == mi {
		t.Error("interface and class methodrefs interned to the same index")
	}
}

func TestConstantIndex(t *testing.T) {
	cp := NewConstantPool()
	cases := []struct {
		c    Constant
		wide bool
	}{
		{ConstInt(7), false},
		{ConstFloat(1.5), false},
		{ConstLong(1 << 40), true},
		{ConstDouble(2.25), true},
		{ConstString("s"), false},
		{ConstClass("java/lang/Object"), false},
	}
	for _, c := range cases {
		idx, wide, err := cp.ConstantIndex(c.c)
		if err != nil {
			t.Errorf("ConstantIndex(%v) failed: %v", c.c, err)
			continue
		}
		if wide != c.wide {
			t.Errorf("ConstantIndex(%v) wide = %v, want %v", c.c, wide, c.wide)
		}
		got, err := cp.Loadable(idx)
		if err != nil || got != c.c {
			t.Errorf("Loadable(%d) = %v, %v; want %v", idx, got, err, c.c)
		}
	}
}

func TestPoolEmitParseRoundTrip(t *testing.T) {
	cp := NewConstantPool()
	if _, err := cp.Utf8Index("alpha"); err != nil {
		t.Fatal(err)
	}
	if _, err := cp.LongIndex(-9); err != nil {
		t.Fatal(err)
	}
	si, err := cp.StringIndex("beta")
	if err != nil {
		t.Fatal(err)
	}
	fi, err := cp.FieldrefIndex("pkg/Owner", "field", "I")
	if err != nil {
		t.Fatal(err)
	}

	data := cp.emit(nil)
	parsed, err := parseConstantPool(&byteReader{data: data})
	if err != nil {
		t.Fatalf("parse of emitted pool failed: %v", err)
	}
	if parsed.Len() != cp.Len() {
		t.Errorf("parsed pool len = %d, want %d", parsed.Len(), cp.Len())
	}
	if got, err := parsed.Loadable(si); err != nil || got != ConstString("beta") {
		t.Errorf("string round trip = %v, %v", got, err)
	}
	owner, name, desc, err := parsed.Ref(fi)
	if err != nil || owner != "pkg/Owner" || name != "field" || desc != "I" {
		t.Errorf("fieldref round trip = %q %q %q, %v", owner, name, desc, err)
	}
}
