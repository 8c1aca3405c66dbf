package classfile

import "testing"

func TestOpcodeString(t *testing.T) {
	cases := []struct {
		op   Opcode
		want string
	}{
		{OpNop, "nop"},
		{OpAload, "aload"},
		{OpInvokevirtual, "invokevirtual"},
		{OpTableswitch, "tableswitch"},
		{OpJsrW, "jsr_w"},
	}
	for _, c := range cases {
		if got := c.op.String(); got != c.want {
			t.Errorf("Opcode(0x%02x).String() = %q, want %q", byte(c.op), got, c.want)
		}
	}
}

func TestIsReturn(t *testing.T) {
	returns := []Opcode{OpIreturn, OpLreturn, OpFreturn, OpDreturn, OpAreturn, OpReturn}
	for _, op := range returns {
		if !op.IsReturn() {
			t.Errorf("%s.IsReturn() = false", op)
		}
	}
	for _, op := range []Opcode{OpNop, OpAthrow, OpGoto, OpLookupswitch} {
		if op.IsReturn() {
			t.Errorf("%s.IsReturn() = true", op)
		}
	}
}

func TestStoreLoadForReturn(t *testing.T) {
	cases := []struct {
		ret, store, load Opcode
	}{
		{OpIreturn, OpIstore, OpIload},
		{OpLreturn, OpLstore, OpLload},
		{OpFreturn, OpFstore, OpFload},
		{OpDreturn, OpDstore, OpDload},
		{OpAreturn, OpAstore, OpAload},
	}
	for _, c := range cases {
		if got := StoreForReturn(c.ret); got != c.store {
			t.Errorf("StoreForReturn(%s) = %s, want %s", c.ret, got, c.store)
		}
		if got := LoadForReturn(c.ret); got != c.load {
			t.Errorf("LoadForReturn(%s) = %s, want %s", c.ret, got, c.load)
		}
	}
}

func TestStoreForReturnPanicsOnVoid(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("StoreForReturn(return) should panic")
		}
	}()
	StoreForReturn(OpReturn)
}

func TestVarWidth(t *testing.T) {
	if VarWidth(OpLload) != 2 || VarWidth(OpDstore) != 2 {
		t.Error("long/double loads and stores should be width 2")
	}
	if VarWidth(OpIload) != 1 || VarWidth(OpAstore) != 1 {
		t.Error("int/reference loads and stores should be width 1")
	}
}

func TestIsLoadIsStore(t *testing.T) {
	if !OpIload.IsLoad() || !OpAload.IsLoad() {
		t.Error("iload/aload should be loads")
	}
	if OpIstore.IsLoad() {
		t.Error("istore is not a load")
	}
	if !OpIstore.IsStore() || !OpAstore.IsStore() {
		t.Error("istore/astore should be stores")
	}
	if OpAload.IsStore() {
		t.Error("aload is not a store")
	}
}
