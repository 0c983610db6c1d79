package bytecode

import "testing"

func TestOpcodeTableIsComplete(t *testing.T) {
	for b := 0; b <= 0xC9; b++ {
		if !Opcode(b).Valid() {
			t.Errorf("opcode 0x%02X undefined", b)
		}
	}
	if Opcode(0xCA).Valid() {
		t.Error("breakpoint 0xCA should be undefined")
	}
	if OpcodeCount() != 0xCA {
		t.Errorf("OpcodeCount() = %d, want %d", OpcodeCount(), 0xCA)
	}
	if len(AllOpcodes()) != OpcodeCount() {
		t.Error("AllOpcodes and OpcodeCount disagree")
	}
	if Opcode(0xFE).String() != "UNKNOWN(0xFE)" {
		t.Errorf("got %q", Opcode(0xFE).String())
	}
}

func TestOpcodeNames(t *testing.T) {
	names := map[Opcode]string{
		OpIconstM1: "iconst_m1", OpLload: "lload", OpAload3: "aload_3",
		OpDstore: "dstore", OpIstore0: "istore_0", OpCaload: "caload",
		OpDup2X1: "dup2_x1", OpLushr: "lushr", OpD2f: "d2f", OpDcmpg: "dcmpg",
		OpIfAcmpne: "if_acmpne", OpJsr: "jsr", OpReturn: "return",
		OpInvokestatic: "invokestatic", OpMultianewarray: "multianewarray",
		OpJsrW: "jsr_w", OpFneg: "fneg", OpIxor: "ixor",
	}
	for op, want := range names {
		if op.String() != want {
			t.Errorf("0x%02X: got %q, want %q", byte(op), op.String(), want)
		}
	}
}

func TestOpcodeKinds(t *testing.T) {
	kinds := map[Opcode]Kind{
		OpNop: KindOther, OpLdc: KindOther, OpInvokevirtual: KindOther,
		OpIreturn: KindReturn, OpReturn: KindReturn, OpAreturn: KindReturn,
		OpAthrow: KindThrow,
		OpIload:  KindLocal, OpAstore3: KindLocal, OpIinc: KindLocal, OpRet: KindLocal,
		OpGoto: KindJump, OpGotoW: KindJump, OpIfnull: KindJump, OpTableswitch: KindJump,
	}
	for op, want := range kinds {
		if op.Kind() != want {
			t.Errorf("%s: kind %s, want %s", op, op.Kind(), want)
		}
	}
	if !OpIfIcmple.IsConditional() || OpGoto.IsConditional() || !OpIfnonnull.IsConditional() {
		t.Error("IsConditional mismatch")
	}
}

func TestTypedOpcodes(t *testing.T) {
	tests := []struct {
		desc        string
		load, store Opcode
		ret         Opcode
	}{
		{"I", OpIload, OpIstore, OpIreturn},
		{"Z", OpIload, OpIstore, OpIreturn},
		{"J", OpLload, OpLstore, OpLreturn},
		{"F", OpFload, OpFstore, OpFreturn},
		{"D", OpDload, OpDstore, OpDreturn},
		{"Ljava/lang/String;", OpAload, OpAstore, OpAreturn},
		{"[I", OpAload, OpAstore, OpAreturn},
	}
	for _, tt := range tests {
		if LoadFor(tt.desc) != tt.load || StoreFor(tt.desc) != tt.store || ReturnFor(tt.desc) != tt.ret {
			t.Errorf("%s: got %s %s %s", tt.desc, LoadFor(tt.desc), StoreFor(tt.desc), ReturnFor(tt.desc))
		}
	}
	if ReturnFor("V") != OpReturn {
		t.Error("ReturnFor(V) != return")
	}
	if OpDstore.Width() != 2 || OpReturn.Width() != 0 || OpAload.Width() != 1 {
		t.Error("Width mismatch")
	}
}
