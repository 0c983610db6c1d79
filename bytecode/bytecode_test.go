package bytecode

import (
	"bytes"
	"strings"
	"testing"

	"github.com/chazu/weft/classfile"
)

func assemble(t *testing.T, instrs ...Instruction) *Assembled {
	t.Helper()
	out, err := Assemble(instrs)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return out
}

func decode(t *testing.T, code []byte, table ...classfile.ExceptionEntry) []Instruction {
	t.Helper()
	instrs, err := Decode(&classfile.CodeAttribute{MaxStack: 2, MaxLocals: 2, Code: code, ExceptionTable: table})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return instrs
}

func opsOnly(instrs []Instruction) []Instruction {
	var out []Instruction
	for _, in := range instrs {
		if in.Kind != KindLabel && in.Kind != KindMetadata && in.Kind != KindTryCatch {
			out = append(out, in)
		}
	}
	return out
}

func TestDecodeNormalisesShortForms(t *testing.T) {
	// iload_1 iconst_2 imul ireturn
	instrs := decode(t, []byte{0x1B, 0x05, 0x68, 0xAC})
	if instrs[0].Meta != MetaCodeStart || instrs[len(instrs)-1].Meta != MetaCodeEnd {
		t.Fatalf("stream not bracketed by code-start/code-end: %v", instrs)
	}
	maxs := instrs[len(instrs)-2]
	if maxs.Meta != MetaMaxs || maxs.MaxStack != 2 || maxs.MaxLocals != 2 {
		t.Errorf("maxs = %+v", maxs)
	}
	ops := opsOnly(instrs)
	if len(ops) != 4 {
		t.Fatalf("got %d instructions", len(ops))
	}
	if ops[0].Op != OpIload || ops[0].Var != 1 || ops[0].Kind != KindLocal {
		t.Errorf("first = %+v", ops[0])
	}
	if ops[3].Kind != KindReturn {
		t.Errorf("last = %+v", ops[3])
	}
}

func TestWideLocals(t *testing.T) {
	code := []byte{
		0xC4, 0x15, 0x01, 0x00, // wide iload 256
		0xC4, 0x84, 0x01, 0x00, 0x03, 0xE8, // wide iinc 256 1000
		0xB1,
	}
	ops := opsOnly(decode(t, code))
	if ops[0].Op != OpIload || ops[0].Var != 256 {
		t.Errorf("wide iload = %+v", ops[0])
	}
	if ops[1].Op != OpIinc || ops[1].Var != 256 || ops[1].Inc != 1000 {
		t.Errorf("wide iinc = %+v", ops[1])
	}
	out := assemble(t, ops...)
	if !bytes.Equal(out.Code, code) {
		t.Errorf("re-assembled % X, want % X", out.Code, code)
	}
}

func TestAssembleChoosesShortestLocalForm(t *testing.T) {
	tests := []struct {
		in   Instruction
		want []byte
	}{
		{Local(OpAstore, 2), []byte{0x4D}},
		{Local(OpLload, 0), []byte{0x1E}},
		{Local(OpIload, 4), []byte{0x15, 0x04}},
		{Local(OpIload, 300), []byte{0xC4, 0x15, 0x01, 0x2C}},
		{Local(OpRet, 1), []byte{0xA9, 0x01}},
		{Iinc(3, -1), []byte{0x84, 0x03, 0xFF}},
		{Iinc(3, 200), []byte{0xC4, 0x84, 0x00, 0x03, 0x00, 0xC8}},
		{Constant(OpLdc, 300), []byte{0x13, 0x01, 0x2C}},
		{Constant(OpLdcW, 5), []byte{0x12, 0x05}},
		{Push(OpSipush, -2), []byte{0x11, 0xFF, 0xFE}},
	}
	for _, tt := range tests {
		out := assemble(t, tt.in)
		if !bytes.Equal(out.Code, tt.want) {
			t.Errorf("%s %d: got % X, want % X", tt.in.Op, tt.in.Var, out.Code, tt.want)
		}
	}
}

func TestBranchAndExceptionRoundTrip(t *testing.T) {
	start, other := &Label{}, &Label{}
	out := assemble(t,
		Catch(&TryCatch{Start: start, End: other, Handler: other}),
		Place(start),
		LineAt(start, 10),
		Local(OpIload, 0),
		Jump(OpIfeq, other),
		Op(OpIconst1),
		Op(OpIreturn),
		Place(other),
		Op(OpIconst0),
		Op(OpIreturn),
	)
	want := []byte{0x1A, 0x99, 0x00, 0x05, 0x04, 0xAC, 0x03, 0xAC}
	if !bytes.Equal(out.Code, want) {
		t.Fatalf("code % X, want % X", out.Code, want)
	}
	if len(out.ExceptionTable) != 1 || out.ExceptionTable[0] != (classfile.ExceptionEntry{StartPC: 0, EndPC: 6, HandlerPC: 6}) {
		t.Errorf("exception table = %v", out.ExceptionTable)
	}
	if len(out.LineNumbers) != 1 || out.LineNumbers[0].Line != 10 {
		t.Errorf("line numbers = %v", out.LineNumbers)
	}

	again := assemble(t, decode(t, out.Code, out.ExceptionTable...)...)
	if !bytes.Equal(again.Code, out.Code) {
		t.Errorf("round trip % X, want % X", again.Code, out.Code)
	}
	if len(again.ExceptionTable) != 1 || again.ExceptionTable[0] != out.ExceptionTable[0] {
		t.Errorf("round trip exception table = %v", again.ExceptionTable)
	}
}

func nops(n int) []Instruction {
	out := make([]Instruction, n)
	for i := range out {
		out[i] = Op(OpNop)
	}
	return out
}

func TestGotoWidening(t *testing.T) {
	end := &Label{}
	instrs := append([]Instruction{Jump(OpGoto, end)}, nops(33000)...)
	instrs = append(instrs, Place(end), Op(OpReturn))
	out := assemble(t, instrs...)
	if out.Code[0] != byte(OpGotoW) {
		t.Fatalf("first opcode 0x%02X, want goto_w", out.Code[0])
	}
	if len(out.Code) != 5+33000+1 {
		t.Errorf("code length %d", len(out.Code))
	}
	back := opsOnly(decode(t, out.Code))
	if back[0].Op != OpGoto {
		t.Errorf("goto_w decoded as %s", back[0].Op)
	}
}

func TestConditionalBranchOverflow(t *testing.T) {
	end := &Label{}
	instrs := append([]Instruction{Local(OpIload, 0), Jump(OpIfeq, end)}, nops(33000)...)
	instrs = append(instrs, Place(end), Op(OpReturn))
	if _, err := Assemble(instrs); err == nil {
		t.Fatal("expected displacement error")
	}
}

func TestSwitchPadding(t *testing.T) {
	a, b, def := &Label{}, &Label{}, &Label{}
	table := &Switch{Default: def, Low: 0, Targets: []*Label{a, b}}
	out := assemble(t,
		Local(OpIload, 0),
		Instruction{Op: OpTableswitch, Kind: KindJump, Switch: table},
		Place(a), Op(OpIconst0), Op(OpIreturn),
		Place(b), Op(OpIconst1), Op(OpIreturn),
		Place(def), Op(OpIconstM1), Op(OpIreturn),
	)
	if out.Code[1] != byte(OpTableswitch) || out.Code[2] != 0 || out.Code[3] != 0 {
		t.Fatalf("tableswitch not padded: % X", out.Code[:8])
	}
	// 1 + 1 + 2 pad + 12 + 8 = 24 bytes before the first case.
	if out.Code[24] != byte(OpIconst0) {
		t.Errorf("first case at wrong offset: % X", out.Code)
	}
	back := opsOnly(decode(t, out.Code))
	sw := back[1].Switch
	if sw == nil || len(sw.Targets) != 2 || sw.Low != 0 {
		t.Fatalf("decoded switch = %+v", back[1])
	}
	again := assemble(t, decode(t, out.Code)...)
	if !bytes.Equal(again.Code, out.Code) {
		t.Errorf("tableswitch round trip differs")
	}

	def2 := &Label{}
	lookup := &Switch{Default: def2, Keys: []int32{-5, 100}, Targets: []*Label{a, b}}
	out = assemble(t,
		Instruction{Op: OpLookupswitch, Kind: KindJump, Switch: lookup},
		Place(a), Op(OpReturn),
		Place(b), Op(OpReturn),
		Place(def2), Op(OpReturn),
	)
	back = opsOnly(decode(t, out.Code))
	if back[0].Switch.Keys[0] != -5 || back[0].Switch.Keys[1] != 100 {
		t.Errorf("lookupswitch keys = %v", back[0].Switch.Keys)
	}
}

func TestAssembleErrors(t *testing.T) {
	l := &Label{}
	tests := []struct {
		name   string
		instrs []Instruction
	}{
		{"unplaced label", []Instruction{Jump(OpGoto, l)}},
		{"label placed twice", []Instruction{Place(l), Place(l), Op(OpReturn)}},
		{"empty", []Instruction{Metadata(MetaCodeStart)}},
		{"switch arity", []Instruction{{Op: OpLookupswitch, Kind: KindJump, Switch: &Switch{Default: l, Keys: []int32{1}}}, Place(l), Op(OpReturn)}},
		{"negative slot", []Instruction{Local(OpIload, -1)}},
		{"empty try range", []Instruction{Place(l), Catch(&TryCatch{Start: l, End: l, Handler: l}), Op(OpReturn)}},
	}
	for _, tt := range tests {
		if _, err := Assemble(tt.instrs); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		code  []byte
		table []classfile.ExceptionEntry
	}{
		{"invalid opcode", []byte{0xCA}, nil},
		{"truncated operand", []byte{0x10}, nil},
		{"branch into instruction", []byte{0xA7, 0x00, 0x01, 0xB1}, nil},
		{"bad wide", []byte{0xC4, 0x00, 0x00, 0x00}, nil},
		{"empty exception range", []byte{0xB1}, []classfile.ExceptionEntry{{StartPC: 0, EndPC: 0}}},
	}
	for _, tt := range tests {
		if _, err := Decode(&classfile.CodeAttribute{Code: tt.code, ExceptionTable: tt.table}); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestDecodeMethodIncludesParameters(t *testing.T) {
	c, err := classfile.NewClass("A", "java/lang/Object", 0)
	if err != nil {
		t.Fatal(err)
	}
	name, _ := c.Pool.AddUtf8("value")
	params, err := classfile.NewAttribute(c.Pool, classfile.AttrMethodParameters,
		[]byte{1, byte(name >> 8), byte(name), 0x00, 0x10})
	if err != nil {
		t.Fatal(err)
	}
	m, err := c.AddMethod(classfile.AccStatic, "f", "(I)V",
		&classfile.CodeAttribute{MaxStack: 0, MaxLocals: 1, Code: []byte{0xB1}}, params)
	if err != nil {
		t.Fatal(err)
	}
	instrs, err := DecodeMethod(m, c.Pool)
	if err != nil {
		t.Fatal(err)
	}
	if instrs[0].Meta != MetaParameter || instrs[0].Name != "value" || instrs[0].Access != 0x10 {
		t.Errorf("first = %+v", instrs[0])
	}
	if instrs[1].Meta != MetaCodeStart {
		t.Errorf("second = %+v", instrs[1])
	}
}

func TestMaxLocals(t *testing.T) {
	instrs := []Instruction{Local(OpIload, 0), Local(OpLstore, 3), Iinc(1, 1), Op(OpReturn)}
	if got := MaxLocals(instrs); got != 5 {
		t.Errorf("MaxLocals = %d, want 5", got)
	}
	if got := MaxLocals(nil); got != 0 {
		t.Errorf("MaxLocals(nil) = %d", got)
	}
}

func TestDisassemble(t *testing.T) {
	pool := classfile.NewConstantPool()
	ref, _ := pool.AddMemberRef(classfile.TagMethodref, "java/lang/System", "nanoTime", "()J")
	str, _ := pool.AddString("hi")
	start, end := &Label{}, &Label{}
	text := DisassembleWithName("run()V", []Instruction{
		Metadata(MetaCodeStart),
		Catch(&TryCatch{Start: start, End: end, Handler: end}),
		Place(start),
		Constant(OpInvokestatic, ref),
		Op(OpPop2),
		Constant(OpLdc, str),
		Op(OpPop),
		Iinc(1, 5),
		Jump(OpGoto, end),
		Place(end),
		Op(OpReturn),
	}, pool)
	for _, want := range []string{
		"; === run()V ===",
		"    .code-start",
		".catch any [L0, L1) -> L1",
		"L0:",
		"invokestatic #",
		"java/lang/System.nanoTime:()J",
		`ldc #`,
		`"hi"`,
		"iinc 1 5",
		"goto L1",
		"    return",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("listing missing %q:\n%s", want, text)
		}
	}
}
