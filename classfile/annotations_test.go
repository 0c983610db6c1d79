package classfile

import "testing"

func TestAnnotationsRoundTrip(t *testing.T) {
	pool := NewConstantPool()
	inner := Annotation{Type: "Lcom/acme/Inner;"}
	anns := []Annotation{
		{
			Type: "Lcom/acme/Exit;",
			Elements: []ElementPair{
				{Name: "onException", Value: BoolValue(false)},
				{Name: "value", Value: IntValue(-3)},
				{Name: "mode", Value: ElementValue{Tag: 'e', EnumType: "Lcom/acme/Mode;", EnumName: "FAST"}},
				{Name: "type", Value: ElementValue{Tag: 'c', Class: "Ljava/lang/String;"}},
				{Name: "nested", Value: ElementValue{Tag: '@', Annotation: &inner}},
				{Name: "list", Value: ElementValue{Tag: '[', Values: []ElementValue{IntValue(1), IntValue(2)}}},
			},
		},
		{Type: "Lcom/acme/Marker;"},
	}
	data, err := EncodeAnnotations(pool, anns)
	if err != nil {
		t.Fatal(err)
	}
	back, err := ParseAnnotations(data, pool)
	if err != nil {
		t.Fatal(err)
	}
	if len(back) != 2 {
		t.Fatalf("got %d annotations", len(back))
	}
	exit, ok := FindAnnotation(back, "Lcom/acme/Exit;")
	if !ok {
		t.Fatal("Exit annotation missing")
	}
	if b, err := exit.Bool("onException", true); err != nil || b {
		t.Errorf("onException = %v, %v", b, err)
	}
	if b, err := exit.Bool("absent", true); err != nil || !b {
		t.Errorf("absent = %v, %v", b, err)
	}
	if _, err := exit.Bool("value", true); err == nil {
		t.Error("expected type error reading int as boolean")
	}
	if v, err := exit.Int("value", 0); err != nil || v != -3 {
		t.Errorf("value = %d, %v", v, err)
	}
	if _, err := exit.Int("mode", 0); err == nil {
		t.Error("expected type error reading enum as int")
	}
	mode, _ := exit.Element("mode")
	if mode.EnumName != "FAST" {
		t.Errorf("mode = %+v", mode)
	}
	nested, _ := exit.Element("nested")
	if nested.Annotation == nil || nested.Annotation.Type != "Lcom/acme/Inner;" {
		t.Errorf("nested = %+v", nested)
	}
	list, _ := exit.Element("list")
	if len(list.Values) != 2 {
		t.Errorf("list = %+v", list)
	}
	if _, ok := FindAnnotation(back, "Lcom/acme/Other;"); ok {
		t.Error("found absent annotation")
	}
}

func TestParameterAnnotationsAlignToEnd(t *testing.T) {
	c, err := NewClass("com/acme/A", "java/lang/Object", AccPublic)
	if err != nil {
		t.Fatal(err)
	}
	data, err := EncodeParameterAnnotations(c.Pool, [][]Annotation{
		{{Type: "Lcom/acme/Argument;", Elements: []ElementPair{{Name: "value", Value: IntValue(0)}}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	attr, err := NewAttribute(c.Pool, AttrRuntimeVisibleParameterAnnotations, data)
	if err != nil {
		t.Fatal(err)
	}
	m, err := c.AddMethod(AccStatic|AccAbstract, "f", "(II)V", nil, attr)
	if err != nil {
		t.Fatal(err)
	}
	params, err := m.ParameterAnnotations(c.Pool, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(params[0]) != 0 || len(params[1]) != 1 {
		t.Errorf("params = %v", params)
	}
	if _, err := m.ParameterAnnotations(c.Pool, 0); err == nil {
		t.Error("expected error when attribute declares more parameters than descriptor")
	}
}

func TestParseAnnotationsErrors(t *testing.T) {
	pool := NewConstantPool()
	typ, _ := pool.AddUtf8("Lcom/acme/A;")
	// one annotation, one element named by the type index, bogus tag
	data := []byte{0, 1, byte(typ >> 8), byte(typ), 0, 1, byte(typ >> 8), byte(typ), 'x'}
	if _, err := ParseAnnotations(data, pool); err == nil {
		t.Error("expected unknown tag error")
	}
	if _, err := ParseAnnotations([]byte{0, 1}, pool); err == nil {
		t.Error("expected truncation error")
	}
	if _, err := ParseAnnotations([]byte{0, 0, 0}, pool); err == nil {
		t.Error("expected trailing bytes error")
	}
}
