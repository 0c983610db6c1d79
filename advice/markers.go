package advice

// Markers names the annotation types, as field descriptors, that identify
// advice methods and their parameter bindings.
type Markers struct {
	Enter      string `toml:"enter" cbor:"1,keyasint,omitempty"`
	Exit       string `toml:"exit" cbor:"2,keyasint,omitempty"`
	Argument   string `toml:"argument" cbor:"3,keyasint,omitempty"`
	This       string `toml:"this" cbor:"4,keyasint,omitempty"`
	EnterValue string `toml:"enter-value" cbor:"5,keyasint,omitempty"`
	Return     string `toml:"return-value" cbor:"6,keyasint,omitempty"`
}

// DefaultMarkers returns the weft annotation set.
func DefaultMarkers() Markers {
	return Markers{
		Enter:      "Lweft/Advice$OnMethodEnter;",
		Exit:       "Lweft/Advice$OnMethodExit;",
		Argument:   "Lweft/Advice$Argument;",
		This:       "Lweft/Advice$This;",
		EnterValue: "Lweft/Advice$Enter;",
		Return:     "Lweft/Advice$Return;",
	}
}

// WithDefaults fills empty fields from DefaultMarkers.
func (m Markers) WithDefaults() Markers {
	d := DefaultMarkers()
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&m.Enter, d.Enter)
	fill(&m.Exit, d.Exit)
	fill(&m.Argument, d.Argument)
	fill(&m.This, d.This)
	fill(&m.EnterValue, d.EnterValue)
	fill(&m.Return, d.Return)
	return m
}

// String renders the markers in a stable form, used to fingerprint
// weaving configurations.
func (m Markers) String() string {
	return m.Enter + " " + m.Exit + " " + m.Argument + " " + m.This + " " + m.EnterValue + " " + m.Return
}

// Element names read from marker annotations.
const (
	elementOnException = "onException"
	elementValue       = "value"
)
