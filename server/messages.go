package server

import "github.com/chazu/weft/advice"

// Procedure names, shared by the Connect and gRPC transports.
const (
	ServiceName       = "weft.v1.WeaverService"
	ResolveProcedure  = "/" + ServiceName + "/Resolve"
	WeaveProcedure    = "/" + ServiceName + "/Weave"
	ReleaseProcedure  = "/" + ServiceName + "/Release"
	servicePathPrefix = "/" + ServiceName + "/"
)

// ResolveRequest asks the server to resolve a donor and keep it for later
// Weave calls.
type ResolveRequest struct {
	Donor   []byte         `cbor:"1,keyasint"`
	Markers advice.Markers `cbor:"2,keyasint"`
}

// ResolveResponse describes the resolved advice.
type ResolveResponse struct {
	Handle          string `cbor:"1,keyasint"`
	Donor           string `cbor:"2,keyasint"`
	Enter           string `cbor:"3,keyasint,omitempty"`
	Exit            string `cbor:"4,keyasint,omitempty"`
	EnterFootprint  int    `cbor:"5,keyasint"`
	SkipOnException bool   `cbor:"6,keyasint"`
}

// WeaveRequest weaves one class. The advice comes from Handle when set,
// otherwise Donor is resolved for this call only.
type WeaveRequest struct {
	Handle  string         `cbor:"1,keyasint,omitempty"`
	Donor   []byte         `cbor:"2,keyasint,omitempty"`
	Markers advice.Markers `cbor:"3,keyasint"`
	Class   []byte         `cbor:"4,keyasint"`
	Match   advice.Matcher `cbor:"5,keyasint"`
}

// WeaveResponse carries the woven class.
type WeaveResponse struct {
	Name    string                `cbor:"1,keyasint"`
	Class   []byte                `cbor:"2,keyasint"`
	Changed bool                  `cbor:"3,keyasint"`
	Methods []advice.MethodResult `cbor:"4,keyasint,omitempty"`
}

// ReleaseRequest drops a resolved donor.
type ReleaseRequest struct {
	Handle string `cbor:"1,keyasint"`
}

// ReleaseResponse reports whether the handle existed.
type ReleaseResponse struct {
	Released bool `cbor:"1,keyasint"`
}
