package casper

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// Full gRPC method names of the node services this client calls
const (
	MethodDoDeploy      = "/casper.v1.DeployService/doDeploy"
	MethodShowMainChain = "/casper.v1.DeployService/showMainChain"
	MethodPropose       = "/casper.v1.ProposeService/propose"
)

// Codec marshals the Message types of this package. It registers under the standard
// "proto" content subtype so the node sees ordinary application/grpc+proto calls.
type Codec struct{}

var _ encoding.Codec = Codec{}

// Name returns the content subtype
func (Codec) Name() string { return "proto" }

// Marshal encodes a Message
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("casper codec: cannot marshal %T", v)
	}
	return m.MarshalWire()
}

// Unmarshal decodes into a Message
func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("casper codec: cannot unmarshal into %T", v)
	}
	return m.UnmarshalWire(data)
}
