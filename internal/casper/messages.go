// Package casper holds the node's gRPC wire messages.
//
// Messages are encoded by hand with protowire in ascending field order and with proto3
// default values omitted, which is the exact byte layout the node hashes when it checks a
// deploy signature.
package casper

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every wire message of this package
type Message interface {
	MarshalWire() ([]byte, error)
	UnmarshalWire(data []byte) error
}

// ErrMalformedMessage is returned when wire bytes cannot be decoded
var ErrMalformedMessage = errors.New("malformed protobuf message")

// DeployDataProto is the deploy envelope. Business fields are fixed when the envelope is
// prepared; Deployer, Sig and SigAlgorithm are attached after signing.
type DeployDataProto struct {
	Deployer              []byte // field 1
	Term                  string // field 2
	Timestamp             int64  // field 3, unix millis
	Sig                   []byte // field 4
	SigAlgorithm          string // field 5
	PhloPrice             int64  // field 7
	PhloLimit             int64  // field 8
	ValidAfterBlockNumber int64  // field 10
	ShardID               string // field 11
}

// MarshalWire encodes the envelope
func (m *DeployDataProto) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendBytes(b, 1, m.Deployer)
	b = appendString(b, 2, m.Term)
	b = appendInt64(b, 3, m.Timestamp)
	b = appendBytes(b, 4, m.Sig)
	b = appendString(b, 5, m.SigAlgorithm)
	b = appendInt64(b, 7, m.PhloPrice)
	b = appendInt64(b, 8, m.PhloLimit)
	b = appendInt64(b, 10, m.ValidAfterBlockNumber)
	b = appendString(b, 11, m.ShardID)
	return b, nil
}

// UnmarshalWire decodes the envelope, skipping unknown fields
func (m *DeployDataProto) UnmarshalWire(data []byte) error {
	*m = DeployDataProto{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			m.Deployer = cloneBytes(v)
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Term = v
			return n, nil
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Timestamp = int64(v)
			return n, nil
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			m.Sig = cloneBytes(v)
			return n, nil
		case num == 5 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.SigAlgorithm = v
			return n, nil
		case num == 7 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.PhloPrice = int64(v)
			return n, nil
		case num == 8 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.PhloLimit = int64(v)
			return n, nil
		case num == 10 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.ValidAfterBlockNumber = int64(v)
			return n, nil
		case num == 11 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.ShardID = v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// ServiceError carries the node's error messages
type ServiceError struct {
	Messages []string // field 1
}

func (m *ServiceError) Error() string {
	return fmt.Sprintf("%q", m.Messages)
}

// MarshalWire encodes the error
func (m *ServiceError) MarshalWire() ([]byte, error) {
	var b []byte
	for _, msg := range m.Messages {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, msg)
	}
	return b, nil
}

// UnmarshalWire decodes the error
func (m *ServiceError) UnmarshalWire(data []byte) error {
	*m = ServiceError{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			v, n := protowire.ConsumeString(b)
			m.Messages = append(m.Messages, v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// StringResult is the oneof { ServiceError error = 1; string result = 2; } response shape
// shared by doDeploy and propose. Exactly one of Error and Result is set on a valid response.
type StringResult struct {
	Error  *ServiceError
	Result *string
}

// DeployResponse is returned by doDeploy
type DeployResponse struct{ StringResult }

// ProposeResponse is returned by propose
type ProposeResponse struct{ StringResult }

// MarshalWire encodes the response
func (m *StringResult) MarshalWire() ([]byte, error) {
	var b []byte
	switch {
	case m.Error != nil:
		inner, _ := m.Error.MarshalWire()
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	case m.Result != nil:
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, *m.Result)
	}
	return b, nil
}

// UnmarshalWire decodes the response
func (m *StringResult) UnmarshalWire(data []byte) error {
	*m = StringResult{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			var svcErr ServiceError
			if err := svcErr.UnmarshalWire(v); err != nil {
				return 0, err
			}
			m.Error, m.Result = &svcErr, nil
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Error, m.Result = nil, &v
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// ProposeQuery asks the node to create a block
type ProposeQuery struct {
	IsAsync bool // field 1
}

// MarshalWire encodes the query
func (m *ProposeQuery) MarshalWire() ([]byte, error) {
	var b []byte
	if m.IsAsync {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeBool(true))
	}
	return b, nil
}

// UnmarshalWire decodes the query
func (m *ProposeQuery) UnmarshalWire(data []byte) error {
	*m = ProposeQuery{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			m.IsAsync = protowire.DecodeBool(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// BlocksQuery lists the most recent blocks of the main chain
type BlocksQuery struct {
	Depth int32 // field 1
}

// MarshalWire encodes the query
func (m *BlocksQuery) MarshalWire() ([]byte, error) {
	var b []byte
	if m.Depth != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(m.Depth))
	}
	return b, nil
}

// UnmarshalWire decodes the query
func (m *BlocksQuery) UnmarshalWire(data []byte) error {
	*m = BlocksQuery{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			m.Depth = int32(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// LightBlockInfo is the subset of block metadata this client reads
type LightBlockInfo struct {
	BlockHash   string // field 1
	Sender      string // field 2
	SeqNum      int64  // field 3
	Timestamp   int64  // field 9
	BlockNumber int64  // field 12
}

// MarshalWire encodes the block info
func (m *LightBlockInfo) MarshalWire() ([]byte, error) {
	var b []byte
	b = appendString(b, 1, m.BlockHash)
	b = appendString(b, 2, m.Sender)
	b = appendInt64(b, 3, m.SeqNum)
	b = appendInt64(b, 9, m.Timestamp)
	b = appendInt64(b, 12, m.BlockNumber)
	return b, nil
}

// UnmarshalWire decodes the block info, skipping the fields this client does not use
func (m *LightBlockInfo) UnmarshalWire(data []byte) error {
	*m = LightBlockInfo{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.BlockHash = v
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			m.Sender = v
			return n, nil
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.SeqNum = int64(v)
			return n, nil
		case num == 9 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.Timestamp = int64(v)
			return n, nil
		case num == 12 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			m.BlockNumber = int64(v)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
}

// BlockInfoResponse is one element of the showMainChain stream
type BlockInfoResponse struct {
	Error     *ServiceError   // field 1
	BlockInfo *LightBlockInfo // field 2
}

// MarshalWire encodes the response
func (m *BlockInfoResponse) MarshalWire() ([]byte, error) {
	var b []byte
	switch {
	case m.Error != nil:
		inner, _ := m.Error.MarshalWire()
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	case m.BlockInfo != nil:
		inner, _ := m.BlockInfo.MarshalWire()
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	return b, nil
}

// UnmarshalWire decodes the response
func (m *BlockInfoResponse) UnmarshalWire(data []byte) error {
	*m = BlockInfoResponse{}
	return walkFields(data, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType || (num != 1 && num != 2) {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}

		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		if num == 1 {
			var svcErr ServiceError
			if err := svcErr.UnmarshalWire(v); err != nil {
				return 0, err
			}
			m.Error, m.BlockInfo = &svcErr, nil
			return n, nil
		}

		var info LightBlockInfo
		if err := info.UnmarshalWire(v); err != nil {
			return 0, err
		}
		m.Error, m.BlockInfo = nil, &info
		return n, nil
	})
}

// walkFields iterates the top level fields of data. visit consumes one field value and
// returns how many bytes it used, or a negative protowire error code.
func walkFields(data []byte, visit func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedMessage, protowire.ParseError(n))
		}
		data = data[n:]

		n, err := visit(num, typ, data)
		if err != nil {
			return err
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedMessage, num, protowire.ParseError(n))
		}
		data = data[n:]
	}
	return nil
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
