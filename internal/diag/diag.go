// Package diag decodes recorded baseband diagnostic logs.
//
// A capture log is a sequence of frames, each:
//
//	uint32 LE  payload length
//	uint8      data type
//	payload    length bytes
//
// Only user-space frames carry records relevant to detection; control
// and unknown frames are recorded for completeness and skipped by the
// analysis pipeline.
package diag

// DataType discriminates what a container carries.
type DataType uint8

const (
	DataTypeUnknown   DataType = 0
	DataTypeUserSpace DataType = 1
	DataTypeControl   DataType = 2
)

func (d DataType) String() string {
	switch d {
	case DataTypeUserSpace:
		return "user-space"
	case DataTypeControl:
		return "control"
	default:
		return "unknown"
	}
}

// Record kinds, first payload byte of a user-space frame.
const (
	KindUnknown         byte = 0x00
	KindIdentityRequest byte = 0x15
	KindSecurityMode    byte = 0x5d
	KindCellInfo        byte = 0x61
)

// Identity types requested by an IdentityRequest record.
const (
	IdentityTypeIMSI byte = 1
	IdentityTypeIMEI byte = 2
	IdentityTypeTMSI byte = 4
)

// CipherNull is the "no encryption" algorithm identifier.
const CipherNull byte = 0

// Container is one decoded unit of diagnostic data.
type Container struct {
	DataType DataType
	Payload  []byte
}

// Kind returns the record kind of a user-space container, or
// KindUnknown when the payload is empty or not user-space.
func (c Container) Kind() byte {
	if c.DataType != DataTypeUserSpace || len(c.Payload) == 0 {
		return KindUnknown
	}
	return c.Payload[0]
}
