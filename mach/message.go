// Package mach implements the client side of the host's message-passing IPC:
// the wire layout of messages that carry out-of-line buffers, the MIG
// conventions layered on top of it, and a Transport abstraction that performs
// the actual round trip.  The wire layout is the 64-bit one with 4-byte
// packing, in host (little-endian) byte order.
package mach

import (
	"encoding/binary"
	"errors"
)

const (
	headerSize = 24
	bodySize   = 4
	oolSize    = 16

	typeCopySend     = 19
	typeMakeSendOnce = 21

	bitsComplex = 0x80000000

	descriptorOOL = 1
	copyVirtual   = 1
)

// Port is a communication handle in the caller's port namespace.
type Port uint32

// PortNull is the null port.
const PortNull Port = 0

var (
	// ErrUnsupported is returned by the host transport on platforms without
	// Mach IPC.
	ErrUnsupported = errors.New("mach IPC is not available on this platform")

	errAddrCount = errors.New("number of addresses does not match number of descriptors")
	le           = binary.LittleEndian
)

// Transport performs bootstrap lookups and synchronous request/reply round
// trips.  Implementations own the translation of out-of-line payloads to and
// from the host's memory: request payloads are only read during Call, and
// reply payloads are returned as freshly allocated slices that belong to the
// caller.
type Transport interface {
	LookUp(name string) (Port, error)
	Call(dest Port, req *Message) (*Message, error)
}

// Message is a message as seen by MIG code: an identifier, zero or more
// out-of-line buffers, and inline data that follows the descriptors.
type Message struct {
	ID          int32
	Complex     bool
	Descriptors [][]byte
	Body        []byte
}

// Header mirrors mach_msg_header_t.
type Header struct {
	Bits       uint32
	Size       uint32
	RemotePort Port
	LocalPort  Port
	Voucher    Port
	ID         int32
}

// IsComplex returns true if the message carries descriptors.
func (h Header) IsComplex() bool {
	return h.Bits&bitsComplex != 0
}

// OOLDescriptor mirrors mach_msg_ool_descriptor_t.  Address is only
// meaningful in the address space that received the message.
type OOLDescriptor struct {
	Address    uint64
	Deallocate bool
	Copy       uint8
	Type       uint8
	Size       uint32
}

// Raw is a parsed wire message whose out-of-line regions have not been
// copied yet.
type Raw struct {
	Header      Header
	Descriptors []OOLDescriptor
	Body        []byte
}

func msghBits(remote, local uint32) uint32 {
	return remote | local<<8
}

// Marshal lays out the given message in wire format.  addrs holds one address
// per descriptor: the location of the descriptor's payload in the sender's
// address space.
func Marshal(m *Message, remote, local Port, addrs []uint64) ([]byte, error) {
	if len(addrs) != len(m.Descriptors) {
		return nil, errAddrCount
	}
	isComplex := m.Complex || len(m.Descriptors) > 0

	size := headerSize + len(m.Body)
	if isComplex {
		size += bodySize + oolSize*len(m.Descriptors)
	}
	b := make([]byte, size)

	bits := msghBits(typeCopySend, typeMakeSendOnce)
	if isComplex {
		bits |= bitsComplex
	}
	le.PutUint32(b[0:], bits)
	le.PutUint32(b[4:], uint32(size))
	le.PutUint32(b[8:], uint32(remote))
	le.PutUint32(b[12:], uint32(local))
	le.PutUint32(b[16:], uint32(PortNull))
	le.PutUint32(b[20:], uint32(m.ID))

	off := headerSize
	if isComplex {
		le.PutUint32(b[off:], uint32(len(m.Descriptors)))
		off += bodySize
		for i, d := range m.Descriptors {
			le.PutUint64(b[off:], addrs[i])
			b[off+8] = 0 // Receiver does not deallocate our copy.
			b[off+9] = copyVirtual
			b[off+10] = 0
			b[off+11] = descriptorOOL
			le.PutUint32(b[off+12:], uint32(len(d)))
			off += oolSize
		}
	}
	copy(b[off:], m.Body)

	return b, nil
}

// Unmarshal parses a received message.  Bytes beyond the header's size (the
// receive trailer) are ignored.  Malformed messages yield MigTypeError.
func Unmarshal(b []byte) (*Raw, error) {
	if len(b) < headerSize {
		return nil, MigTypeError
	}
	h := Header{
		Bits:       le.Uint32(b[0:]),
		Size:       le.Uint32(b[4:]),
		RemotePort: Port(le.Uint32(b[8:])),
		LocalPort:  Port(le.Uint32(b[12:])),
		Voucher:    Port(le.Uint32(b[16:])),
		ID:         int32(le.Uint32(b[20:])),
	}
	if h.Size < headerSize || int(h.Size) > len(b) {
		return nil, MigTypeError
	}
	b = b[:h.Size]

	r := &Raw{Header: h}
	off := headerSize
	if h.IsComplex() {
		if len(b) < off+bodySize {
			return nil, MigTypeError
		}
		count := int(le.Uint32(b[off:]))
		off += bodySize
		if count > (len(b)-off)/oolSize {
			return nil, MigTypeError
		}
		for i := 0; i < count; i++ {
			d := OOLDescriptor{
				Address:    le.Uint64(b[off:]),
				Deallocate: b[off+8] != 0,
				Copy:       b[off+9],
				Type:       b[off+11],
				Size:       le.Uint32(b[off+12:]),
			}
			if d.Type != descriptorOOL {
				return nil, MigTypeError
			}
			r.Descriptors = append(r.Descriptors, d)
			off += oolSize
		}
	}
	r.Body = append([]byte{}, b[off:]...)

	return r, nil
}
