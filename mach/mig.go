package mach

// MIG conventions: every routine's inline data starts with an NDR record, the
// reply's identifier is the request's plus 100, and a reply without
// descriptors carries a status code (RetCode) right after the NDR record.

const (
	ndrSize = 8
	// replyIDOffset is what MIG adds to a routine's ID to form the reply ID.
	replyIDOffset = 100
	// notifySendOnce is the ID of the notification that the kernel sends when
	// a send-once right dies, i.e., the server went away without replying.
	notifySendOnce = 71
)

// NDR is the network data representation record that MIG prepends to all
// inline arguments: little-endian integers, ASCII characters and IEEE floats.
var NDR = [ndrSize]byte{0, 0, 0, 0, 1, 0, 0, 0}

// Encoder builds the inline part of a MIG request.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an encoder whose buffer already holds the NDR record.
func NewEncoder() *Encoder {
	return &Encoder{buf: append([]byte{}, NDR[:]...)}
}

// Uint32 appends a 32-bit argument.
func (e *Encoder) Uint32(v uint32) *Encoder {
	e.buf = le.AppendUint32(e.buf, v)
	return e
}

// Uint64 appends a 64-bit argument.  MIG packs to four bytes, so no padding
// is inserted.
func (e *Encoder) Uint64(v uint64) *Encoder {
	e.buf = le.AppendUint64(e.buf, v)
	return e
}

// Bytes returns the encoded inline data.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Decoder reads the inline part of a MIG reply.  The first error sticks and
// is reported by Finish.
type Decoder struct {
	b   []byte
	off int
	err error
}

// NewDecoder returns a decoder positioned after the NDR record.
func NewDecoder(body []byte) *Decoder {
	d := &Decoder{b: body, off: ndrSize}
	if len(body) < ndrSize {
		d.err = MigTypeError
	}
	return d
}

func (d *Decoder) next(n int) []byte {
	if d.err != nil {
		return nil
	}
	if len(d.b)-d.off < n {
		d.err = MigTypeError
		return nil
	}
	b := d.b[d.off : d.off+n]
	d.off += n
	return b
}

// Uint32 reads a 32-bit value.
func (d *Decoder) Uint32() uint32 {
	if b := d.next(4); b != nil {
		return le.Uint32(b)
	}
	return 0
}

// Uint64 reads a 64-bit value.
func (d *Decoder) Uint64() uint64 {
	if b := d.next(8); b != nil {
		return le.Uint64(b)
	}
	return 0
}

// Finish returns MigTypeError if any read failed or if unread bytes remain.
func (d *Decoder) Finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.b) {
		return MigTypeError
	}
	return nil
}

// CheckReply validates a reply against its request the way MIG user stubs
// do.  descriptors is the number of out-of-line buffers a successful reply
// carries.  For routines without out-of-line output, the returned error is
// the server's RetCode (nil on success).
func CheckReply(req, reply *Message, descriptors int) error {
	if reply.ID == notifySendOnce {
		return MigServerDied
	}
	if reply.ID != req.ID+replyIDOffset {
		return MigReplyMismatch
	}

	if !reply.Complex {
		// A simple reply is either the routine's only reply format or an
		// error reply (mig_reply_error_t).
		if len(reply.Body) != ndrSize+4 {
			return MigTypeError
		}
		d := NewDecoder(reply.Body)
		ret := KernReturn(int32(d.Uint32()))
		if ret != KernSuccess {
			return ret
		}
		if descriptors > 0 {
			return MigTypeError
		}
		return nil
	}

	if len(reply.Descriptors) != descriptors {
		return MigTypeError
	}
	return nil
}
