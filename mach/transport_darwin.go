//go:build darwin && cgo

package mach

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#include <mach/mach.h>
#include <mach/mig.h>
#include <servers/bootstrap.h>

static kern_return_t relay_look_up(const char *name, mach_port_t *port) {
	return bootstrap_look_up(bootstrap_port, name, port);
}

static mach_port_t relay_reply_port(void) {
	return mig_get_reply_port();
}

// relay_call sends the request in buf and receives the reply into the same
// buffer.  Reply port bookkeeping follows what MIG user stubs do.
static mach_msg_return_t relay_call(void *buf, mach_msg_size_t send_size,
		mach_msg_size_t rcv_size, mach_port_t reply_port) {
	mach_msg_return_t ret = mach_msg((mach_msg_header_t *)buf,
		MACH_SEND_MSG|MACH_RCV_MSG|MACH_MSG_OPTION_NONE,
		send_size, rcv_size, reply_port, MACH_MSG_TIMEOUT_NONE, MACH_PORT_NULL);
	switch (ret) {
	case MACH_MSG_SUCCESS:
		break;
	case MACH_SEND_INVALID_DATA:
	case MACH_SEND_INVALID_DEST:
	case MACH_SEND_INVALID_HEADER:
		mig_put_reply_port(reply_port);
		break;
	default:
		mig_dealloc_reply_port(reply_port);
	}
	return ret;
}

static uint64_t relay_copy_in(const void *src, size_t n) {
	void *p = malloc(n);
	if (p == NULL) {
		return 0;
	}
	memcpy(p, src, n);
	return (uint64_t)(uintptr_t)p;
}

static void relay_free(uint64_t addr) {
	free((void *)(uintptr_t)addr);
}

// relay_copy_out copies an out-of-line region that the kernel mapped into our
// task and hands the region back.
static void relay_copy_out(uint64_t addr, uint32_t size, void *dst) {
	memcpy(dst, (const void *)(uintptr_t)addr, size);
	vm_deallocate(mach_task_self(), (vm_address_t)addr, size);
}

static void relay_destroy(void *buf) {
	mach_msg_destroy((mach_msg_header_t *)buf);
}
*/
import "C"

import (
	"unsafe"
)

// rcvBufSize is large enough for every reply we expect plus the largest
// receive trailer.  Out-of-line data does not count towards it.
const rcvBufSize = 4096

type hostTransport struct{}

// NewHostTransport returns a Transport that talks to the host's bootstrap
// server and uses mach_msg for round trips.
func NewHostTransport() Transport {
	return &hostTransport{}
}

func (t *hostTransport) LookUp(name string) (Port, error) {
	cName := C.CString(name)
	defer C.free(unsafe.Pointer(cName))

	var port C.mach_port_t
	if ret := C.relay_look_up(cName, &port); ret != 0 {
		return PortNull, KernReturn(ret)
	}
	return Port(port), nil
}

func (t *hostTransport) Call(dest Port, req *Message) (*Message, error) {
	// Copy request payloads out of Go memory; the kernel reads them while we
	// are blocked in mach_msg.
	addrs := make([]uint64, len(req.Descriptors))
	defer func() {
		for _, addr := range addrs {
			if addr != 0 {
				C.relay_free(C.uint64_t(addr))
			}
		}
	}()
	for i, d := range req.Descriptors {
		if len(d) == 0 {
			continue
		}
		addr := uint64(C.relay_copy_in(unsafe.Pointer(&d[0]), C.size_t(len(d))))
		if addr == 0 {
			return nil, KernResourceShortage
		}
		addrs[i] = addr
	}

	replyPort := C.relay_reply_port()
	raw, err := Marshal(req, dest, Port(replyPort), addrs)
	if err != nil {
		return nil, err
	}
	if len(raw) > rcvBufSize {
		return nil, MigArrayTooLarge
	}

	buf := C.calloc(1, rcvBufSize)
	if buf == nil {
		return nil, KernResourceShortage
	}
	defer C.free(buf)
	C.memcpy(buf, unsafe.Pointer(&raw[0]), C.size_t(len(raw)))

	ret := C.relay_call(buf, C.mach_msg_size_t(len(raw)), C.mach_msg_size_t(rcvBufSize), replyPort)
	if ret != 0 {
		return nil, KernReturn(ret)
	}

	parsed, err := Unmarshal(C.GoBytes(buf, rcvBufSize))
	if err != nil {
		C.relay_destroy(buf)
		return nil, err
	}

	reply := &Message{
		ID:      parsed.Header.ID,
		Complex: parsed.Header.IsComplex(),
		Body:    parsed.Body,
	}
	for _, d := range parsed.Descriptors {
		payload := make([]byte, d.Size)
		if d.Size > 0 {
			C.relay_copy_out(C.uint64_t(d.Address), C.uint32_t(d.Size), unsafe.Pointer(&payload[0]))
		}
		reply.Descriptors = append(reply.Descriptors, payload)
	}

	return reply, nil
}
