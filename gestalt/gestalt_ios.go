//go:build ios && cgo

package gestalt

/*
#cgo LDFLAGS: -framework CoreFoundation -lMobileGestalt
#include <stdlib.h>
#include <CoreFoundation/CoreFoundation.h>

extern CFTypeRef MGCopyAnswer(CFStringRef property);

// relay_copy_answer returns a malloc'd copy of the answer, or NULL if there
// is no string answer.
static char *relay_copy_answer(const char *name) {
	CFStringRef property = CFStringCreateWithCString(kCFAllocatorDefault, name, kCFStringEncodingUTF8);
	if (property == NULL) {
		return NULL;
	}
	CFTypeRef answer = MGCopyAnswer(property);
	CFRelease(property);
	if (answer == NULL) {
		return NULL;
	}
	if (CFGetTypeID(answer) != CFStringGetTypeID()) {
		CFRelease(answer);
		return NULL;
	}

	CFIndex size = CFStringGetMaximumSizeForEncoding(CFStringGetLength(answer), kCFStringEncodingUTF8) + 1;
	char *buf = calloc(1, size);
	if (buf != NULL && !CFStringGetCString(answer, buf, size, kCFStringEncodingUTF8)) {
		free(buf);
		buf = NULL;
	}
	CFRelease(answer);
	return buf;
}
*/
import "C"

import (
	"unsafe"
)

type hostAnswerer struct{}

// Host returns an Answerer backed by MobileGestalt.
func Host() Answerer {
	return hostAnswerer{}
}

func (hostAnswerer) Answer(property string) (string, error) {
	cProperty := C.CString(property)
	defer C.free(unsafe.Pointer(cProperty))

	answer := C.relay_copy_answer(cProperty)
	if answer == nil {
		return "", ErrNoAnswer
	}
	defer C.free(unsafe.Pointer(answer))
	return C.GoString(answer), nil
}
