package mach

import "fmt"

// KernReturn is a status code as returned by the host's IPC subsystem, the
// bootstrap server, or MIG-generated code.  Codes are passed on unchanged;
// callers that need the numeric value can use errors.As.
type KernReturn int32

const (
	KernSuccess            KernReturn = 0
	KernInvalidAddress     KernReturn = 1
	KernProtectionFailure  KernReturn = 2
	KernNoSpace            KernReturn = 3
	KernInvalidArgument    KernReturn = 4
	KernFailure            KernReturn = 5
	KernResourceShortage   KernReturn = 6
	KernInvalidName        KernReturn = 15
	KernInvalidRight       KernReturn = 17
	KernInvalidCapability  KernReturn = 20
	BootstrapNotPrivileged KernReturn = 1100
	BootstrapUnknownServ   KernReturn = 1102
	BootstrapNoMemory      KernReturn = 1105

	SendInvalidData  KernReturn = 0x10000002
	SendInvalidDest  KernReturn = 0x10000003
	SendTimedOut     KernReturn = 0x10000004
	SendInterrupted  KernReturn = 0x10000007
	SendInvalidReply KernReturn = 0x10000009
	SendInvalidRight KernReturn = 0x1000000a
	RcvInvalidName   KernReturn = 0x10004002
	RcvTimedOut      KernReturn = 0x10004003
	RcvTooLarge      KernReturn = 0x10004004
	RcvInterrupted   KernReturn = 0x10004005
	RcvPortDied      KernReturn = 0x10004009

	MigTypeError     KernReturn = -300
	MigReplyMismatch KernReturn = -301
	MigRemoteError   KernReturn = -302
	MigBadID         KernReturn = -303
	MigBadArguments  KernReturn = -304
	MigNoReply       KernReturn = -305
	MigException     KernReturn = -306
	MigArrayTooLarge KernReturn = -307
	MigServerDied    KernReturn = -308
)

var kernReturnNames = map[KernReturn]string{
	KernSuccess:            "KERN_SUCCESS",
	KernInvalidAddress:     "KERN_INVALID_ADDRESS",
	KernProtectionFailure:  "KERN_PROTECTION_FAILURE",
	KernNoSpace:            "KERN_NO_SPACE",
	KernInvalidArgument:    "KERN_INVALID_ARGUMENT",
	KernFailure:            "KERN_FAILURE",
	KernResourceShortage:   "KERN_RESOURCE_SHORTAGE",
	KernInvalidName:        "KERN_INVALID_NAME",
	KernInvalidRight:       "KERN_INVALID_RIGHT",
	KernInvalidCapability:  "KERN_INVALID_CAPABILITY",
	BootstrapNotPrivileged: "BOOTSTRAP_NOT_PRIVILEGED",
	BootstrapUnknownServ:   "BOOTSTRAP_UNKNOWN_SERVICE",
	BootstrapNoMemory:      "BOOTSTRAP_NO_MEMORY",
	SendInvalidData:        "MACH_SEND_INVALID_DATA",
	SendInvalidDest:        "MACH_SEND_INVALID_DEST",
	SendTimedOut:           "MACH_SEND_TIMED_OUT",
	SendInterrupted:        "MACH_SEND_INTERRUPTED",
	SendInvalidReply:       "MACH_SEND_INVALID_REPLY",
	SendInvalidRight:       "MACH_SEND_INVALID_RIGHT",
	RcvInvalidName:         "MACH_RCV_INVALID_NAME",
	RcvTimedOut:            "MACH_RCV_TIMED_OUT",
	RcvTooLarge:            "MACH_RCV_TOO_LARGE",
	RcvInterrupted:         "MACH_RCV_INTERRUPTED",
	RcvPortDied:            "MACH_RCV_PORT_DIED",
	MigTypeError:           "MIG_TYPE_ERROR",
	MigReplyMismatch:       "MIG_REPLY_MISMATCH",
	MigRemoteError:         "MIG_REMOTE_ERROR",
	MigBadID:               "MIG_BAD_ID",
	MigBadArguments:        "MIG_BAD_ARGUMENTS",
	MigNoReply:             "MIG_NO_REPLY",
	MigException:           "MIG_EXCEPTION",
	MigArrayTooLarge:       "MIG_ARRAY_TOO_LARGE",
	MigServerDied:          "MIG_SERVER_DIED",
}

// Name returns the symbolic name of the status code, or "UNKNOWN" if we
// don't know the code.
func (k KernReturn) Name() string {
	if name, ok := kernReturnNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// Error implements the error interface.
func (k KernReturn) Error() string {
	if name, ok := kernReturnNames[k]; ok {
		return fmt.Sprintf("%s (%d)", name, int32(k))
	}
	return fmt.Sprintf("kern_return 0x%x", uint32(k))
}
