//go:build !darwin || !cgo

package mach

type hostTransport struct{}

// NewHostTransport returns a Transport whose calls all fail with
// ErrUnsupported.
func NewHostTransport() Transport {
	return &hostTransport{}
}

func (t *hostTransport) LookUp(name string) (Port, error) {
	return PortNull, ErrUnsupported
}

func (t *hostTransport) Call(dest Port, req *Message) (*Message, error) {
	return nil, ErrUnsupported
}
