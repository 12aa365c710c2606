//go:build !ios || !cgo

package gestalt

type hostAnswerer struct{}

// Host returns an Answerer whose answers all fail with ErrUnsupported.
func Host() Answerer {
	return hostAnswerer{}
}

func (hostAnswerer) Answer(property string) (string, error) {
	return "", ErrUnsupported
}
