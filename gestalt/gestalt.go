// Package gestalt looks up device properties (product version, build
// version, serial number, ...) in the host's dynamic answer registry.
package gestalt

import (
	"bytes"
	"errors"
)

// MaxAnswerLen is the size of the buffer that CopyAnswer copies answers into,
// including the terminating NUL byte.  Longer answers are truncated.
const MaxAnswerLen = 128

// Well-known property names.
const (
	ProductVersion = "ProductVersion"
	BuildVersion   = "BuildVersion"
	UniqueDeviceID = "UniqueDeviceID"
	SerialNumber   = "SerialNumber"
)

var (
	// ErrNoAnswer is returned if the registry has no string answer for a
	// property.
	ErrNoAnswer = errors.New("no answer for property")
	// ErrUnsupported is returned by the host answerer on platforms without
	// an answer registry.
	ErrUnsupported = errors.New("answer registry is not available on this platform")
)

// Answerer returns the raw answer for a property.
type Answerer interface {
	Answer(property string) (string, error)
}

// Static is an Answerer backed by a map.
type Static map[string]string

// Answer implements the Answerer interface.
func (s Static) Answer(property string) (string, error) {
	v, exists := s[property]
	if !exists {
		return "", ErrNoAnswer
	}
	return v, nil
}

// CopyAnswerBuffer copies the answer for the given property into a freshly
// allocated, NUL-terminated buffer of MaxAnswerLen bytes.
func CopyAnswerBuffer(a Answerer, property string) ([]byte, error) {
	v, err := a.Answer(property)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, MaxAnswerLen)
	copy(buf[:MaxAnswerLen-1], v)
	return buf, nil
}

// CopyAnswer returns the answer for the given property the way
// CopyAnswerBuffer stores it, i.e., cut off after MaxAnswerLen-1 bytes.
func CopyAnswer(a Answerer, property string) (string, error) {
	buf, err := CopyAnswerBuffer(a, property)
	if err != nil {
		return "", err
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		buf = buf[:i]
	}
	return string(buf), nil
}
