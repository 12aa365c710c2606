package mach

import (
	"testing"
)

func errorReply(id int32, ret KernReturn) *Message {
	return &Message{ID: id, Body: NewEncoder().Uint32(uint32(ret)).Bytes()}
}

func TestEncoderDecoder(t *testing.T) {
	body := NewEncoder().Uint32(1).Uint64(0x0102030405060708).Uint32(3).Bytes()
	if len(body) != ndrSize+16 {
		t.Fatalf("Expected %d bytes but got %d.", ndrSize+16, len(body))
	}

	d := NewDecoder(body)
	a, b, c := d.Uint32(), d.Uint64(), d.Uint32()
	if err := d.Finish(); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if a != 1 || b != 0x0102030405060708 || c != 3 {
		t.Fatalf("Decoded unexpected values %d, %x, %d.", a, b, c)
	}

	// Reading past the end must stick.
	d = NewDecoder(body)
	d.Uint64()
	d.Uint64()
	d.Uint64()
	if err := d.Finish(); err != MigTypeError {
		t.Fatalf("Expected %v but got %v.", MigTypeError, err)
	}

	// Leftover bytes are an error too.
	d = NewDecoder(body)
	d.Uint32()
	if err := d.Finish(); err != MigTypeError {
		t.Fatalf("Expected %v but got %v.", MigTypeError, err)
	}

	if err := NewDecoder([]byte{1, 2}).Finish(); err != MigTypeError {
		t.Fatalf("Expected %v for body without NDR record but got %v.", MigTypeError, err)
	}
}

func TestCheckReply(t *testing.T) {
	req := &Message{ID: 1200}
	complexReply := &Message{ID: 1300, Complex: true, Descriptors: [][]byte{{1}}}

	tests := []struct {
		name        string
		reply       *Message
		descriptors int
		expected    error
	}{
		{"complex ok", complexReply, 1, nil},
		{"server died", &Message{ID: notifySendOnce}, 1, MigServerDied},
		{"wrong id", &Message{ID: 1301}, 1, MigReplyMismatch},
		{"error reply", errorReply(1300, KernFailure), 1, KernFailure},
		{"success without data", errorReply(1300, KernSuccess), 1, MigTypeError},
		{"simple ok", errorReply(1300, KernSuccess), 0, nil},
		{"simple failure", errorReply(1300, KernReturn(-1)), 0, KernReturn(-1)},
		{"bad simple size", &Message{ID: 1300, Body: NDR[:]}, 0, MigTypeError},
		{"descriptor count", complexReply, 2, MigTypeError},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := CheckReply(req, test.reply, test.descriptors)
			if err != test.expected {
				t.Fatalf("Expected %v but got %v.", test.expected, err)
			}
		})
	}
}
