package mach

import (
	"bytes"
	"errors"
	"testing"
)

func TestMarshalComplex(t *testing.T) {
	payload := []byte("certificate")
	m := &Message{
		ID:          1200,
		Descriptors: [][]byte{payload},
		Body:        NewEncoder().Uint32(0x50936603).Uint32(uint32(len(payload))).Bytes(),
	}
	raw, err := Marshal(m, 0x1103, 0x2207, []uint64{0xdeadbeef00})
	if err != nil {
		t.Fatalf("Failed to marshal message: %v", err)
	}

	// Header, descriptor count, one descriptor, NDR, magic, and count.
	if len(raw) != 60 {
		t.Fatalf("Expected message of 60 bytes but got %d.", len(raw))
	}
	if bits := le.Uint32(raw[0:]); bits != 0x80001513 {
		t.Fatalf("Expected header bits 0x80001513 but got 0x%x.", bits)
	}
	if size := le.Uint32(raw[4:]); size != 60 {
		t.Fatalf("Expected header size 60 but got %d.", size)
	}
	if remote := le.Uint32(raw[8:]); remote != 0x1103 {
		t.Fatalf("Expected remote port 0x1103 but got 0x%x.", remote)
	}
	if local := le.Uint32(raw[12:]); local != 0x2207 {
		t.Fatalf("Expected local port 0x2207 but got 0x%x.", local)
	}
	if id := le.Uint32(raw[20:]); id != 1200 {
		t.Fatalf("Expected message ID 1200 but got %d.", id)
	}
	if count := le.Uint32(raw[24:]); count != 1 {
		t.Fatalf("Expected one descriptor but got %d.", count)
	}
	if addr := le.Uint64(raw[28:]); addr != 0xdeadbeef00 {
		t.Fatalf("Expected descriptor address 0xdeadbeef00 but got 0x%x.", addr)
	}
	if !bytes.Equal(raw[36:40], []byte{0, copyVirtual, 0, descriptorOOL}) {
		t.Fatalf("Unexpected descriptor flags %v.", raw[36:40])
	}
	if size := le.Uint32(raw[40:]); size != uint32(len(payload)) {
		t.Fatalf("Expected descriptor size %d but got %d.", len(payload), size)
	}
	if !bytes.Equal(raw[44:52], NDR[:]) {
		t.Fatalf("Expected NDR record but got %v.", raw[44:52])
	}
	if magic := le.Uint32(raw[52:]); magic != 0x50936603 {
		t.Fatalf("Expected magic 0x50936603 but got 0x%x.", magic)
	}
}

func TestMarshalSimple(t *testing.T) {
	m := &Message{ID: 42, Body: NewEncoder().Uint32(7).Bytes()}
	raw, err := Marshal(m, 1, 2, nil)
	if err != nil {
		t.Fatalf("Failed to marshal message: %v", err)
	}
	if len(raw) != headerSize+ndrSize+4 {
		t.Fatalf("Expected %d bytes but got %d.", headerSize+ndrSize+4, len(raw))
	}
	if bits := le.Uint32(raw[0:]); bits&bitsComplex != 0 {
		t.Fatal("Simple message must not have the complex bit set.")
	}
}

func TestMarshalAddrMismatch(t *testing.T) {
	m := &Message{ID: 1, Descriptors: [][]byte{{1}, {2}}}
	if _, err := Marshal(m, 1, 2, []uint64{1}); !errors.Is(err, errAddrCount) {
		t.Fatalf("Expected error %v but got %v.", errAddrCount, err)
	}
}

func TestUnmarshalRoundTrip(t *testing.T) {
	m := &Message{
		ID:          1302,
		Descriptors: [][]byte{[]byte("signature")},
		Body:        NewEncoder().Uint32(9).Bytes(),
	}
	raw, err := Marshal(m, 5, 6, []uint64{0x1000})
	if err != nil {
		t.Fatalf("Failed to marshal message: %v", err)
	}
	// Append a fake receive trailer, which must be ignored.
	raw = append(raw, make([]byte, 8)...)

	parsed, err := Unmarshal(raw)
	if err != nil {
		t.Fatalf("Failed to unmarshal message: %v", err)
	}
	if parsed.Header.ID != 1302 || !parsed.Header.IsComplex() {
		t.Fatalf("Unexpected header %+v.", parsed.Header)
	}
	if len(parsed.Descriptors) != 1 {
		t.Fatalf("Expected one descriptor but got %d.", len(parsed.Descriptors))
	}
	d := parsed.Descriptors[0]
	if d.Address != 0x1000 || d.Size != 9 || d.Type != descriptorOOL {
		t.Fatalf("Unexpected descriptor %+v.", d)
	}
	if !bytes.Equal(parsed.Body, m.Body) {
		t.Fatalf("Expected body %v but got %v.", m.Body, parsed.Body)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	good, err := Marshal(&Message{ID: 1, Descriptors: [][]byte{{1}}}, 1, 2, []uint64{1})
	if err != nil {
		t.Fatalf("Failed to marshal message: %v", err)
	}

	tooShort := good[:10]

	badSize := append([]byte{}, good...)
	le.PutUint32(badSize[4:], uint32(len(good)+4))

	tooManyDescs := append([]byte{}, good...)
	le.PutUint32(tooManyDescs[24:], 3)

	badType := append([]byte{}, good...)
	badType[39] = 2 // MACH_MSG_OOL_PORTS_DESCRIPTOR

	for name, raw := range map[string][]byte{
		"too short":        tooShort,
		"bad size":         badSize,
		"too many desc":    tooManyDescs,
		"wrong descriptor": badType,
	} {
		if _, err := Unmarshal(raw); err != MigTypeError {
			t.Errorf("%s: expected %v but got %v.", name, MigTypeError, err)
		}
	}
}

func TestKernReturnError(t *testing.T) {
	assertString := func(k KernReturn, expected string) {
		t.Helper()
		if k.Error() != expected {
			t.Fatalf("Expected %q but got %q.", expected, k.Error())
		}
	}
	assertString(BootstrapUnknownServ, "BOOTSTRAP_UNKNOWN_SERVICE (1102)")
	assertString(MigServerDied, "MIG_SERVER_DIED (-308)")
	assertString(KernReturn(0x1234), "kern_return 0x1234")

	if name := MigBadID.Name(); name != "MIG_BAD_ID" {
		t.Fatalf("Expected name MIG_BAD_ID but got %q.", name)
	}
	if name := KernReturn(0x1234).Name(); name != "UNKNOWN" {
		t.Fatalf("Expected name UNKNOWN but got %q.", name)
	}

	var kr KernReturn
	wrapped := errors.New("wrapper")
	if errors.As(wrapped, &kr) {
		t.Fatal("Unrelated error must not turn into a KernReturn.")
	}
}
