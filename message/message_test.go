package message

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestSerialization(t *testing.T) {
	c, err := New(CmdRegister, &Registration{Code: "foo", Secret: "bar"})
	if err != nil {
		t.Fatalf("Failed to create command: %v", err)
	}
	serialized, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Failed to marshal command: %v", err)
	}
	expected := `{"command":"register","id":null,"data":{"code":"foo","secret":"bar"}}`
	if string(serialized) != expected {
		t.Fatalf("Expected %q but got %q.", expected, serialized)
	}

	// Commands without data.
	c, err = New(CmdPing, nil)
	if err != nil {
		t.Fatalf("Failed to create command: %v", err)
	}
	serialized, err = json.Marshal(c)
	if err != nil {
		t.Fatalf("Failed to marshal command: %v", err)
	}
	expected = `{"command":"ping","id":null,"data":null}`
	if string(serialized) != expected {
		t.Fatalf("Expected %q but got %q.", expected, serialized)
	}

	// An empty registration is an empty object rather than null.
	c, err = New(CmdRegister, Empty{})
	if err != nil {
		t.Fatalf("Failed to create command: %v", err)
	}
	serialized, _ = json.Marshal(c)
	expected = `{"command":"register","id":null,"data":{}}`
	if string(serialized) != expected {
		t.Fatalf("Expected %q but got %q.", expected, serialized)
	}
}

func TestRespond(t *testing.T) {
	var c Command
	raw := `{"command":"get-version-info","id":42,"data":null}`
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("Failed to unmarshal command: %v", err)
	}
	if c.Command != CmdGetVersionInfo || c.ID == nil || *c.ID != 42 {
		t.Fatalf("Unexpected command %s.", &c)
	}

	resp, err := c.Respond(&VersionInfo{Versions{
		HardwareVersion: "iPhone9,3",
		SoftwareName:    SoftwareName,
		SoftwareVersion: "15.7",
		SoftwareBuildID: "19H12",
		UniqueDeviceID:  "00008030",
		SerialNumber:    "F2LX",
	}})
	if err != nil {
		t.Fatalf("Failed to respond: %v", err)
	}
	serialized, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("Failed to marshal response: %v", err)
	}
	expected := `{"command":"response","id":42,"data":{"versions":{` +
		`"hardware_version":"iPhone9,3","software_name":"iPhone OS",` +
		`"software_version":"15.7","software_build_id":"19H12",` +
		`"unique_device_id":"00008030","serial_number":"F2LX"}}}`
	if string(serialized) != expected {
		t.Fatalf("Expected %q but got %q.", expected, serialized)
	}

	// Commands without ID can't be responded to.
	c.ID = nil
	if _, err := c.Respond(Empty{}); err != errNoID {
		t.Fatalf("Expected error %v but got %v.", errNoID, err)
	}
}

func TestDecode(t *testing.T) {
	var c Command
	raw := `{"command":"response","id":null,"data":{"code":"abc","secret":"def"}}`
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		t.Fatalf("Failed to unmarshal command: %v", err)
	}
	var reg Registration
	if err := c.Decode(&reg); err != nil {
		t.Fatalf("Failed to decode registration: %v", err)
	}
	if !reg.Valid() || reg.Code != "abc" || reg.Secret != "def" {
		t.Fatalf("Unexpected registration %+v.", reg)
	}

	c.Data = json.RawMessage("null")
	if err := c.Decode(&reg); err != errNoData {
		t.Fatalf("Expected error %v but got %v.", errNoData, err)
	}
	if (&Registration{Code: "abc"}).Valid() {
		t.Fatal("Registration without secret must not be valid.")
	}
}

func TestValidationData(t *testing.T) {
	orig := []byte{0x00, 0x01, 0xfe, 0xff}
	v := NewValidationData(orig)
	if v.Data != "AAH+/w==" {
		t.Fatalf("Expected standard Base64 encoding but got %q.", v.Data)
	}
	decoded, err := v.Bytes()
	if err != nil {
		t.Fatalf("Failed to decode validation data: %v", err)
	}
	if !bytes.Equal(decoded, orig) {
		t.Fatalf("Expected %v but got %v.", orig, decoded)
	}
}
