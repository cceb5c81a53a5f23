package bridge

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestBytes_WireForm(t *testing.T) {
	data, err := json.Marshal(Bytes{0x80, 0x04, 0x95, 0x00, 0xff})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"$bytes":"gASVAP8="}` {
		t.Errorf("Marshal() = %s, want {\"$bytes\":\"gASVAP8=\"}", data)
	}

	var back Bytes
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !bytes.Equal(back, []byte{0x80, 0x04, 0x95, 0x00, 0xff}) {
		t.Errorf("Unmarshal() = %v, want original bytes", back)
	}
}

func TestBytes_UnmarshalRejectsOtherShapes(t *testing.T) {
	inputs := []string{
		`"gASV"`,
		`{"bytes":"gASV"}`,
		`{"$bytes":"gASV","extra":"x"}`,
		`{"$bytes":"not base64!"}`,
		`[1,2,3]`,
	}
	for _, in := range inputs {
		var b Bytes
		if err := json.Unmarshal([]byte(in), &b); err == nil {
			t.Errorf("Unmarshal(%s) expected error, got %v", in, b)
		}
	}
}

func TestRequest_OmitsUnusedFields(t *testing.T) {
	data, err := json.Marshal(&request{ID: 7, Op: opPing})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"id":7,"op":"ping"}` {
		t.Errorf("Marshal() = %s", data)
	}
}

func TestCallError_Error(t *testing.T) {
	err := &CallError{Func: "get_device", Type: "ValueError", Message: "Device type 'Yeeli' not found"}
	want := "get_device: ValueError: Device type 'Yeeli' not found"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	bare := &CallError{Func: "call_method", Message: "boom"}
	if bare.Error() != "call_method: boom" {
		t.Errorf("Error() = %q, want %q", bare.Error(), "call_method: boom")
	}
}
