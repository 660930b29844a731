// Copyright 2026 The queryd Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestMarshalIsDeterministic(t *testing.T) {
	value := map[string]any{"zeta": 1, "alpha": 2, "mid": []string{"a", "b"}}
	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Marshal(value)
		if err != nil {
			t.Fatalf("Marshal: %v", err)
		}
		if !bytes.Equal(first, again) {
			t.Fatalf("encoding differs between runs: %x vs %x", first, again)
		}
	}
}

func TestUntypedMapsUseStringKeys(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "status"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	asMap, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("decoded %T, want map[string]any", decoded)
	}
	if asMap["action"] != "status" {
		t.Fatalf("action = %v", asMap["action"])
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	data, err := Marshal(map[string]any{"action": "status", "extra": 42})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var header struct {
		Action string `cbor:"action"`
	}
	if err := Unmarshal(data, &header); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if header.Action != "status" {
		t.Fatalf("Action = %q", header.Action)
	}
}

func TestStreamRoundTrip(t *testing.T) {
	var buffer bytes.Buffer
	type item struct {
		Name string `cbor:"name"`
	}
	encoder := NewEncoder(&buffer)
	for _, name := range []string{"ping", "players"} {
		if err := encoder.Encode(item{Name: name}); err != nil {
			t.Fatalf("Encode: %v", err)
		}
	}
	decoder := NewDecoder(&buffer)
	for _, want := range []string{"ping", "players"} {
		var got item
		if err := decoder.Decode(&got); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if got.Name != want {
			t.Fatalf("Name = %q, want %q", got.Name, want)
		}
	}
}
