// Copyright 2026 The Haven Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

type keyasintRecord struct {
	Name    string   `cbor:"1,keyasint"`
	Version uint64   `cbor:"2,keyasint"`
	Members []string `cbor:"3,keyasint,omitempty"`
}

func TestMarshal_Deterministic(t *testing.T) {
	// Maps with identical content must encode to identical bytes
	// regardless of insertion order. Access container entries rely on
	// this for the no-op re-authorization check.
	first := map[string]int{"read": 1, "insert": 2, "update": 3}
	second := map[string]int{"update": 3, "read": 1, "insert": 2}

	firstBytes, err := Marshal(first)
	if err != nil {
		t.Fatalf("Marshal(first) failed: %v", err)
	}
	secondBytes, err := Marshal(second)
	if err != nil {
		t.Fatalf("Marshal(second) failed: %v", err)
	}

	if !bytes.Equal(firstBytes, secondBytes) {
		t.Errorf("deterministic encoding violated:\n first: %x\nsecond: %x", firstBytes, secondBytes)
	}
}

func TestMarshal_KeyasintRoundTrip(t *testing.T) {
	record := keyasintRecord{
		Name:    "docs",
		Version: 7,
		Members: []string{"app-a", "app-b"},
	}

	data, err := Marshal(record)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded keyasintRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Name != record.Name || decoded.Version != record.Version {
		t.Errorf("round trip mismatch: got %+v, want %+v", decoded, record)
	}
	if len(decoded.Members) != 2 || decoded.Members[0] != "app-a" {
		t.Errorf("members mismatch: got %v", decoded.Members)
	}
}

func TestUnmarshal_UnknownFieldsIgnored(t *testing.T) {
	// A future record version may add fields; old readers must not
	// reject it.
	type extended struct {
		Name    string `cbor:"1,keyasint"`
		Version uint64 `cbor:"2,keyasint"`
		Extra   string `cbor:"9,keyasint"`
	}

	data, err := Marshal(extended{Name: "docs", Version: 1, Extra: "future"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded keyasintRecord
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal of extended record failed: %v", err)
	}
	if decoded.Name != "docs" || decoded.Version != 1 {
		t.Errorf("got %+v, want Name=docs Version=1", decoded)
	}
}

func TestUnmarshal_AnyTargetUsesStringMap(t *testing.T) {
	data, err := Marshal(map[string]any{"stage": "in_progress"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	asMap, ok := decoded.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", decoded)
	}
	if asMap["stage"] != "in_progress" {
		t.Errorf("got %v, want in_progress", asMap["stage"])
	}
}

func TestEncoder_Stream(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)

	for _, record := range []keyasintRecord{{Name: "a", Version: 1}, {Name: "b", Version: 2}} {
		if err := encoder.Encode(record); err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
	}

	decoder := NewDecoder(&buffer)
	var first, second keyasintRecord
	if err := decoder.Decode(&first); err != nil {
		t.Fatalf("Decode first failed: %v", err)
	}
	if err := decoder.Decode(&second); err != nil {
		t.Fatalf("Decode second failed: %v", err)
	}
	if first.Name != "a" || second.Name != "b" {
		t.Errorf("stream order mismatch: got %q, %q", first.Name, second.Name)
	}
}
