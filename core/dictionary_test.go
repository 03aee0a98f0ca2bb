package core

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type decodedDictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations"`
}

func TestDictionary(t *testing.T) {
	registry := NewCommandRegistry()
	dict := NewDictionary(registry)

	dict.AddConstant("TEST_CONST", uint32(42))
	dict.AddConstant("TEST_STR", "hello \"quoted\"")
	dict.AddEnumeration("distance_unit", []string{"cm", "", "microseconds"})

	registry.Register("identify_response", "offset=%u data=%*s", nil)
	registry.Register("identify", "offset=%u count=%c", func(data *[]byte) error { return nil })

	var got decodedDictionary
	if err := json.Unmarshal(dict.Generate(), &got); err != nil {
		t.Fatalf("Dictionary is not valid JSON: %v\n%s", err, dict.Generate())
	}

	want := decodedDictionary{
		Version:       Version,
		BuildVersions: "go-tinygo",
		Config:        map[string]string{"TEST_CONST": "42", "TEST_STR": "hello \"quoted\""},
		Commands:      map[string]int{"identify offset=%u count=%c": 1},
		Responses:     map[string]int{"identify_response offset=%u data=%*s": 0},
		Enumerations:  map[string]map[string]int{"distance_unit": {"cm": 0, "microseconds": 2}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Dictionary mismatch (-want +got):\n%s", diff)
	}
}

func TestDictionaryCache(t *testing.T) {
	registry := NewCommandRegistry()
	dict := NewDictionary(registry)
	registry.Register("get_uptime", "", func(data *[]byte) error { return nil })

	dict.BuildDictionary()
	before := dict.Generate()

	// Commands registered after the build are not visible until rebuilt
	registry.Register("get_config", "", func(data *[]byte) error { return nil })
	if !bytes.Equal(before, dict.Generate()) {
		t.Error("Cached dictionary changed without a rebuild")
	}

	dict.SetBuildVersions("tinygo-0.39")
	if bytes.Equal(before, dict.Generate()) {
		t.Error("SetBuildVersions should invalidate the cache")
	}
	if !bytes.Contains(dict.Generate(), []byte("get_config")) {
		t.Error("Rebuilt dictionary should list get_config")
	}
}

func TestDictionaryGetChunk(t *testing.T) {
	registry := NewCommandRegistry()
	dict := NewDictionary(registry)
	dict.AddConstant("NAME", "ada")
	dict.BuildDictionary()

	full := dict.Generate()

	// Reassemble the way the host does: 40-byte chunks until empty
	var assembled []byte
	for offset := uint32(0); ; {
		chunk := dict.GetChunk(offset, 40)
		if len(chunk) == 0 {
			break
		}
		assembled = append(assembled, chunk...)
		offset += uint32(len(chunk))
	}
	if !bytes.Equal(full, assembled) {
		t.Errorf("Chunked dictionary differs from the full one")
	}

	if chunk := dict.GetChunk(uint32(len(full))+10, 40); len(chunk) != 0 {
		t.Errorf("Chunk past the end should be empty, got %d bytes", len(chunk))
	}

	// Chunks are copies
	chunk := dict.GetChunk(0, 4)
	chunk[0] = 'X'
	if dict.Generate()[0] == 'X' {
		t.Error("GetChunk should not alias the cached dictionary")
	}
}
