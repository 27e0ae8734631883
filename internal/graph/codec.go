package graph

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
)

// artifactVersion is bumped whenever the encoded layout changes.
const artifactVersion = 1

type artifact struct {
	Version int
	Graph   *Graph
}

// Encode writes g as a versioned gob artifact.
func Encode(w io.Writer, g *Graph) error {
	if err := gob.NewEncoder(w).Encode(artifact{Version: artifactVersion, Graph: g}); err != nil {
		return fmt.Errorf("encoding graph: %w", err)
	}
	return nil
}

// Decode reads a gob artifact and rebuilds the graph's lookup structures.
func Decode(r io.Reader) (*Graph, error) {
	var a artifact
	if err := gob.NewDecoder(r).Decode(&a); err != nil {
		return nil, fmt.Errorf("decoding graph: %w", err)
	}
	if a.Version != artifactVersion {
		return nil, fmt.Errorf("unsupported graph artifact version %d", a.Version)
	}
	if a.Graph == nil {
		return nil, ErrEmptyGraph
	}
	if err := a.Graph.init(); err != nil {
		return nil, fmt.Errorf("rebuilding graph: %w", err)
	}
	return a.Graph, nil
}

// MarshalBinary encodes g for byte-oriented stores.
func MarshalBinary(g *Graph) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes a graph produced by MarshalBinary.
func UnmarshalBinary(data []byte) (*Graph, error) {
	return Decode(bytes.NewReader(data))
}
