package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/saferoute/saferoute/internal/spatial"
)

// Network is the raw walk network for an extent, before safety weighting.
type Network struct {
	Nodes []NetworkNode
	Links []NetworkLink
}

// NetworkNode is a raw junction.
type NetworkNode struct {
	ID    NodeID
	Coord spatial.Coordinate
}

// NetworkLink is a raw walkable segment. Length is in meters; zero means
// unknown and the planar endpoint distance is used instead.
type NetworkLink struct {
	Source NodeID
	Target NodeID
	Length float64
}

// Coordinates returns every node coordinate, for computing the extent.
func (n *Network) Coordinates() []spatial.Coordinate {
	out := make([]spatial.Coordinate, len(n.Nodes))
	for i, node := range n.Nodes {
		out[i] = node.Coord
	}
	return out
}

// nodeLinkDocument is the osmnx / networkx node-link JSON layout.
// Some exports wrap it in a top-level "graph" object.
type nodeLinkDocument struct {
	Nodes []nodeLinkNode `json:"nodes"`
	Links []nodeLinkEdge `json:"links"`
	Edges []nodeLinkEdge `json:"edges"`
	Graph *struct {
		Nodes []nodeLinkNode `json:"nodes"`
		Links []nodeLinkEdge `json:"links"`
	} `json:"graph"`
}

type nodeLinkNode struct {
	ID  json.RawMessage `json:"id"`
	X   *float64        `json:"x"`
	Y   *float64        `json:"y"`
	Lat *float64        `json:"lat"`
	Lon *float64        `json:"lon"`
}

type nodeLinkEdge struct {
	Source json.RawMessage `json:"source"`
	Target json.RawMessage `json:"target"`
	Length float64         `json:"length"`
}

// LoadNetworkFile reads a node-link JSON export from disk.
func LoadNetworkFile(path string) (*Network, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening network file: %w", err)
	}
	defer f.Close()
	return LoadNetworkJSON(f)
}

// LoadNetworkJSON decodes a node-link JSON document. Node IDs may be numbers
// or numeric strings; node positions come from x/y (lon/lat) or lat/lon.
func LoadNetworkJSON(r io.Reader) (*Network, error) {
	var doc nodeLinkDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding network: %w", err)
	}

	nodes, links := doc.Nodes, doc.Links
	if len(links) == 0 {
		links = doc.Edges
	}
	if len(nodes) == 0 && doc.Graph != nil {
		nodes, links = doc.Graph.Nodes, doc.Graph.Links
	}

	net := &Network{
		Nodes: make([]NetworkNode, 0, len(nodes)),
		Links: make([]NetworkLink, 0, len(links)),
	}
	for i, n := range nodes {
		id, err := parseNodeID(n.ID)
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		coord, err := n.coordinate()
		if err != nil {
			return nil, fmt.Errorf("node %d: %w", id, err)
		}
		net.Nodes = append(net.Nodes, NetworkNode{ID: id, Coord: coord})
	}
	for i, l := range links {
		src, err := parseNodeID(l.Source)
		if err != nil {
			return nil, fmt.Errorf("link %d source: %w", i, err)
		}
		dst, err := parseNodeID(l.Target)
		if err != nil {
			return nil, fmt.Errorf("link %d target: %w", i, err)
		}
		net.Links = append(net.Links, NetworkLink{Source: src, Target: dst, Length: l.Length})
	}
	return net, nil
}

func (n nodeLinkNode) coordinate() (spatial.Coordinate, error) {
	var c spatial.Coordinate
	switch {
	case n.X != nil && n.Y != nil:
		c = spatial.Coordinate{Lat: *n.Y, Lon: *n.X}
	case n.Lat != nil && n.Lon != nil:
		c = spatial.Coordinate{Lat: *n.Lat, Lon: *n.Lon}
	default:
		return c, fmt.Errorf("missing position")
	}
	return c, c.Validate()
}

func parseNodeID(raw json.RawMessage) (NodeID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, fmt.Errorf("missing id")
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("non-numeric id %q", s)
	}
	return NodeID(id), nil
}
