// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
)

// NodeLink is the D3-style node-link rendering of a graph.
type NodeLink struct {
	Directed   bool             `json:"directed"`
	Multigraph bool             `json:"multigraph"`
	Graph      map[string]any   `json:"graph"`
	Nodes      []map[string]any `json:"nodes"`
	Links      []map[string]any `json:"links"`
}

// ToNodeLink converts the graph to node-link form. Node payloads are
// flattened into the node objects alongside "id" and "node_type"; edge
// attributes sit alongside "source", "target", "key" and "edge_type".
// Parallel edges between the same pair get increasing keys.
func ToNodeLink(g *Graph) (*NodeLink, error) {
	out := &NodeLink{
		Directed:   true,
		Multigraph: true,
		Graph:      map[string]any{},
		Nodes:      make([]map[string]any, 0, g.NodeCount()),
		Links:      make([]map[string]any, 0, g.EdgeCount()),
	}

	for _, n := range g.Nodes() {
		flat, err := flattenAttrs(n.Attrs)
		if err != nil {
			return nil, fmt.Errorf("flatten node %s: %w", n.ID, err)
		}
		flat["id"] = n.ID
		flat["node_type"] = string(n.Type)
		out.Nodes = append(out.Nodes, flat)
	}

	keys := make(map[[2]string]int)
	for _, e := range g.Edges() {
		link := make(map[string]any, len(e.Attrs)+4)
		for k, v := range e.Attrs {
			link[k] = v
		}
		pair := [2]string{e.From, e.To}
		link["source"] = e.From
		link["target"] = e.To
		link["key"] = keys[pair]
		link["edge_type"] = string(e.Type)
		keys[pair]++
		out.Links = append(out.Links, link)
	}
	return out, nil
}

// MarshalJSON renders the graph as indented node-link JSON.
func MarshalJSON(g *Graph) ([]byte, error) {
	nl, err := ToNodeLink(g)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(nl, "", "  ")
}

// flattenAttrs converts a payload struct to a flat attribute map via its
// JSON encoding.
func flattenAttrs(attrs any) (map[string]any, error) {
	if attrs == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(attrs)
	if err != nil {
		return nil, err
	}
	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, err
	}
	return flat, nil
}

// GEXF rendering. Attribute values are coerced to strings: nil becomes "",
// booleans "true"/"false", and composite values their JSON encoding.

type gexfDoc struct {
	XMLName xml.Name  `xml:"gexf"`
	XMLNS   string    `xml:"xmlns,attr"`
	Version string    `xml:"version,attr"`
	Graph   gexfGraph `xml:"graph"`
}

type gexfGraph struct {
	Mode       string         `xml:"mode,attr"`
	EdgeType   string         `xml:"defaultedgetype,attr"`
	Attributes gexfAttributes `xml:"attributes"`
	Nodes      []gexfNode     `xml:"nodes>node"`
	Edges      []gexfEdge     `xml:"edges>edge"`
}

type gexfAttributes struct {
	Class string     `xml:"class,attr"`
	Attrs []gexfAttr `xml:"attribute"`
}

type gexfAttr struct {
	ID    string `xml:"id,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

type gexfNode struct {
	ID        string          `xml:"id,attr"`
	Label     string          `xml:"label,attr"`
	AttValues []gexfAttrValue `xml:"attvalues>attvalue"`
}

type gexfEdge struct {
	ID        string          `xml:"id,attr"`
	Source    string          `xml:"source,attr"`
	Target    string          `xml:"target,attr"`
	Label     string          `xml:"label,attr"`
	AttValues []gexfAttrValue `xml:"attvalues>attvalue"`
}

type gexfAttrValue struct {
	For   string `xml:"for,attr"`
	Value string `xml:"value,attr"`
}

// MarshalGEXF renders the graph as GEXF 1.2 for Gephi. Attribute IDs are
// assigned from the sorted union of node attribute keys, so output is
// stable across runs.
func MarshalGEXF(g *Graph) ([]byte, error) {
	keySet := make(map[string]bool)
	flats := make([]map[string]any, g.NodeCount())
	for i, n := range g.Nodes() {
		flat, err := flattenAttrs(n.Attrs)
		if err != nil {
			return nil, fmt.Errorf("flatten node %s: %w", n.ID, err)
		}
		flat["node_type"] = string(n.Type)
		flats[i] = flat
		for k := range flat {
			keySet[k] = true
		}
	}

	attrKeys := make([]string, 0, len(keySet))
	for k := range keySet {
		attrKeys = append(attrKeys, k)
	}
	sort.Strings(attrKeys)

	attrID := make(map[string]string, len(attrKeys))
	attrs := make([]gexfAttr, 0, len(attrKeys))
	for i, k := range attrKeys {
		id := strconv.Itoa(i)
		attrID[k] = id
		attrs = append(attrs, gexfAttr{ID: id, Title: k, Type: "string"})
	}

	doc := gexfDoc{
		XMLNS:   "http://www.gexf.net/1.2draft",
		Version: "1.2",
		Graph: gexfGraph{
			Mode:       "static",
			EdgeType:   "directed",
			Attributes: gexfAttributes{Class: "node", Attrs: attrs},
		},
	}

	for i, n := range g.Nodes() {
		node := gexfNode{ID: n.ID, Label: string(n.Type)}
		for _, k := range attrKeys {
			v, ok := flats[i][k]
			if !ok {
				continue
			}
			node.AttValues = append(node.AttValues, gexfAttrValue{For: attrID[k], Value: coerceString(v)})
		}
		doc.Graph.Nodes = append(doc.Graph.Nodes, node)
	}

	for i, e := range g.Edges() {
		edge := gexfEdge{
			ID:     strconv.Itoa(i),
			Source: e.From,
			Target: e.To,
			Label:  string(e.Type),
		}
		doc.Graph.Edges = append(doc.Graph.Edges, edge)
	}

	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// coerceString renders any attribute value as a GEXF-safe string.
func coerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}

// Summary is a structural digest of one graph.
type Summary struct {
	TotalNodes int            `json:"total_nodes"`
	TotalEdges int            `json:"total_edges"`
	NodeTypes  map[string]int `json:"node_types"`
	EdgeTypes  map[string]int `json:"edge_types"`
}

// Summarize counts nodes and edges by type.
func Summarize(g *Graph) Summary {
	s := Summary{
		TotalNodes: g.NodeCount(),
		TotalEdges: g.EdgeCount(),
		NodeTypes:  make(map[string]int),
		EdgeTypes:  make(map[string]int),
	}
	for _, n := range g.Nodes() {
		s.NodeTypes[string(n.Type)]++
	}
	for _, e := range g.Edges() {
		s.EdgeTypes[string(e.Type)]++
	}
	return s
}
