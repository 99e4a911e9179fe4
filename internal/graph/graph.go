// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package graph builds depends-on graphs over sphere instances and computes
// deterministic execution plans from them.
package graph

import (
	"github.com/aibor/sphinit/internal/service"
)

// Edge is a single depends-on relation, directed from dependent to
// dependency.
type Edge struct {
	From string
	To   string
}

// Graph is a directed depends-on graph over instance names. Node order is
// the declaration order of the instances the graph was built from; it is the
// tie-break order for scheduling.
//
// A Graph is immutable once built and safe for concurrent reads.
type Graph struct {
	nodes    []string
	index    map[string]int
	edges    []Edge
	deps     map[string][]string
	requires map[string][]string
}

// Build constructs the graph for the given instance set.
//
// Every dependency name must name an instance in the set. A violation
// returns an [UnresolvedError] naming the missing reference and its
// referrer; no partial graph is returned. The edge set exactly mirrors the
// declared dependencies.
func Build(instances []*service.Instance) (*Graph, error) {
	g := &Graph{
		nodes:    make([]string, 0, len(instances)),
		index:    make(map[string]int, len(instances)),
		deps:     make(map[string][]string, len(instances)),
		requires: make(map[string][]string, len(instances)),
	}

	for _, inst := range instances {
		g.index[inst.Name] = len(g.nodes)
		g.nodes = append(g.nodes, inst.Name)
	}

	for _, inst := range instances {
		for _, dep := range inst.Depends {
			if _, ok := g.index[dep]; !ok {
				return nil, &UnresolvedError{
					Referrer: inst.Name,
					Missing:  dep,
				}
			}

			g.edges = append(g.edges, Edge{From: inst.Name, To: dep})
			g.deps[inst.Name] = append(g.deps[inst.Name], dep)
			g.requires[dep] = append(g.requires[dep], inst.Name)
		}
	}

	return g, nil
}

// Nodes returns the node names in declaration order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// Edges returns the depends-on edges in declaration order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Dependencies returns the direct dependencies of the given node.
func (g *Graph) Dependencies(name string) []string {
	return append([]string(nil), g.deps[name]...)
}

// Dependents returns the nodes that directly depend on the given node.
func (g *Graph) Dependents(name string) []string {
	return append([]string(nil), g.requires[name]...)
}
