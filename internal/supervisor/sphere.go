// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package supervisor

import (
	"github.com/aibor/sphinit/internal/graph"
	"github.com/aibor/sphinit/internal/service"
)

// LoadedSphere couples a sphere's resolved instances with its execution
// plan. It is the unit the supervisor starts and stops.
type LoadedSphere struct {
	Name      string
	Instances []*service.Instance
	Plan      *graph.Plan
}

// LoadSphere resolves the sphere against the definitions, builds its
// dependency graph and computes the execution plan.
//
// This is the all-or-nothing gate: argument resolution failures, unresolved
// dependencies and cycles abort here, before any process is spawned.
func LoadSphere(
	defs service.Definitions,
	sphere service.Sphere,
) (*LoadedSphere, error) {
	instances, err := service.ResolveSphere(defs, sphere)
	if err != nil {
		return nil, err
	}

	depGraph, err := graph.Build(instances)
	if err != nil {
		return nil, err
	}

	plan, err := depGraph.Plan()
	if err != nil {
		return nil, err
	}

	return &LoadedSphere{
		Name:      sphere.Name,
		Instances: instances,
		Plan:      plan,
	}, nil
}
