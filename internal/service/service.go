// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package service defines the validated service and sphere descriptors the
// supervisor consumes, and resolves them into runnable instances.
//
// Descriptors are produced by a config-loading collaborator and are read-only
// afterwards. The package re-validates what it depends on itself: argument
// bindings during command resolution and instance uniqueness within a sphere.
// Dependency resolvability is checked by the graph builder.
package service

import (
	"strings"
)

// ArgumentSpec describes one named argument of a service command.
type ArgumentSpec struct {
	// Name is the placeholder name used in the command as ${Name}.
	Name string

	// Required marks arguments that must have a binding or a default when an
	// instance is resolved.
	Required bool

	// Default is used when an instance provides no binding. A required
	// argument with a default never fails resolution.
	Default string
}

// Definition is the immutable template for a runnable service.
type Definition struct {
	// Name identifies the definition. Unique within its namespace; basic
	// syntactic validity is guaranteed by the config collaborator.
	Name string

	// Command is the command line with ${NAME} placeholders. Split on
	// whitespace before substitution, so argument values never introduce
	// additional argv elements.
	Command string

	// Arguments lists the accepted placeholders in declaration order.
	Arguments []ArgumentSpec

	// Depends names other definitions this service depends on, in
	// declaration order. Resolved within the same sphere.
	Depends []string
}

// Definitions is an ordered set of service definitions.
type Definitions []Definition

// Find returns the definition with the given name.
func (d Definitions) Find(name string) (Definition, bool) {
	for _, def := range d {
		if def.Name == name {
			return def, true
		}
	}

	return Definition{}, false
}

// InstanceSpec binds a definition name to concrete argument values.
type InstanceSpec struct {
	Definition string
	Args       map[string]string
}

// Sphere is a named group of service instances started and stopped as a
// unit. Instance order is the declaration order used for deterministic
// scheduling tie-breaks.
type Sphere struct {
	Name      string
	Instances []InstanceSpec
}

// Instance is a service definition bound to concrete argument values within
// a sphere. All placeholders are substituted; the instance is ready to spawn.
type Instance struct {
	// Name is the instance identifier, unique within the sphere. It equals
	// the definition name.
	Name string

	// Sphere is the name of the owning sphere.
	Sphere string

	// Argv is the fully substituted command line.
	Argv []string

	// Depends names other instances in the same sphere, in declaration
	// order.
	Depends []string
}

// ResolveCommand substitutes the definition's argument placeholders with the
// given bindings and returns the resulting argv.
//
// A required argument without binding and without default fails with
// [ArgumentError]. Unbound optional arguments without default are left
// untouched in the command line.
func (d Definition) ResolveCommand(args map[string]string) ([]string, error) {
	values := make(map[string]string, len(d.Arguments))

	for _, spec := range d.Arguments {
		if value, ok := args[spec.Name]; ok {
			values[spec.Name] = value
			continue
		}

		if spec.Default != "" {
			values[spec.Name] = spec.Default
			continue
		}

		if spec.Required {
			return nil, &ArgumentError{
				Definition: d.Name,
				Argument:   spec.Name,
			}
		}
	}

	fields := strings.Fields(d.Command)
	if len(fields) == 0 {
		return nil, &ResolveError{Definition: d.Name, Err: ErrEmptyCommand}
	}

	argv := make([]string, len(fields))
	for idx, field := range fields {
		for name, value := range values {
			field = strings.ReplaceAll(field, "${"+name+"}", value)
		}

		argv[idx] = field
	}

	return argv, nil
}

// ResolveSphere resolves all instance specs of the given sphere against the
// given definitions.
//
// It is all-or-nothing: any unknown definition, duplicate instance or
// argument resolution failure returns an error and no instances. Instance
// order follows the sphere's declaration order.
func ResolveSphere(defs Definitions, sphere Sphere) ([]*Instance, error) {
	instances := make([]*Instance, 0, len(sphere.Instances))
	seen := make(map[string]bool, len(sphere.Instances))

	for _, spec := range sphere.Instances {
		def, ok := defs.Find(spec.Definition)
		if !ok {
			return nil, &ResolveError{
				Definition: spec.Definition,
				Err:        ErrUnknownDefinition,
			}
		}

		if seen[def.Name] {
			return nil, &ResolveError{
				Definition: def.Name,
				Err:        ErrDuplicateInstance,
			}
		}

		seen[def.Name] = true

		argv, err := def.ResolveCommand(spec.Args)
		if err != nil {
			return nil, err
		}

		instances = append(instances, &Instance{
			Name:    def.Name,
			Sphere:  sphere.Name,
			Argv:    argv,
			Depends: append([]string(nil), def.Depends...),
		})
	}

	return instances, nil
}
