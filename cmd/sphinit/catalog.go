// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"

	"github.com/aibor/sphinit/internal/service"
	"github.com/aibor/sphinit/internal/supervisor"
)

// The validated descriptor catalog the supervisor boots with. A
// config-loading collaborator provides these on a full system; the boot
// image ships this compiled-in set.

func defaultDefinitions() service.Definitions {
	return service.Definitions{
		{
			Name:    "udevd",
			Command: "/bin/udevd",
		},
		{
			Name:    "getty",
			Command: "/bin/getty ${baud} ${tty}",
			Arguments: []service.ArgumentSpec{
				{Name: "tty", Required: true},
				{Name: "baud", Default: "115200"},
			},
			Depends: []string{"udevd"},
		},
		{
			Name:    "shell",
			Command: "/bin/sh",
			Depends: []string{"udevd"},
		},
	}
}

func defaultSpheres() []service.Sphere {
	return []service.Sphere{
		{
			Name: bootSphereName,
			Instances: []service.InstanceSpec{
				{Definition: "udevd"},
				{
					Definition: "getty",
					Args:       map[string]string{"tty": "/dev/console"},
				},
			},
		},
		{
			Name: "rescue",
			Instances: []service.InstanceSpec{
				{Definition: "udevd"},
				{Definition: "shell"},
			},
		},
	}
}

// loadSpheres resolves and plans all spheres of the catalog. Any descriptor
// problem aborts boot here, before a single process is spawned.
func loadSpheres() ([]*supervisor.LoadedSphere, error) {
	defs := defaultDefinitions()

	spheres := defaultSpheres()
	loaded := make([]*supervisor.LoadedSphere, 0, len(spheres))

	for _, sphere := range spheres {
		loadedSphere, err := supervisor.LoadSphere(defs, sphere)
		if err != nil {
			return nil, fmt.Errorf("load sphere %s: %w", sphere.Name, err)
		}

		loaded = append(loaded, loadedSphere)
	}

	return loaded, nil
}
