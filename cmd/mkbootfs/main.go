// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// mkbootfs writes a cpio boot archive to stdout: the given supervisor binary
// as /init and /sbin/sphinit, plus additional files under /bin.
package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aibor/sphinit/internal/bootfs"
)

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no supervisor binary given")
	}

	supervisorFile, err := absPath(args[0])
	if err != nil {
		return err
	}

	archive := bootfs.New()

	err = archive.AddFile("/init", bootfs.FileOpener(supervisorFile))
	if err != nil {
		return fmt.Errorf("add init: %w", err)
	}

	if err := archive.AddSymlink("/sbin/sphinit", "/init"); err != nil {
		return fmt.Errorf("add supervisor link: %w", err)
	}

	for _, file := range args[1:] {
		source, err := absPath(file)
		if err != nil {
			return err
		}

		dest := path.Join("/bin", filepath.Base(source))
		if err := archive.AddFile(dest, bootfs.FileOpener(source)); err != nil {
			return fmt.Errorf("add %s: %w", dest, err)
		}
	}

	if err := archive.WriteTo(os.Stdout); err != nil {
		return fmt.Errorf("create archive: %w", err)
	}

	return nil
}

func absPath(file string) (string, error) {
	path, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("lookup absolute path for %s: %w", file, err)
	}

	return path, nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
