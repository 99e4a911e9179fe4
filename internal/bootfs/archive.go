// SPDX-FileCopyrightText: 2025 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package bootfs assembles the cpio archive a kernel boots the supervisor
// from: the supervisor binary as /init plus the service executables it
// spawns.
package bootfs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/cavaliergopher/cpio"
)

const dirLinks = 2

// OpenFunc provides the content of a regular archive entry at write time.
type OpenFunc func() (fs.File, error)

// FileOpener returns an [OpenFunc] reading the given file from the local
// file system.
func FileOpener(name string) OpenFunc {
	return func() (fs.File, error) {
		return os.Open(name)
	}
}

type entryKind uint8

const (
	kindDirectory entryKind = iota
	kindFile
	kindSymlink
)

type entry struct {
	kind   entryKind
	path   string
	target string
	open   OpenFunc
}

// Archive is an ordered set of boot archive entries. Entries are written in
// the order they were added; parent directories are created implicitly.
type Archive struct {
	entries []entry
	known   map[string]bool
}

// New creates an empty archive.
func New() *Archive {
	return &Archive{
		known: map[string]bool{"/": true},
	}
}

// AddDirectory adds a directory entry including missing parents.
func (a *Archive) AddDirectory(dir string) error {
	dir = path.Clean(dir)
	if a.known[dir] {
		return nil
	}

	if !path.IsAbs(dir) {
		return fmt.Errorf("%w: %s", ErrNotAbsolute, dir)
	}

	if err := a.AddDirectory(path.Dir(dir)); err != nil {
		return err
	}

	a.known[dir] = true
	a.entries = append(a.entries, entry{kind: kindDirectory, path: dir})

	return nil
}

// AddFile adds a regular file entry whose content is read at write time.
func (a *Archive) AddFile(dest string, open OpenFunc) error {
	dest = path.Clean(dest)
	if err := a.add(dest); err != nil {
		return err
	}

	a.entries = append(a.entries, entry{
		kind: kindFile,
		path: dest,
		open: open,
	})

	return nil
}

// AddSymlink adds a symbolic link entry pointing to target.
func (a *Archive) AddSymlink(dest, target string) error {
	dest = path.Clean(dest)
	if err := a.add(dest); err != nil {
		return err
	}

	a.entries = append(a.entries, entry{
		kind:   kindSymlink,
		path:   dest,
		target: target,
	})

	return nil
}

func (a *Archive) add(dest string) error {
	if !path.IsAbs(dest) {
		return fmt.Errorf("%w: %s", ErrNotAbsolute, dest)
	}

	if a.known[dest] {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, dest)
	}

	if err := a.AddDirectory(path.Dir(dest)); err != nil {
		return err
	}

	a.known[dest] = true

	return nil
}

// WriteTo writes the archive in cpio newc format.
func (a *Archive) WriteTo(w io.Writer) error {
	writer := cpio.NewWriter(w)

	for _, ent := range a.entries {
		// Archive paths are relative to the archive root.
		name := ent.path[1:]

		var err error

		switch ent.kind {
		case kindDirectory:
			err = writeDirectory(writer, name)
		case kindSymlink:
			err = writeSymlink(writer, name, ent.target)
		case kindFile:
			err = writeFile(writer, name, ent.open)
		}

		if err != nil {
			return err
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	return nil
}

func writeDirectory(w *cpio.Writer, name string) error {
	header := &cpio.Header{
		Name:  name,
		Mode:  cpio.TypeDir | cpio.ModePerm,
		Links: dirLinks,
	}

	if err := w.WriteHeader(header); err != nil {
		return fmt.Errorf("write header for %s: %w", name, err)
	}

	return nil
}

func writeSymlink(w *cpio.Writer, name, target string) error {
	header := &cpio.Header{
		Name: name,
		Mode: cpio.TypeSymlink | cpio.ModePerm,
		Size: int64(len(target)),
	}

	if err := w.WriteHeader(header); err != nil {
		return fmt.Errorf("write header for %s: %w", name, err)
	}

	if _, err := w.Write([]byte(target)); err != nil {
		return fmt.Errorf("write body for %s: %w", name, err)
	}

	return nil
}

func writeFile(w *cpio.Writer, name string, open OpenFunc) error {
	source, err := open()
	if err != nil {
		return fmt.Errorf("open source for %s: %w", name, err)
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return fmt.Errorf("stat source for %s: %w", name, err)
	}

	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegular, name)
	}

	header, err := cpio.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("create header for %s: %w", name, err)
	}

	header.Name = name

	if err := w.WriteHeader(header); err != nil {
		return fmt.Errorf("write header for %s: %w", name, err)
	}

	if _, err := io.Copy(w, source); err != nil {
		return fmt.Errorf("write body for %s: %w", name, err)
	}

	return nil
}
