// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package binarypackage reads and writes Portage binary packages (.tbz2
// files): a zstd-compressed tarball payload followed by an XPAK metadata
// blob. See https://www.mankier.com/5/xpak for the XPAK format.
package binarypackage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// XPAK is the decoded key/value metadata blob appended to a .tbz2 file.
type XPAK map[string][]byte

// File is an open .tbz2 binary package.
type File struct {
	xpakStart int64
	size      int64
	f         *os.File
}

// Open opens the binary package at path, validating its XPAK framing.
func Open(path string) (bp *File, err error) {
	bp = &File{}
	bp.f, err = os.Open(path)
	if err != nil {
		return nil, err
	}

	success := false
	defer func() {
		if !success {
			bp.Close()
		}
	}()

	fi, err := bp.f.Stat()
	if err != nil {
		return nil, err
	}
	bp.size = fi.Size()

	if bp.size < 24 {
		return nil, errors.New("corrupted .tbz2 file: size is too small")
	}
	if err := bp.expectMagic(bp.size-4, "STOP"); err != nil {
		return nil, fmt.Errorf("corrupted .tbz2 file: %w", err)
	}
	xpakOffset, err := bp.readUint32(bp.size - 8)
	if err != nil {
		return nil, fmt.Errorf("corrupted .tbz2 file: %w", err)
	}
	bp.xpakStart = bp.size - 8 - int64(xpakOffset)
	if bp.xpakStart < 0 {
		return nil, errors.New("corrupted .tbz2 file: invalid xpak_offset")
	}
	if err := bp.expectMagic(bp.size-16, "XPAKSTOP"); err != nil {
		return nil, fmt.Errorf("corrupted .tbz2 file: %w", err)
	}
	if err := bp.expectMagic(bp.xpakStart, "XPAKPACK"); err != nil {
		return nil, fmt.Errorf("corrupted .tbz2 file: %w", err)
	}

	success = true
	return bp, nil
}

func (bp *File) Close() error {
	return bp.f.Close()
}

// TarballReader returns a reader over the zstd-compressed tarball payload,
// independent of the file's current seek position.
func (bp *File) TarballReader() (io.ReadCloser, error) {
	newFd, err := syscall.Dup(int(bp.f.Fd()))
	if err != nil {
		return nil, err
	}
	f := os.NewFile(uintptr(newFd), bp.f.Name())
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return readCloser{
		Reader: io.LimitReader(f, bp.xpakStart),
		Closer: f,
	}, nil
}

// Merge extracts the package's tarball payload into dir.
func (bp *File) Merge(dir string) error {
	tarball, err := bp.TarballReader()
	if err != nil {
		return err
	}
	defer tarball.Close()

	// Ownership is not retained: --same-owner would need root, and
	// ownership-mangled output files would leave the build unable to clean
	// them up.
	cmd := exec.Command("tar", "--zstd", "--keep-old-files", "--same-permissions", "-xf", "-")
	cmd.Dir = dir
	cmd.Stdin = tarball
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("extracting %s (maybe multiple packages define the same file): %w", bp.f.Name(), err)
	}
	return nil
}

// Xpak decodes the package's XPAK metadata blob.
func (bp *File) Xpak() (XPAK, error) {
	indexLen, err := bp.readUint32(bp.xpakStart + 8)
	if err != nil {
		return nil, err
	}
	dataLen, err := bp.readUint32(bp.xpakStart + 12)
	if err != nil {
		return nil, err
	}
	indexStart := bp.xpakStart + 16
	dataStart := indexStart + int64(indexLen)
	if dataStart+int64(dataLen) != bp.size-16 {
		return nil, errors.New("corrupted .tbz2 file: data length inconsistency")
	}

	xpak := make(XPAK)
	for indexPos := indexStart; indexPos < dataStart; {
		nameLen, err := bp.readUint32(indexPos)
		if err != nil {
			return nil, err
		}
		indexPos += 4
		nameBuf := make([]byte, int(nameLen))
		if _, err := io.ReadFull(bp.f, nameBuf); err != nil {
			return nil, err
		}
		indexPos += int64(nameLen)
		name := string(nameBuf)

		dataOffset, err := bp.readUint32(indexPos)
		if err != nil {
			return nil, err
		}
		indexPos += 4
		entryLen, err := bp.readUint32(indexPos)
		if err != nil {
			return nil, err
		}
		indexPos += 4

		if _, err := bp.f.Seek(dataStart+int64(dataOffset), io.SeekStart); err != nil {
			return nil, err
		}
		data := make([]byte, int(entryLen))
		if _, err := io.ReadFull(bp.f, data); err != nil {
			return nil, err
		}

		xpak[name] = data
	}

	return xpak, nil
}

func (bp *File) readUint32(offset int64) (uint32, error) {
	if _, err := bp.f.Seek(offset, io.SeekStart); err != nil {
		return 0, err
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(bp.f, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf), nil
}

func (bp *File) expectMagic(offset int64, want string) error {
	if _, err := bp.f.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	buf := make([]byte, len(want))
	if _, err := io.ReadFull(bp.f, buf); err != nil {
		return err
	}
	if got := string(buf); got != want {
		return fmt.Errorf("bad magic: got %q, want %q", got, want)
	}
	return nil
}

// ReadXpak opens path just long enough to decode its XPAK metadata blob.
func ReadXpak(path string) (XPAK, error) {
	bp, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer bp.Close()
	return bp.Xpak()
}

type readCloser struct {
	io.Reader
	io.Closer
}
