// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package binarypackage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"
)

func lenBytes(n int) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(n))
	return buf
}

// buildXpakBlob encodes xpak's entries, sorted by key for reproducibility,
// into the XPAKPACK/XPAKSTOP-framed blob described by the xpak(5) format.
func buildXpakBlob(xpak XPAK) []byte {
	keys := make([]string, 0, len(xpak))
	for k := range xpak {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var index, data bytes.Buffer
	for _, k := range keys {
		v := xpak[k]
		index.Write(lenBytes(len(k)))
		index.WriteString(k)
		index.Write(lenBytes(data.Len()))
		index.Write(lenBytes(len(v)))
		data.Write(v)
	}

	var blob bytes.Buffer
	blob.WriteString("XPAKPACK")
	blob.Write(lenBytes(index.Len()))
	blob.Write(lenBytes(data.Len()))
	blob.Write(index.Bytes())
	blob.Write(data.Bytes())
	blob.WriteString("XPAKSTOP")
	return blob.Bytes()
}

// WriteTBZ2 writes a .tbz2 binary package to w: tarball zstd-compressed at
// the default level, followed by xpak's XPAK blob and its STOP trailer.
func WriteTBZ2(w io.Writer, tarball io.Reader, xpak XPAK) error {
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, tarball); err != nil {
		enc.Close()
		return fmt.Errorf("compressing tarball payload: %w", err)
	}
	if err := enc.Close(); err != nil {
		return err
	}

	blob := buildXpakBlob(xpak)
	if _, err := w.Write(blob); err != nil {
		return err
	}
	if _, err := w.Write(lenBytes(len(blob))); err != nil {
		return err
	}
	if _, err := w.Write([]byte("STOP")); err != nil {
		return err
	}
	return nil
}

// ReplaceXpak rewrites the binary package at path with xpak as its XPAK
// metadata blob, leaving the already-compressed tarball payload untouched
// (it is copied byte-for-byte, not recompressed). The rewrite is atomic:
// path is only replaced once the new contents are fully written.
func ReplaceXpak(path string, xpak XPAK) error {
	bp, err := Open(path)
	if err != nil {
		return err
	}
	defer bp.Close()

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := bp.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.CopyN(tmp, bp.f, bp.xpakStart); err != nil {
		return fmt.Errorf("copying tarball payload: %w", err)
	}

	blob := buildXpakBlob(xpak)
	if _, err := tmp.Write(blob); err != nil {
		return err
	}
	if _, err := tmp.Write(lenBytes(len(blob))); err != nil {
		return err
	}
	if _, err := tmp.Write([]byte("STOP")); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	success = true
	return os.Rename(tmpPath, path)
}
