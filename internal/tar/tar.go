// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package tar extracts and inspects tarballs (plain and zstd-compressed),
// the format binary packages and board SDK overlays are shipped in.
package tar

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cros.local/alchemist/internal/fileutil"
	"github.com/klauspost/compress/zstd"
)

func extractTar(r io.Reader, dest string) error {
	tarReader := tar.NewReader(r)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("decoding tar: %w", err)
		}

		path := filepath.Join(dest, header.Name)
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.Mkdir(path, fs.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("mkdir %s mode %o: %w", path, header.Mode, err)
			}
		case tar.TypeReg:
			outFile, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, fs.FileMode(header.Mode).Perm())
			if err != nil {
				return fmt.Errorf("open %s mode %o: %w", path, header.Mode, err)
			}
			_, err = io.Copy(outFile, tarReader)
			outFile.Close()
			if err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
		case tar.TypeSymlink, tar.TypeLink:
			if err := os.Symlink(header.Linkname, path); err != nil {
				return fmt.Errorf("linking %s -> %s: %w", path, header.Linkname, err)
			}
		default:
			return fmt.Errorf("unknown tar entry type %#x for %s", header.Typeflag, header.Name)
		}
	}
}

func extractTarZstd(r io.Reader, dest string) error {
	decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return err
	}
	defer decoder.Close()
	return extractTar(decoder, dest)
}

func findTarExtractor(path string) func(io.Reader, string) error {
	switch {
	case strings.HasSuffix(path, ".tar.zst"):
		return extractTarZstd
	case strings.HasSuffix(path, ".tar"):
		return extractTar
	default:
		return nil
	}
}

// IsTar reports whether path looks like a tarball this package can extract.
func IsTar(path string) bool {
	return findTarExtractor(path) != nil
}

// Extract extracts the tarball at src into dest.
func Extract(src string, dest string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()

	fn := findTarExtractor(src)
	if fn == nil {
		return fmt.Errorf("%s: unknown tarball type", src)
	}
	return fn(file, dest)
}

// ExtractFiles extracts only the entries of r (a plain, already-decompressed
// tar stream) named as keys of files, writing each to its mapped path.
// files is mutated to remove matched entries; if any remain unmatched at
// EOF, ExtractFiles returns an error naming them.
func ExtractFiles(r io.Reader, files map[string]string) error {
	tarReader := tar.NewReader(r)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("decoding tar: %w", err)
		}

		outPath, ok := files[header.Name]
		if !ok {
			continue
		}

		switch header.Typeflag {
		case tar.TypeReg:
			delete(files, header.Name)
			outFile, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY, fs.FileMode(header.Mode).Perm())
			if err != nil {
				return fmt.Errorf("open %s mode %o: %w", outPath, header.Mode, err)
			}
			_, err = io.Copy(outFile, tarReader)
			outFile.Close()
			if err != nil {
				return fmt.Errorf("writing %s: %w", outPath, err)
			}
		case tar.TypeSymlink:
			delete(files, header.Name)
			// Bazel only supports relative symlinks pointing within the
			// same directory; that's the only shape we need to reproduce.
			if strings.Contains(header.Linkname, "/") {
				return fmt.Errorf("%s -> %s: multi-component symlink targets are unsupported", header.Name, header.Linkname)
			}
			if err := os.Symlink(header.Linkname, outPath); err != nil {
				return fmt.Errorf("symlinking %s -> %s: %w", outPath, header.Linkname, err)
			}
		case tar.TypeDir:
			continue
		default:
			return fmt.Errorf("unknown tar entry type %#x for %s", header.Typeflag, header.Name)
		}
	}

	if len(files) > 0 {
		return fmt.Errorf("failed to extract: %v", files)
	}
	return nil
}

// FileListItem is one non-directory entry of a tarball.
type FileListItem struct {
	Type byte
	Path string
}

// ListFilesZstd lists the non-directory entries of a zstd-compressed tar
// stream.
func ListFilesZstd(r io.Reader) ([]FileListItem, error) {
	decoder, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	return ListFiles(decoder)
}

// ListFiles lists the non-directory entries of a plain tar stream.
func ListFiles(r io.Reader) ([]FileListItem, error) {
	tarReader := tar.NewReader(r)

	var items []FileListItem
	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("decoding tar: %w", err)
		}

		switch header.Typeflag {
		case tar.TypeReg, tar.TypeLink, tar.TypeSymlink:
			items = append(items, FileListItem{header.Typeflag, header.Name})
		case tar.TypeDir:
			continue
		default:
			return nil, fmt.Errorf("unknown tar entry type %#x for %s", header.Typeflag, header.Name)
		}
	}
	return items, nil
}

// CreateSymlinkTar moves every symlink under src into a tar file at dest,
// preserving their parent directories' modes, and removes them from src.
// WalkDir visits files in lexical order, so the output is deterministic.
func CreateSymlinkTar(src, dest string) error {
	file, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := tar.NewWriter(file)
	defer writer.Close()

	writtenDirs := map[string]bool{}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type()&fs.ModeSymlink == 0 {
			return nil
		}

		linkSource, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		linkTarget, err := os.Readlink(path)
		if err != nil {
			return err
		}

		var parents []string
		for parent := filepath.Dir(linkSource); parent != "."; parent = filepath.Dir(parent) {
			if writtenDirs[parent] {
				break
			}
			parents = append(parents, parent)
		}
		for i := len(parents) - 1; i >= 0; i-- {
			fi, err := os.Lstat(filepath.Join(src, parents[i]))
			if err != nil {
				return err
			}
			if err := writer.WriteHeader(&tar.Header{
				Typeflag: tar.TypeDir,
				Name:     parents[i],
				Mode:     int64(fi.Mode() & fs.ModePerm),
			}); err != nil {
				return err
			}
			writtenDirs[parents[i]] = true
		}

		fi, err := os.Lstat(path)
		if err != nil {
			return err
		}
		if err := writer.WriteHeader(&tar.Header{
			Typeflag: tar.TypeSymlink,
			Name:     linkSource,
			Linkname: linkTarget,
			Mode:     int64(fi.Mode() & fs.ModePerm),
		}); err != nil {
			return err
		}

		return fileutil.RemoveWithChmod(path)
	})
}
