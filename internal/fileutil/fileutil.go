package fileutil

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CopyFileVerified streams src to dst with SHA256 + size integrity verification.
// Removes dst on mismatch.
func CopyFileVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	srcSize := srcInfo.Size()

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	srcHasher := sha256.New()
	dstHasher := sha256.New()
	tee := io.TeeReader(in, srcHasher)
	multi := io.MultiWriter(out, dstHasher)

	written, err := io.Copy(multi, tee)
	if err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if written != srcSize {
		_ = os.Remove(dst)
		return fmt.Errorf("copy size mismatch: source %d bytes, copied %d bytes", srcSize, written)
	}

	if !bytes.Equal(srcHasher.Sum(nil), dstHasher.Sum(nil)) {
		_ = os.Remove(dst)
		return fmt.Errorf("copy hash mismatch: file corrupted during copy")
	}

	return nil
}

// Exists reports whether path names an existing regular file or directory.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

const (
	nifti1HeaderSize = 348
	nifti2HeaderSize = 540
)

// VerifyReadable checks that path is a non-empty regular file that can be
// read. NIfTI images (.nii, .nii.gz) must additionally carry a valid header
// size field, which also proves a .nii.gz decompresses.
func VerifyReadable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var r io.Reader = f
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".nii.gz"):
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%s: invalid gzip stream: %w", path, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(lower, ".nii"):
	default:
		buf := make([]byte, 1)
		if _, err := f.Read(buf); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		return nil
	}
	return checkNIfTIHeader(path, r)
}

func checkNIfTIHeader(path string, r io.Reader) error {
	var raw [4]byte
	if _, err := io.ReadFull(r, raw[:]); err != nil {
		return fmt.Errorf("%s: truncated NIfTI header: %w", path, err)
	}
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		switch order.Uint32(raw[:]) {
		case nifti1HeaderSize, nifti2HeaderSize:
			return nil
		}
	}
	return errors.New(path + ": not a NIfTI image (bad header size)")
}
