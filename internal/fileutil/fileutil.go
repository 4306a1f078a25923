package fileutil

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MoveAtomic renames src to dst. The pipeline's stage-to-stage handoffs
// assume src and dst live on the same filesystem, so this is a single
// os.Rename with no cross-device copy fallback: either dst becomes fully
// visible or src is left exactly as it was.
func MoveAtomic(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move %q to %q: %w", src, dst, err)
	}
	return nil
}

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

// CopyDirVerified recursively copies src into dst, verifying every regular
// file with CopyFileVerified. Directory permissions are preserved;
// symlinks are not followed and are skipped. dst is created if missing.
func CopyDirVerified(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source dir: %w", err)
	}
	if !srcInfo.IsDir() {
		return fmt.Errorf("source %q is not a directory", src)
	}
	if err := os.MkdirAll(dst, srcInfo.Mode().Perm()); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("read source dir: %w", err)
	}

	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		info, err := entry.Info()
		if err != nil {
			return fmt.Errorf("stat %q: %w", srcPath, err)
		}

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			continue
		case entry.IsDir():
			if err := CopyDirVerified(srcPath, dstPath); err != nil {
				return err
			}
		default:
			if err := CopyFileVerified(srcPath, dstPath); err != nil {
				return fmt.Errorf("copy %q: %w", srcPath, err)
			}
			if err := os.Chmod(dstPath, info.Mode().Perm()); err != nil {
				return fmt.Errorf("chmod %q: %w", dstPath, err)
			}
		}
	}

	return nil
}
