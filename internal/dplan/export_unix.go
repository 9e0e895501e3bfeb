//go:build unix

package dplan

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// openFileSecure creates fileName relative to an open handle on dirPath.
// O_NOFOLLOW refuses to write through a symlink planted at the target.
func openFileSecure(absPath, dirPath, fileName string) (*os.File, error) {
	if fileName == "" || fileName == "." || fileName == ".." || filepath.Clean(fileName) != fileName {
		return nil, fmt.Errorf("invalid output filename %q", fileName)
	}

	// #nosec G304 -- dirPath is the cleaned parent of the export path
	dirHandle, err := os.Open(dirPath)
	if err != nil {
		return nil, fmt.Errorf("open directory %s: %w", dirPath, err)
	}
	defer dirHandle.Close()

	flags := unix.O_WRONLY | unix.O_CREAT | unix.O_TRUNC | unix.O_CLOEXEC | unix.O_NOFOLLOW
	fd, err := unix.Openat(int(dirHandle.Fd()), fileName, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open output file %s: %w", absPath, err)
	}
	return os.NewFile(uintptr(fd), absPath), nil
}
