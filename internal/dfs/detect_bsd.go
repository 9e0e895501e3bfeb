//go:build darwin || freebsd || dragonfly

package dfs

import (
	"golang.org/x/sys/unix"
)

func detectFilesystem(path string) (string, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return "", err
	}

	// extract name from fixed-size C array
	buf := make([]byte, 0, len(stat.Fstypename))
	for _, c := range stat.Fstypename {
		if c == 0 {
			break
		}
		buf = append(buf, byte(c))
	}
	return string(buf), nil
}
