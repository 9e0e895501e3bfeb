// Utility functions and types for querying information about the
// filesystem holding the directory we reorder.
package dfs

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	sigar "github.com/cloudfoundry/gosigar"
)

// FSInfo describes the filesystem a directory lives on.
type FSInfo struct {
	Type            string
	MountPoint      string
	Total           uint64
	Used            uint64
	Avail           uint64
	UsePercent      float64
	CaseInsensitive bool
}

// DetectFilesystem returns the filesystem name for path.
func DetectFilesystem(path string) (string, error) {
	return detectFilesystem(path)
}

// case-folding filesystems, by the names detectFilesystem reports.
var foldingFilesystems = []string{"ntfs", "vfat", "exfat", "msdos", "fat32", "hfs", "hfsplus", "apfs"}

// CaseInsensitive reports whether names in dir are compared without
// regard to case. Windows and macOS are treated as case-insensitive
// regardless of what detection says.
func CaseInsensitive(dir string) bool {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return true
	}
	fsType, err := detectFilesystem(dir)
	if err != nil {
		return false
	}
	fsType = strings.ToLower(fsType)
	for _, f := range foldingFilesystems {
		if fsType == f {
			return true
		}
	}
	return false
}

// SamePath reports whether a and b name the same directory entry.
func SamePath(a, b string, foldCase bool) bool {
	a, b = filepath.Clean(a), filepath.Clean(b)
	if a == b {
		return true
	}
	return foldCase && strings.EqualFold(a, b)
}

// Usage returns filesystem facts for the mount holding dir. Size fields
// are in bytes.
func Usage(dir string) (*FSInfo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, err
	}

	info := &FSInfo{CaseInsensitive: CaseInsensitive(abs)}
	if fsType, err := detectFilesystem(abs); err == nil {
		info.Type = fsType
	}

	info.MountPoint = mountPointFor(abs)
	usage := sigar.FileSystemUsage{}
	if err := usage.Get(info.MountPoint); err != nil {
		return info, err
	}
	// gosigar reports sizes in KiB.
	info.Total = usage.Total * 1024
	info.Used = usage.Used * 1024
	info.Avail = usage.Avail * 1024
	info.UsePercent = usage.UsePercent()

	return info, nil
}

// mountPointFor picks the longest mount point that prefixes path.
func mountPointFor(path string) string {
	fsList := sigar.FileSystemList{}
	if err := fsList.Get(); err != nil {
		return path
	}

	best := ""
	for _, fs := range fsList.List {
		dir := fs.DirName
		if dir == "" {
			continue
		}
		if path == dir || strings.HasPrefix(path, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator)) {
			if len(dir) > len(best) {
				best = dir
			}
		}
	}
	if best == "" {
		return path
	}
	return best
}

// FormatPercent renders a usage percentage the way sigar does.
func FormatPercent(p float64) string {
	return sigar.FormatPercent(p)
}

// GetFileSize returns the size of filename, or zero when it cannot be
// stat'ed.
func GetFileSize(filename string) uint64 {
	if filename == "" {
		return 0
	}
	info, err := os.Stat(filename)
	if err != nil {
		return 0
	}
	size := info.Size()
	if size < 0 {
		return 0
	}
	return uint64(size)
}
