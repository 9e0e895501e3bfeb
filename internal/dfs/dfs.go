package dfs

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/jdefrancesco/dskOrder/internal/dsklog"
	"lukechampine.com/blake3"
)

// For now this will be our max open-file descriptor limit. This value
// is used by hashing function semaphore logic.
const OpenFileDescLimMax = 512

// HashAlgorithm names the digest used to fingerprint file contents.
type HashAlgorithm string

const (
	HashNone   HashAlgorithm = "none"
	HashSHA256 HashAlgorithm = "sha256"
	HashBLAKE3 HashAlgorithm = "blake3"
)

// ParseHashAlgorithm maps a config value onto a HashAlgorithm. The empty
// string selects SHA256.
func ParseHashAlgorithm(s string) (HashAlgorithm, error) {
	switch HashAlgorithm(strings.ToLower(strings.TrimSpace(s))) {
	case "", HashSHA256:
		return HashSHA256, nil
	case HashBLAKE3:
		return HashBLAKE3, nil
	case HashNone:
		return HashNone, nil
	default:
		return "", fmt.Errorf("unknown hash algorithm %q", s)
	}
}

func (a HashAlgorithm) newHash() hash.Hash {
	if a == HashBLAKE3 {
		return blake3.New(32, nil)
	}
	return sha256.New()
}

// ImageExtensions is the scan contract of the ordering engine.
func ImageExtensions() []string { return []string{"jpg", "jpeg", "png"} }

// ResizeExtensions is the wider set accepted by the batch resize tool.
func ResizeExtensions() []string { return []string{"jpg", "jpeg", "tiff", "png"} }

// Ext returns the lower-cased extension of name including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// IsImage reports whether name carries one of exts (case-insensitive,
// exts given without the dot).
func IsImage(name string, exts []string) bool {
	ext := strings.TrimPrefix(Ext(name), ".")
	if ext == "" {
		return false
	}
	return slices.Contains(exts, ext)
}

// Dfile describes one image file found in the target directory.
type Dfile struct {
	dir      string
	fileName string
	fileSize int64
	digest   string
}

// NewDfile creates a new Dfile. When algo is not HashNone the contents
// are fingerprinted.
func NewDfile(dir, name string, size int64, algo HashAlgorithm) (*Dfile, error) {
	if name == "" {
		return nil, errors.New("file name needs to be specified")
	}
	if filepath.Base(name) != name {
		return nil, fmt.Errorf("%q is not a bare file name", name)
	}

	d := &Dfile{
		dir:      dir,
		fileName: name,
		fileSize: size,
	}

	if algo != "" && algo != HashNone {
		sum, err := HashFile(d.Path(), algo)
		if err != nil {
			return d, err
		}
		d.digest = sum
	}

	return d, nil
}

// BaseName returns the base filename only instead of the full pathname.
func (d *Dfile) BaseName() string { return d.fileName }

// Path returns dir joined with the file name.
func (d *Dfile) Path() string { return filepath.Join(d.dir, d.fileName) }

// Ext returns the lower-cased extension including the dot.
func (d *Dfile) Ext() string { return Ext(d.fileName) }

// FileSize will return the size of the file described by dfile object.
func (d *Dfile) FileSize() int64 { return d.fileSize }

// Digest returns the hex content digest, empty when not fingerprinted.
func (d *Dfile) Digest() string { return d.digest }

// Semaphore that controls how many open file descriptors we can have at once..
var sema = make(chan struct{}, OpenFileDescLimMax)

// We want to re-use a pool of buffers to make things easier on GC. We hash files
// in quick succession. Instead of creating a new buffer for each file we can re-use what we have
// available.
var bufPool = sync.Pool{
	New: func() any {
		var arr [1 << 20]byte
		return &arr
	},
}

// HashFile returns the hex digest of the file at path.
func HashFile(path string, algo HashAlgorithm) (string, error) {
	if algo == HashNone || algo == "" {
		return "", nil
	}

	sema <- struct{}{}
	defer func() { <-sema }()

	bufPtr := bufPool.Get().(*[1 << 20]byte)
	defer bufPool.Put(bufPtr)

	// #nosec G304 -- path comes from a directory listing
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			dsklog.Dlogger.Debugf("Error closing %s: %v", path, err)
		}
	}()

	h := algo.newHash()
	if _, err := io.CopyBuffer(h, f, bufPtr[:]); err != nil {
		return "", fmt.Errorf("failed to hash file %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
