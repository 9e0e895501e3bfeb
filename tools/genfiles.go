//go:build tools
// +build tools

// genfiles fills a directory with shuffled, randomly sized images so the
// arranger has something to work on.
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
)

var exts = []string{".jpg", ".jpeg", ".png", ".JPG"}

var sizes = []int64{
	16 * 1024,       // 16KB
	512 * 1024,      // 512KB
	4 * 1024 * 1024, // 4MB
}

func randInt(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func createImages(dir string, n int) error {
	for i := range n {
		name := fmt.Sprintf("IMG_%04d%s", 1000+randInt(9000), exts[i%len(exts)])
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}

		f, err := os.Create(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(f, &randReader{remaining: sizes[randInt(len(sizes))]})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		fmt.Printf("Created: %s\n", path)
	}
	return nil
}

type randReader struct {
	remaining int64
}

func (r *randReader) Read(p []byte) (int, error) {
	if r.remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.remaining {
		p = p[:r.remaining]
	}
	n, err := rand.Read(p)
	r.remaining -= int64(n)
	return n, err
}

func main() {
	dir := flag.String("dir", "./images", "Directory to fill")
	n := flag.Int("n", 50, "Number of images")
	flag.Parse()

	if err := os.MkdirAll(*dir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(1)
	}
	if err := createImages(*dir, *n); err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Created up to", *n, "images in", *dir)
}
