//go:build !unix

package dplan

import (
	"fmt"
	"os"
)

func openFileSecure(absPath, _, _ string) (*os.File, error) {
	// #nosec G304 -- absPath is cleaned by secureOutputFile
	file, err := os.OpenFile(absPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("export file %s: %w", absPath, err)
	}
	return file, nil
}
