package userlib

import (
	"fmt"
	"os"
)

// File loads helper library source from a file path.
type File struct {
	Path string
}

func (f File) Load() (string, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("read helper library: %w", err)
	}
	return string(raw), nil
}
