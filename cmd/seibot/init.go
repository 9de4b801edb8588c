package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tranminh/seibot/examples"
)

// runInit scaffolds a working directory: data and image directories
// plus example config and MCP server files. Existing files are never
// overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing seibot workspace in %s\n", dir)

	for _, sub := range []string{"data", "out_images"} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	// The config holds API keys, keep it private.
	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(w, configPath, examples.ConfigYAML, 0o600); err != nil {
		return err
	}

	serversPath := filepath.Join(dir, "mcp.json")
	if err := writeIfMissing(w, serversPath, examples.MCPServersJSON, 0o644); err != nil {
		return err
	}

	fmt.Fprintln(w, "Done. Edit config.yaml, then run: seibot serve")
	return nil
}

// writeIfMissing writes data to path unless the file already exists.
func writeIfMissing(w io.Writer, path string, data []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			fmt.Fprintf(w, "  %s exists, skipping\n", path)
			return nil
		}
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", path)
	return nil
}
