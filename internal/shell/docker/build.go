package docker

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// =============================================================================
// Build Context
// =============================================================================

// Directories never shipped to the daemon as part of a build context.
var contextSkipDirs = map[string]struct{}{
	".git":         {},
	"node_modules": {},
	"__pycache__":  {},
}

// tarBuildContext packs a directory tree into the tar stream the daemon's
// build endpoint expects. The whole archive is staged in memory; build
// contexts here are application source trees, not data sets.
func tarBuildContext(contextDir string) (io.ReadCloser, error) {
	root, err := filepath.Abs(contextDir)
	if err != nil {
		return nil, fmt.Errorf("resolving build context: %w", err)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	walkErr := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if info.IsDir() {
			if _, skip := contextSkipDirs[info.Name()]; skip {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		return err
	})
	if walkErr != nil {
		tw.Close()
		return nil, fmt.Errorf("packing build context: %w", walkErr)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("packing build context: %w", err)
	}

	return io.NopCloser(&buf), nil
}

// =============================================================================
// Build Progress Stream
// =============================================================================

// buildStreamMessage is one line of the daemon's JSON build progress stream.
type buildStreamMessage struct {
	Stream      string `json:"stream"`
	ErrorMsg    string `json:"error"`
	ErrorDetail *struct {
		Message string `json:"message"`
	} `json:"errorDetail"`
}

// drainBuildStream consumes the progress stream, copying human-readable
// lines to out and surfacing the embedded build error, if any.
func drainBuildStream(r io.Reader, out io.Writer) error {
	dec := json.NewDecoder(r)
	for {
		var msg buildStreamMessage
		if err := dec.Decode(&msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading build stream: %w", err)
		}
		if msg.ErrorMsg != "" {
			detail := msg.ErrorMsg
			if msg.ErrorDetail != nil && msg.ErrorDetail.Message != "" {
				detail = msg.ErrorDetail.Message
			}
			return fmt.Errorf("build failed: %s", strings.TrimSpace(detail))
		}
		if out != nil && msg.Stream != "" {
			io.WriteString(out, msg.Stream)
		}
	}
}
