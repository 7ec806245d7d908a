// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
)

// ReadFromPath loads a secret from a file, or from stdin when path is
// "-". Surrounding whitespace is trimmed, the value moves into a
// protected buffer, and every intermediate copy is wiped. The caller
// must Close the returned buffer. A source that is empty after
// trimming is an error.
func ReadFromPath(path string) (*Buffer, error) {
	raw, err := readRaw(path)
	if err != nil {
		return nil, err
	}
	// NewFromBytes wipes the trimmed portion; the deferred Zero
	// catches the whitespace bytes around it.
	defer Zero(raw)

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("secret: empty after trimming whitespace")
	}
	return NewFromBytes(trimmed)
}

// readRaw returns the unparsed secret bytes from path or stdin.
func readRaw(path string) ([]byte, error) {
	if path != "-" {
		return os.ReadFile(path)
	}
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return nil, fmt.Errorf("secret: stdin is empty")
	}
	return scanner.Bytes(), nil
}
