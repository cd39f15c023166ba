// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal wraps the few raw terminal operations the CLI needs around
// secret prompts.
package terminal

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

const defaultWidth = 80

// Interactive reports whether stdin and stdout are both terminals.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Width is the current terminal width, 80 when unknown.
func Width() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

// LinesFor returns how many rows textLength characters occupy at width, plus the
// row the cursor moved to when Enter was pressed.
func LinesFor(textLength, width int) int {
	if width <= 0 {
		width = defaultWidth
	}
	rows := (textLength + width - 1) / width
	if rows < 1 {
		rows = 1
	}
	return rows + 1
}

// ClearPreviousLines erases a prompt and its echoed answer, textLength characters
// in total, so secrets do not stay on screen.
func ClearPreviousLines(textLength int) {
	n := LinesFor(textLength, Width())
	for i := 0; i < n; i++ {
		fmt.Print("\r\x1b[2K")
		if i < n-1 {
			fmt.Print("\x1b[1A")
		}
	}
}
