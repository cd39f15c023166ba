// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package terminal

import "testing"

func TestLinesFor(t *testing.T) {
	tests := []struct {
		length, width, want int
	}{
		{0, 80, 2},
		{1, 80, 2},
		{80, 80, 2},
		{81, 80, 3},
		{200, 0, 4},
	}
	for _, tt := range tests {
		if got := LinesFor(tt.length, tt.width); got != tt.want {
			t.Errorf("LinesFor(%d, %d) = %d, want %d", tt.length, tt.width, got, tt.want)
		}
	}
}
