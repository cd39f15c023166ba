// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package main is the entry point of the tiasync CLI.
package main

import (
	"tiasync/cli/cmd"
)

func main() {
	cmd.Execute()
}
