// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

// BlockType is the runtime type of a program block.
type BlockType string

const (
	BlockOB         BlockType = "OB"
	BlockFC         BlockType = "FC"
	BlockFB         BlockType = "FB"
	BlockGlobalDB   BlockType = "GlobalDB"
	BlockInstanceDB BlockType = "InstanceDB"
)

// BlockGroup is the block root of a PLC or one of its user groups.
type BlockGroup interface {
	Name() string
	Blocks() ([]Block, error)
	Groups() ([]BlockGroup, error)
}

// Block is a program block. Type may be a value outside the BlockType constants
// for block kinds tiasync does not specialize.
type Block interface {
	Name() string
	Number() int
	Type() BlockType
	Consistent() bool
	// Export writes the block to path. The file must not exist.
	Export(path string) error
}

// TypeGroup is the PLC data type root or one of its user groups.
type TypeGroup interface {
	Name() string
	Types() ([]DataType, error)
	Groups() ([]TypeGroup, error)
}

// DataType is a PLC user data type.
type DataType interface {
	Name() string
}

// TagTableGroup is the PLC tag table root or one of its user groups.
type TagTableGroup interface {
	Name() string
	TagTables() ([]TagTable, error)
	Groups() ([]TagTableGroup, error)
}

// TagTable is a PLC tag table.
type TagTable interface {
	Name() string
}
