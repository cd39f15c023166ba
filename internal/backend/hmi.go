// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package backend

// Connection is a declared HMI connection to a partner device.
type Connection struct {
	Name    string
	Partner string
}

// HmiTags is the tag collection of unified HMI software, in backend order.
type HmiTags interface {
	All() ([]HmiTag, error)
	// Create adds a tag to table, or to the default table when table is empty.
	Create(name, table string) (HmiTag, error)
}

// HmiTag is a unified HMI tag. Its PlcTag is the dotted reference of the PLC
// variable it mirrors.
type HmiTag interface {
	Name() string
	PlcTag() string
	Connection() string
	TagTable() string
	SetName(name string) error
	SetPlcTag(ref string) error
	SetConnection(name string) error
	Delete() error
}

// DiscreteAlarms is the discrete alarm collection of unified HMI software.
type DiscreteAlarms interface {
	All() ([]DiscreteAlarm, error)
	// Find returns nil when no alarm has that name.
	Find(name string) (DiscreteAlarm, error)
	Create(name string) (DiscreteAlarm, error)
}

// DiscreteAlarm is a unified HMI discrete alarm.
type DiscreteAlarm interface {
	Name() string
	RaisedStateTag() string
	AlarmClass() string
	Origin() string
	SetRaisedStateTag(tag string) error
	SetAlarmClass(class string) error
	SetOrigin(origin string) error
	// EventText returns one multilingual slot per active project language.
	EventText() ([]TextItem, error)
	Delete() error
}

// TextItem is one language slot of a multilingual text.
type TextItem interface {
	Language() string
	Text() string
	SetText(text string) error
}

// HmiTagTables is the root tag table collection of unified HMI software.
type HmiTagTables interface {
	All() ([]HmiTagTable, error)
	Create(name string) (HmiTagTable, error)
}

// HmiTagTable is a unified HMI tag table.
type HmiTagTable interface {
	Name() string
}

// HmiTagTableGroup is a user folder of HMI tag tables.
type HmiTagTableGroup interface {
	Name() string
	TagTables() ([]HmiTagTable, error)
	Groups() ([]HmiTagTableGroup, error)
}
