// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package backend defines the contract between tiasync and an engineering backend.
// The engineering backend owns the whole project model: devices, PLC software with
// its blocks, types and tag tables, HMI software with its tags, alarms and
// connections, plus the exclusive-access and transaction machinery that serializes
// writers. tiasync only orchestrates calls against these interfaces.
//
// Implementations live in sub-packages: memory (an in-process model loaded from a
// YAML snapshot) and agent (a gRPC client for a remote engineering agent).
// Descriptive attributes (names, numbers, references) are plain accessors; anything
// that may reach the live backend returns an error.
package backend

import "context"

// Process describes a running instance of the engineering tool.
type Process struct {
	ID int
	// ProjectPath is the file of the project opened in that instance, empty when none.
	ProjectPath string
}

// Portal is a connection to the engineering tool.
type Portal interface {
	// Processes lists running instances of the engineering tool.
	Processes(ctx context.Context) ([]Process, error)
	// Attach connects to a running instance and returns its primary project.
	// The project is nil when the instance has nothing open.
	Attach(ctx context.Context, pid int) (Project, error)
	// Open opens a project file. multiuser selects the local-session flavor used
	// for server projects.
	Open(ctx context.Context, path string, multiuser bool) (Project, error)
	// ExclusiveAccess acquires the cooperative project lock. A second acquisition
	// while one is held fails.
	ExclusiveAccess(text string) (ExclusiveAccess, error)
	Close() error
}

// Project is an opened single-user project or multi-user local session.
type Project interface {
	Name() string
	// Path is the project file path.
	Path() string
	Multiuser() bool
	ReferenceLanguage() string
	ActiveLanguages() []string

	Devices() ([]Device, error)
	DeviceGroups() ([]DeviceGroup, error)
	UngroupedDevices() ([]Device, error)
}

// ExclusiveAccess is the backend's cooperative writer lock.
type ExclusiveAccess interface {
	// SetText updates the progress text shown by the engineering tool.
	SetText(text string)
	// Transaction opens a named change scope on p.
	Transaction(p Project, name string) (Transaction, error)
	Dispose() error
}

// Transaction is a change scope. Changes are kept only when CommitOnDispose was
// called before Dispose; otherwise Dispose rolls them back.
type Transaction interface {
	CommitOnDispose()
	Dispose() error
}

// DeviceGroup is a user folder of devices.
type DeviceGroup interface {
	Name() string
	Devices() ([]Device, error)
	Groups() ([]DeviceGroup, error)
}

// Device is a station in the project.
type Device interface {
	Name() string
	Items() ([]DeviceItem, error)
}

// DeviceItem is a module of a device. Software returns nil when the item has no
// software container.
type DeviceItem interface {
	Name() string
	Software() (Software, error)
}

// Software is the content of a software container. Concrete software is one of
// PlcSoftware, HmiTarget or HmiSoftware; anything else is opaque.
type Software interface {
	Name() string
}

// PlcSoftware is the program of a PLC.
type PlcSoftware interface {
	Software
	BlockGroup() (BlockGroup, error)
	TypeGroup() (TypeGroup, error)
	TagTableGroup() (TagTableGroup, error)
}

// HmiTarget is classic HMI software. tiasync only lists it.
type HmiTarget interface {
	Software
	ClassicHMI()
}

// HmiSoftware is unified HMI software.
type HmiSoftware interface {
	Software
	Tags() HmiTags
	DiscreteAlarms() DiscreteAlarms
	AlarmClasses() ([]string, error)
	Connections() ([]Connection, error)
	TagTables() HmiTagTables
	TagTableGroups() ([]HmiTagTableGroup, error)
}
