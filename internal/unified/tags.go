// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package unified reconciles the tags and discrete alarms of unified HMI software
// with a desired list sourced from PLC tag tables.
//
// A tag's identity is its PLC reference, compared in normalized form. SyncTags
// renames tags whose reference is wanted, deletes duplicates of an already claimed
// reference together with the alarms they raise, and creates what is missing. Tags
// whose reference nobody asked for are never touched.
package unified

import (
	"fmt"

	"tiasync/cli/internal/backend"
	terr "tiasync/cli/internal/errors"
)

// TagRequest is one desired HMI tag.
type TagRequest struct {
	// Device names the unified HMI software the tag belongs to.
	Device string
	// Connection is the partner name of the HMI connection to use.
	Connection string
	// PlcTag is the dotted PLC reference.
	PlcTag string
	Name   string
	// Folder is the tag table; empty means the default table.
	Folder string
}

// Report summarizes what SyncTags changed.
type Report struct {
	Created       []string
	Renamed       []string
	Deleted       []string
	AlarmsDeleted []string
	Unchanged     int
}

// Changes is the number of mutations the report records.
func (r *Report) Changes() int {
	return len(r.Created) + len(r.Renamed) + len(r.Deleted)
}

type rename struct {
	tag  backend.HmiTag
	ref  string
	from string
	to   string
}

// SyncTags reconciles device's tags with requests. It scans a snapshot of the
// current tags, then applies deletions, renames and creations in that order, each
// in its own sub-transaction. The report lists what was applied before any error.
func SyncTags(s *Session, device backend.HmiSoftware, requests []TagRequest) (*Report, error) {
	desired := make(map[string]*TagRequest, len(requests))
	names := make(map[string]string, len(requests))
	for i := range requests {
		req := &requests[i]
		if req.PlcTag == "" || req.Name == "" {
			return nil, terr.Newf(terr.InvalidInput, "tag request %d needs a PLC tag and a name", i)
		}
		ref := NormalizePlcTag(req.PlcTag)
		if prev, dup := desired[ref]; dup {
			return nil, terr.Newf(terr.InvalidInput, "PLC tag %s requested for both %s and %s", ref, prev.Name, req.Name)
		}
		if prev, dup := names[req.Name]; dup {
			return nil, terr.Newf(terr.InvalidInput, "name %s requested for both %s and %s", req.Name, prev, ref)
		}
		desired[ref] = req
		names[req.Name] = ref
	}

	current, err := device.Tags().All()
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "list tags of "+device.Name(), err)
	}

	report := &Report{}
	claimed := make(map[string]bool, len(desired))
	var (
		deletes []backend.HmiTag
		renames []rename
	)
	for _, tag := range current {
		ref := NormalizePlcTag(tag.PlcTag())
		switch req, wanted := desired[ref]; {
		case claimed[ref]:
			deletes = append(deletes, tag)
		case wanted:
			claimed[ref] = true
			if tag.Name() != req.Name {
				renames = append(renames, rename{tag: tag, ref: ref, from: tag.Name(), to: req.Name})
			} else {
				report.Unchanged++
			}
		default:
			report.Unchanged++
			if want, taken := names[tag.Name()]; taken {
				return nil, terr.Newf(terr.InvalidInput, "name %s requested for %s is held by untouched tag on %s", tag.Name(), want, ref)
			}
		}
	}

	for i, tag := range deletes {
		name := tag.Name()
		s.SetText(fmt.Sprintf("Delete tag %s (%d/%d)", name, i+1, len(deletes)))
		var alarms []string
		err := s.Do("Delete "+name, func() error {
			var err error
			if alarms, err = deleteRaisedAlarms(device, name); err != nil {
				return err
			}
			return tag.Delete()
		})
		if err != nil {
			return report, err
		}
		report.Deleted = append(report.Deleted, name)
		report.AlarmsDeleted = append(report.AlarmsDeleted, alarms...)
	}

	if err := applyRenames(s, renames, report); err != nil {
		return report, err
	}

	var creates []*TagRequest
	for i := range requests {
		if !claimed[NormalizePlcTag(requests[i].PlcTag)] {
			creates = append(creates, &requests[i])
		}
	}
	for i, req := range creates {
		s.SetText(fmt.Sprintf("Create tag %s (%d/%d)", req.Name, i+1, len(creates)))
		err := s.Do("Create "+req.Name, func() error {
			_, err := createTag(device, req)
			return err
		})
		if err != nil {
			return report, err
		}
		report.Created = append(report.Created, req.Name)
	}
	return report, nil
}

// applyRenames renames tags so that no rename targets a name another pending
// rename still holds. Cycles are broken through a temporary name.
func applyRenames(s *Session, renames []rename, report *Report) error {
	pending := renames
	for len(pending) > 0 {
		holds := make(map[string]bool, len(pending))
		for _, r := range pending {
			holds[r.tag.Name()] = true
		}

		var blocked []rename
		for _, r := range pending {
			if holds[r.to] && r.tag.Name() != r.to {
				blocked = append(blocked, r)
				continue
			}
			old := r.tag.Name()
			s.SetText(fmt.Sprintf("Rename tag %s to %s", r.from, r.to))
			if err := s.Do("Rename "+r.ref, func() error { return r.tag.SetName(r.to) }); err != nil {
				return err
			}
			report.Renamed = append(report.Renamed, r.from+" -> "+r.to)
			delete(holds, old)
		}

		if len(blocked) == len(pending) {
			r := blocked[0]
			tmp := r.from + "~" + r.ref
			if err := s.Do("Park "+r.ref, func() error { return r.tag.SetName(tmp) }); err != nil {
				return err
			}
		}
		pending = blocked
	}
	return nil
}

// SyncTag converges a single tag: every tag carrying the request's PLC reference
// loses the alarms it raises, duplicates are deleted, and the remaining or a new
// tag gets the requested connection, reference and name.
func SyncTag(s *Session, device backend.HmiSoftware, req TagRequest) error {
	if req.PlcTag == "" || req.Name == "" {
		return terr.New(terr.InvalidInput, "tag request needs a PLC tag and a name")
	}
	ref := NormalizePlcTag(req.PlcTag)
	s.SetText("Rebuild tag " + req.Name)
	return s.Do("Build "+req.Name, func() error {
		current, err := device.Tags().All()
		if err != nil {
			return err
		}
		var matches []backend.HmiTag
		for _, t := range current {
			if NormalizePlcTag(t.PlcTag()) == ref {
				matches = append(matches, t)
			}
		}
		for _, t := range matches {
			if _, err := deleteRaisedAlarms(device, t.Name()); err != nil {
				return err
			}
			if len(matches) > 1 {
				if err := t.Delete(); err != nil {
					return err
				}
			}
		}

		if len(matches) != 1 {
			_, err := createTag(device, &req)
			return err
		}
		tag := matches[0]
		conn, err := connectionFor(device, req.Connection)
		if err != nil {
			return err
		}
		if err := tag.SetConnection(conn); err != nil {
			return err
		}
		if err := tag.SetPlcTag(ref); err != nil {
			return err
		}
		return tag.SetName(req.Name)
	})
}

// createTag adds req to device. Callers run it inside a sub-transaction.
func createTag(device backend.HmiSoftware, req *TagRequest) (backend.HmiTag, error) {
	conn, err := connectionFor(device, req.Connection)
	if err != nil {
		return nil, err
	}
	if req.Folder != "" {
		if _, err := ensureFolder(device, req.Folder); err != nil {
			return nil, err
		}
	}
	tag, err := device.Tags().Create(req.Name, req.Folder)
	if err != nil {
		return nil, err
	}
	if err := tag.SetConnection(conn); err != nil {
		return nil, err
	}
	if err := tag.SetPlcTag(NormalizePlcTag(req.PlcTag)); err != nil {
		return nil, err
	}
	return tag, nil
}

// connectionFor returns the name of device's connection to partner.
func connectionFor(device backend.HmiSoftware, partner string) (string, error) {
	conns, err := device.Connections()
	if err != nil {
		return "", err
	}
	for _, c := range conns {
		if c.Partner == partner {
			return c.Name, nil
		}
	}
	return "", terr.Newf(terr.LookupFailed, "%s has no connection to %s", device.Name(), partner)
}

// deleteRaisedAlarms removes the discrete alarms whose raised-state tag is tag.
func deleteRaisedAlarms(device backend.HmiSoftware, tag string) ([]string, error) {
	alarms, err := device.DiscreteAlarms().All()
	if err != nil {
		return nil, err
	}
	var deleted []string
	for _, a := range alarms {
		if a.RaisedStateTag() != tag {
			continue
		}
		name := a.Name()
		if err := a.Delete(); err != nil {
			return deleted, err
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}
