// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package tagsource

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/unified"
)

const tagFile = `
device: HMI_RT_1
tags:
  - connection: PLC_1
    plc_tag: '"Motor data".Speed'
    name: Speed
    folder: Motors
  - device: HMI_RT_2
    connection: PLC_2
    plc_tag: Level
    name: Level
alarms:
  - class: Alarm
    tag: Overheat
    origin: PLC_1
    text:
      en-US: Motor overheated
      de-DE: Motor überhitzt
`

func TestDecode(t *testing.T) {
	set, err := Decode(strings.NewReader(tagFile))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := &Set{
		Tags: []unified.TagRequest{
			{Device: "HMI_RT_1", Connection: "PLC_1", PlcTag: `"Motor data".Speed`, Name: "Speed", Folder: "Motors"},
			{Device: "HMI_RT_2", Connection: "PLC_2", PlcTag: "Level", Name: "Level"},
		},
		Alarms: []unified.AlarmRequest{{
			Device:       "HMI_RT_1",
			ClassName:    "Alarm",
			TagName:      "Overheat",
			Origin:       "PLC_1",
			Descriptions: map[string]string{"en-US": "Motor overheated", "de-DE": "Motor überhitzt"},
		}},
	}
	if diff := cmp.Diff(want, set); diff != "" {
		t.Errorf("Decode() mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"HMI_RT_1", "HMI_RT_2"}, set.Devices()); diff != "" {
		t.Errorf("Devices() mismatch (-want +got):\n%s", diff)
	}
	tags, alarms := set.ForDevice("HMI_RT_2")
	if len(tags) != 1 || tags[0].Name != "Level" || len(alarms) != 0 {
		t.Errorf("ForDevice(HMI_RT_2) = %v, %v", tags, alarms)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"unknown key", "tags:\n  - device: A\n    plc_tag: x\n    name: y\n    colour: red\n"},
		{"missing device", "tags:\n  - plc_tag: x\n    name: y\n"},
		{"missing name", "device: A\ntags:\n  - plc_tag: x\n"},
		{"alarm without tag", "device: A\nalarms:\n  - class: Alarm\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(strings.NewReader(tt.input)); !terr.IsKind(err, terr.InvalidInput) {
				t.Errorf("Decode() error = %v, want invalid_input", err)
			}
		})
	}
}

// fakeRows serves string rows through pgx.Rows.
type fakeRows struct {
	data [][]string
	pos  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.pos-1]
	if len(dest) != len(row) {
		return fmt.Errorf("scan %d values into %d targets", len(row), len(dest))
	}
	for i, d := range dest {
		p, ok := d.(*string)
		if !ok {
			return fmt.Errorf("target %d is %T", i, d)
		}
		*p = row[i]
	}
	return nil
}

func (r *fakeRows) Values() ([]any, error) {
	row := r.data[r.pos-1]
	out := make([]any, len(row))
	for i, v := range row {
		out[i] = v
	}
	return out, nil
}

// fakeQuerier answers by the first table name found in the statement.
type fakeQuerier struct {
	tables  map[string][][]string
	columns map[string][]string
	args    [][]any
}

func (q *fakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.args = append(q.args, args)
	if strings.Contains(sql, "information_schema.columns") {
		var rows [][]string
		for _, c := range q.columns[args[1].(string)] {
			rows = append(rows, []string{c})
		}
		return &fakeRows{data: rows}, nil
	}
	for name, rows := range q.tables {
		if strings.Contains(sql, `"`+name+`"`) {
			return &fakeRows{data: rows}, nil
		}
	}
	return nil, fmt.Errorf("unexpected query %s", sql)
}

func TestDBLoad(t *testing.T) {
	q := &fakeQuerier{tables: map[string][][]string{
		"hmi_tags": {
			{"HMI_RT_1", "PLC_1", `"Motor data".Speed`, "Speed", ""},
			{"HMI_RT_1", "PLC_1", "Level", "Level", "Tanks"},
		},
		"hmi_alarms": {
			{"HMI_RT_1", "Alarm", "Overheat", "PLC_1", "de-DE", "Motor überhitzt"},
			{"HMI_RT_1", "Alarm", "Overheat", "PLC_1", "en-US", "Motor overheated"},
			{"HMI_RT_1", "Warning", "Level", "", "en-US", "Level low"},
		},
	}}
	db := NewDB(q, "plant.hmi_tags", "hmi_alarms")

	set, err := db.Load(context.Background(), "HMI_RT_1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := &Set{
		Tags: []unified.TagRequest{
			{Device: "HMI_RT_1", Connection: "PLC_1", PlcTag: `"Motor data".Speed`, Name: "Speed"},
			{Device: "HMI_RT_1", Connection: "PLC_1", PlcTag: "Level", Name: "Level", Folder: "Tanks"},
		},
		Alarms: []unified.AlarmRequest{
			{
				Device: "HMI_RT_1", ClassName: "Alarm", TagName: "Overheat", Origin: "PLC_1",
				Descriptions: map[string]string{"de-DE": "Motor überhitzt", "en-US": "Motor overheated"},
			},
			{
				Device: "HMI_RT_1", ClassName: "Warning", TagName: "Level",
				Descriptions: map[string]string{"en-US": "Level low"},
			},
		},
	}
	if diff := cmp.Diff(want, set); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]any{{"HMI_RT_1"}, {"HMI_RT_1"}}, q.args); diff != "" {
		t.Errorf("query args mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckSchema(t *testing.T) {
	q := &fakeQuerier{columns: map[string][]string{
		"hmi_tags":   TagColumns,
		"hmi_alarms": {"device", "class", "tag"},
	}}
	err := NewDB(q, "hmi_tags", "hmi_alarms").CheckSchema(context.Background())
	if !terr.IsKind(err, terr.InvalidInput) || !strings.Contains(err.Error(), "origin, language, text") {
		t.Errorf("CheckSchema() error = %v", err)
	}

	q.columns["hmi_alarms"] = AlarmColumns
	if err := NewDB(q, "hmi_tags", "hmi_alarms").CheckSchema(context.Background()); err != nil {
		t.Errorf("CheckSchema() error = %v", err)
	}
}

func TestIdent(t *testing.T) {
	if got := ident("plant.hmi_tags"); got != `"plant"."hmi_tags"` {
		t.Errorf("ident() = %s", got)
	}
}
