// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package unified

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"tiasync/cli/internal/backend"
	"tiasync/cli/internal/backend/memory"
	terr "tiasync/cli/internal/errors"
)

const hmiProject = `
processes:
  - id: 1
    project: /proj/Line.ap17
projects:
  - path: /proj/Line.ap17
    version: "17.0"
    languages: [en-US, de-DE]
    devices:
      - name: Panel
        items:
          - name: HMI_RT_1
            unified:
              name: HMI_RT_1
              alarm_classes: [Alarm, Warning, Overheat]
              connections:
                - {name: HMI_Connection_1, partner: PLC_1}
                - {name: HMI_Connection_2, partner: PLC_2}
              tag_table_groups:
                - name: Machines
                  items: [Conveyor]
                  groups:
                    - name: Deep
                      items: [Lift]
              tags:
                - {name: Speed_old, plc_tag: Motor.Speed Value, connection: HMI_Connection_1}
                - {name: Keep, plc_tag: Other.Thing, connection: HMI_Connection_1}
                - {name: Speed_dup, plc_tag: 'Motor."Speed Value"', connection: HMI_Connection_1}
                - {name: Temp, plc_tag: Valve.Open, connection: HMI_Connection_2}
              alarms:
                - {name: Alarm_dup, raised_state_tag: Speed_dup, class: Alarm}
                - {name: Alarm_keep, raised_state_tag: Keep, class: Warning}
`

type fixture struct {
	portal  *memory.Portal
	project backend.Project
	device  backend.HmiSoftware
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	p, err := memory.Load(strings.NewReader(hmiProject))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	pr, err := p.Attach(context.Background(), 1)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	devs, _ := pr.Devices()
	items, _ := devs[0].Items()
	sw, _ := items[0].Software()
	return &fixture{portal: p, project: pr, device: sw.(backend.HmiSoftware)}
}

func (f *fixture) session(t *testing.T) *Session {
	t.Helper()
	ea, err := f.portal.ExclusiveAccess("tiasync")
	if err != nil {
		t.Fatalf("ExclusiveAccess() error = %v", err)
	}
	s := NewSession(ea, f.project)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type tagState struct {
	Name, PlcTag, Connection, Table string
}

func (f *fixture) tags(t *testing.T) []tagState {
	t.Helper()
	all, err := f.device.Tags().All()
	if err != nil {
		t.Fatalf("Tags().All() error = %v", err)
	}
	var out []tagState
	for _, tag := range all {
		out = append(out, tagState{tag.Name(), tag.PlcTag(), tag.Connection(), tag.TagTable()})
	}
	return out
}

func (f *fixture) alarmNames(t *testing.T) []string {
	t.Helper()
	all, err := f.device.DiscreteAlarms().All()
	if err != nil {
		t.Fatalf("DiscreteAlarms().All() error = %v", err)
	}
	var out []string
	for _, a := range all {
		out = append(out, a.Name())
	}
	return out
}

var desired = []TagRequest{
	{Device: "HMI_RT_1", Connection: "PLC_1", PlcTag: "Motor.Speed Value", Name: "Speed"},
	{Device: "HMI_RT_1", Connection: "PLC_2", PlcTag: "Valve.Open", Name: "Temp"},
	{Device: "HMI_RT_1", Connection: "PLC_1", PlcTag: "Pump.Run State", Name: "PumpRun", Folder: "Pumps"},
}

func TestNormalizePlcTag(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Motor.Speed Value.Raw", `Motor."Speed Value".Raw`},
		{"Motor.Speed", "Motor.Speed"},
		{"Tank Level", "Tank Level"},
		{`Motor."Speed Value".Raw`, `Motor."Speed Value".Raw`},
		{`"Motor DB".Set Point`, `"Motor DB"."Set Point"`},
		{`Motor."A b.c d"`, `Motor."A b.c d"`},
		{"", ""},
	}
	for _, tt := range tests {
		got := NormalizePlcTag(tt.in)
		if got != tt.want {
			t.Errorf("NormalizePlcTag(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := NormalizePlcTag(got); again != got {
			t.Errorf("NormalizePlcTag not idempotent: %q -> %q", got, again)
		}
	}
}

func TestSyncTags(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)

	report, err := SyncTags(s, f.device, append([]TagRequest(nil), desired...))
	if err != nil {
		t.Fatalf("SyncTags() error = %v", err)
	}
	want := &Report{
		Created:       []string{"PumpRun"},
		Renamed:       []string{"Speed_old -> Speed"},
		Deleted:       []string{"Speed_dup"},
		AlarmsDeleted: []string{"Alarm_dup"},
		Unchanged:     2,
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	wantTags := []tagState{
		{"Speed", "Motor.Speed Value", "HMI_Connection_1", memory.DefaultTagTable},
		{"Keep", "Other.Thing", "HMI_Connection_1", memory.DefaultTagTable},
		{"Temp", "Valve.Open", "HMI_Connection_2", memory.DefaultTagTable},
		{"PumpRun", `Pump."Run State"`, "HMI_Connection_1", "Pumps"},
	}
	if diff := cmp.Diff(wantTags, f.tags(t)); diff != "" {
		t.Errorf("tags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Alarm_keep"}, f.alarmNames(t)); diff != "" {
		t.Errorf("alarms mismatch (-want +got):\n%s", diff)
	}
}

func TestSyncTagsConverges(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)

	if _, err := SyncTags(s, f.device, append([]TagRequest(nil), desired...)); err != nil {
		t.Fatalf("first SyncTags() error = %v", err)
	}
	before := f.tags(t)
	report, err := SyncTags(s, f.device, append([]TagRequest(nil), desired...))
	if err != nil {
		t.Fatalf("second SyncTags() error = %v", err)
	}
	if report.Changes() != 0 {
		t.Errorf("second run changed %d tags: %+v", report.Changes(), report)
	}
	if diff := cmp.Diff(before, f.tags(t)); diff != "" {
		t.Errorf("second run modified tags (-before +after):\n%s", diff)
	}
}

func TestSyncTagsLeavesUnclaimedTags(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)

	report, err := SyncTags(s, f.device, nil)
	if err != nil {
		t.Fatalf("SyncTags() error = %v", err)
	}
	if report.Changes() != 0 || report.Unchanged != 4 {
		t.Errorf("SyncTags(nil) report = %+v, want 4 unchanged", report)
	}
}

func TestSyncTagsLookupFailure(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)

	_, err := SyncTags(s, f.device, []TagRequest{
		{Connection: "PLC_9", PlcTag: "Fan.On", Name: "Fan", Folder: "Fans"},
	})
	if !terr.IsKind(err, terr.LookupFailed) {
		t.Fatalf("SyncTags() error = %v, want lookup_failed", err)
	}
	if !terr.IsKind(err, terr.TransactionFailed) {
		t.Errorf("SyncTags() error = %v, want transaction_failed in chain", err)
	}
	for _, tag := range f.tags(t) {
		if tag.Name == "Fan" {
			t.Error("tag from aborted sub-transaction survived")
		}
	}

	// the session is still usable after the abort
	created, err := EnsureTagFolder(s, f.device, "Fans")
	if err != nil || !created {
		t.Errorf("EnsureTagFolder() after abort = %v, %v; want true, nil", created, err)
	}
}

func TestSyncTagsRejectsConflictingRequests(t *testing.T) {
	tests := []struct {
		name     string
		requests []TagRequest
	}{
		{"same PLC tag", []TagRequest{
			{Connection: "PLC_1", PlcTag: "A.B c", Name: "One"},
			{Connection: "PLC_1", PlcTag: `A."B c"`, Name: "Two"},
		}},
		{"same name", []TagRequest{
			{Connection: "PLC_1", PlcTag: "Motor.Speed Value", Name: "Speed"},
			{Connection: "PLC_1", PlcTag: "Line.Count", Name: "Speed"},
		}},
		{"name of an untouched tag", []TagRequest{
			{Connection: "PLC_1", PlcTag: "Motor.Speed Value", Name: "Speed"},
			{Connection: "PLC_1", PlcTag: "Line.Count", Name: "Temp"},
		}},
	}
	for _, tt := range tests {
		f := newFixture(t)
		before := f.tags(t)
		s := f.session(t)
		_, err := SyncTags(s, f.device, tt.requests)
		if !terr.IsKind(err, terr.InvalidInput) {
			t.Errorf("%s: SyncTags() error = %v, want invalid_input", tt.name, err)
		}
		if diff := cmp.Diff(before, f.tags(t)); diff != "" {
			t.Errorf("%s: tags changed despite rejection (-before +after):\n%s", tt.name, diff)
		}
	}
}

func TestSyncTagsSwapsNames(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)

	report, err := SyncTags(s, f.device, []TagRequest{
		{Connection: "PLC_1", PlcTag: "Motor.Speed Value", Name: "Keep"},
		{Connection: "PLC_1", PlcTag: "Other.Thing", Name: "Speed_old"},
	})
	if err != nil {
		t.Fatalf("SyncTags() error = %v", err)
	}
	if len(report.Renamed) != 2 {
		t.Errorf("Renamed = %v, want 2 entries", report.Renamed)
	}
	got := map[string]string{}
	for _, tag := range f.tags(t) {
		got[tag.PlcTag] = tag.Name
	}
	if got["Motor.Speed Value"] != "Keep" || got["Other.Thing"] != "Speed_old" {
		t.Errorf("names after swap = %v", got)
	}
}

func TestSyncTag(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)

	err := SyncTag(s, f.device, TagRequest{Connection: "PLC_2", PlcTag: "Motor.Speed Value", Name: "Speed"})
	if err != nil {
		t.Fatalf("SyncTag() error = %v", err)
	}
	var speed []tagState
	for _, tag := range f.tags(t) {
		if tag.PlcTag == `Motor."Speed Value"` {
			speed = append(speed, tag)
		}
	}
	want := []tagState{{"Speed", `Motor."Speed Value"`, "HMI_Connection_2", memory.DefaultTagTable}}
	if diff := cmp.Diff(want, speed); diff != "" {
		t.Errorf("SyncTag() tags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Alarm_keep"}, f.alarmNames(t)); diff != "" {
		t.Errorf("alarms mismatch (-want +got):\n%s", diff)
	}

	if err := SyncTag(s, f.device, TagRequest{Connection: "PLC_1", PlcTag: "Other.Thing", Name: "Kept"}); err != nil {
		t.Fatalf("SyncTag(single match) error = %v", err)
	}
	if diff := cmp.Diff([]string{}, f.alarmNames(t), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("alarm raised by Keep survived (-want +got):\n%s", diff)
	}
}

func TestSyncAlarm(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)

	req := AlarmRequest{
		ClassName:    "Alarm",
		TagName:      "Pressure",
		Origin:       "Pump 1",
		Descriptions: map[string]string{"en-US": "Pressure high"},
	}
	if err := SyncAlarm(s, f.device, req); err != nil {
		t.Fatalf("SyncAlarm() error = %v", err)
	}
	// a second call updates in place
	req.ClassName = "Warning"
	if err := SyncAlarm(s, f.device, req); err != nil {
		t.Fatalf("second SyncAlarm() error = %v", err)
	}

	a, err := f.device.DiscreteAlarms().Find("Pressure")
	if err != nil || a == nil {
		t.Fatalf("Find() = %v, %v", a, err)
	}
	if a.RaisedStateTag() != "Pressure" || a.AlarmClass() != "Warning" || a.Origin() != "Pump 1" {
		t.Errorf("alarm = %s/%s/%s", a.RaisedStateTag(), a.AlarmClass(), a.Origin())
	}
	items, _ := a.EventText()
	texts := map[string]string{}
	for _, it := range items {
		texts[it.Language()] = it.Text()
	}
	want := map[string]string{
		"en-US": "<body><p>Pressure high</p></body>",
		"de-DE": "<body><p></p></body>",
	}
	if diff := cmp.Diff(want, texts); diff != "" {
		t.Errorf("event text mismatch (-want +got):\n%s", diff)
	}
	if n := len(f.alarmNames(t)); n != 3 {
		t.Errorf("got %d alarms, want 3", n)
	}
}

func TestSyncAlarmUnknownClass(t *testing.T) {
	f := newFixture(t)
	s := f.session(t)

	err := SyncAlarm(s, f.device, AlarmRequest{ClassName: "Info", TagName: "Pressure"})
	if !terr.IsKind(err, terr.LookupFailed) {
		t.Fatalf("SyncAlarm() error = %v, want lookup_failed", err)
	}
	if a, _ := f.device.DiscreteAlarms().Find("Pressure"); a != nil {
		t.Error("alarm created despite unknown class")
	}
}

func TestEnsureTagFolder(t *testing.T) {
	tests := []struct {
		name        string
		folder      string
		wantCreated bool
	}{
		{name: "root default table", folder: memory.DefaultTagTable},
		{name: "table in group", folder: "Conveyor"},
		{name: "table in nested group", folder: "Lift"},
		{name: "missing table", folder: "Pumps", wantCreated: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			s := f.session(t)
			created, err := EnsureTagFolder(s, f.device, tt.folder)
			if err != nil {
				t.Fatalf("EnsureTagFolder() error = %v", err)
			}
			if created != tt.wantCreated {
				t.Errorf("EnsureTagFolder() = %v, want %v", created, tt.wantCreated)
			}
			again, _ := EnsureTagFolder(s, f.device, tt.folder)
			if again {
				t.Error("second EnsureTagFolder() created again")
			}
		})
	}
}

func TestResolveAlarmClass(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		class, tag, def string
		want            string
		wantErr         bool
	}{
		{"Warning", "Overheat", "Alarm", "Warning", false},
		{"Missing", "Overheat", "Alarm", "Overheat", false},
		{"Missing", "Nope", "Alarm", "Alarm", false},
		{"Missing", "Nope", "Gone", "", true},
	}
	for _, tt := range tests {
		got, err := ResolveAlarmClass(f.device, tt.class, tt.tag, tt.def)
		if (err != nil) != tt.wantErr {
			t.Errorf("ResolveAlarmClass(%q, %q, %q) error = %v", tt.class, tt.tag, tt.def, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ResolveAlarmClass(%q, %q, %q) = %q, want %q", tt.class, tt.tag, tt.def, got, tt.want)
		}
	}
}

func TestSessionClose(t *testing.T) {
	f := newFixture(t)
	ea, err := f.portal.ExclusiveAccess("tiasync")
	if err != nil {
		t.Fatalf("ExclusiveAccess() error = %v", err)
	}
	s := NewSession(ea, f.project)
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := s.Do("late", func() error { return nil }); !terr.IsKind(err, terr.TransactionFailed) {
		t.Errorf("Do() after Close error = %v, want transaction_failed", err)
	}
	next, err := f.portal.ExclusiveAccess("again")
	if err != nil {
		t.Fatalf("ExclusiveAccess() after Close error = %v", err)
	}
	_ = next.Dispose()
}
