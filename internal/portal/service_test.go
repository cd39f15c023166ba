// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package portal

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tiasync/cli/internal/backend/memory"
	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/resolver"
	"tiasync/cli/internal/unified"
)

const snapshot = `
processes:
  - id: 10
    project: Line.ap17
  - id: 11
projects:
  - path: Line.ap17
    version: "17.0"
    languages: [en-US, fr-FR]
    devices:
      - name: PLC_1
        items:
          - name: PLC_1
            plc:
              name: PLC_1
              groups:
                - name: Main
                  blocks:
                    - {name: Block1, number: 1, type: FC}
      - name: Panel
        items:
          - name: HMI_RT_1
            unified:
              name: HMI_RT_1
              alarm_classes: [Alarm]
              connections:
                - {name: HMI_Connection_1, partner: PLC_1}
  - path: Server.als17
    version: "17.0"
    multiuser: true
    languages: [en-US]
`

func newService(t *testing.T) (*Service, string) {
	t.Helper()
	dir := t.TempDir()
	snapPath := filepath.Join(dir, "plant.yaml")
	if err := os.WriteFile(snapPath, []byte(snapshot), 0o644); err != nil {
		t.Fatal(err)
	}
	be, err := memory.LoadFile(snapPath)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	reg := &resolver.MemoryRegistry{}
	lib := filepath.Join(dir, "Siemens.Engineering.dll")
	if err := os.WriteFile(lib, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	reg.Set(resolver.BasePath+`\17.0\PublicAPI\17.0.0.0`, "Siemens.Engineering", lib)
	return NewService(be, resolver.New(reg)), dir
}

func TestInitialize(t *testing.T) {
	s, _ := newService(t)
	if err := s.Initialize("V17.0", "V17.0"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	if got := s.EngineeringVersion(); got != "17.0" {
		t.Errorf("EngineeringVersion() = %q, want 17.0", got)
	}
	if diff := cmp.Diff([]string{"17.0"}, s.APIVersions("")); diff != "" {
		t.Errorf("APIVersions() mismatch (-want +got):\n%s", diff)
	}

	if err := s.Initialize("16.0", "16.0"); !terr.IsKind(err, terr.NotFound) {
		t.Errorf("Initialize(unknown) error = %v, want not_found", err)
	}
	if got := s.EngineeringVersion(); got != "" {
		t.Errorf("EngineeringVersion() after failed Initialize = %q, want empty", got)
	}
}

func TestInitializeNotInstalled(t *testing.T) {
	s := NewService(nil, resolver.New(&resolver.MemoryRegistry{}))
	if err := s.Initialize("17.0", "17.0"); !terr.IsKind(err, terr.NotInstalled) {
		t.Errorf("Initialize() error = %v, want not_installed", err)
	}
}

func TestOpenProject(t *testing.T) {
	s, dir := newService(t)
	ctx := context.Background()

	ok, err := s.OpenProject(ctx, filepath.Join(dir, "Line.ap17"))
	if ok || err != nil {
		t.Fatalf("OpenProject() without version = %v, %v; want false, nil", ok, err)
	}

	if err := s.Initialize("17.0", "17.0"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	var opened []string
	s.OnProjectOpened = func(ps ProjectSession) { opened = append(opened, ps.Project.Name()) }

	ok, err = s.OpenProject(ctx, filepath.Join(dir, "Line.ap17"))
	if !ok || err != nil {
		t.Fatalf("OpenProject() = %v, %v; want true, nil", ok, err)
	}
	if s.ProjectDir() != dir || s.ProjectName() != "Line" {
		t.Errorf("ProjectDir/Name = %q/%q", s.ProjectDir(), s.ProjectName())
	}
	if diff := cmp.Diff([]string{"en-US", "fr-FR"}, s.Languages()); diff != "" {
		t.Errorf("Languages() mismatch (-want +got):\n%s", diff)
	}

	ok, err = s.OpenProject(ctx, filepath.Join(dir, "Server.als17"))
	if ok || err != nil {
		t.Errorf("second OpenProject() = %v, %v; want false, nil", ok, err)
	}
	if diff := cmp.Diff([]string{"Line"}, opened); diff != "" {
		t.Errorf("OnProjectOpened calls mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenProjectMultiuser(t *testing.T) {
	s, dir := newService(t)
	if err := s.Initialize("17.0", "17.0"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	ok, err := s.OpenProject(context.Background(), filepath.Join(dir, "Server.als17"))
	if !ok || err != nil {
		t.Fatalf("OpenProject() = %v, %v", ok, err)
	}
	if ps := s.Session(); ps == nil || !ps.Multiuser {
		t.Errorf("Session() = %+v, want multiuser", ps)
	}
}

func TestOpenProjectExtension(t *testing.T) {
	s, dir := newService(t)
	if err := s.Initialize("17.0", "17.0"); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	_, err := s.OpenProject(context.Background(), filepath.Join(dir, "Line.ap16"))
	if !terr.IsKind(err, terr.InvalidInput) {
		t.Errorf("OpenProject(.ap16) error = %v, want invalid_input", err)
	}
}

func TestVersionSuffix(t *testing.T) {
	tests := map[string]string{"17.0": "17", "15.1": "15_1", "16.0": "16"}
	for in, want := range tests {
		if got := versionSuffix(in); got != want {
			t.Errorf("versionSuffix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConnect(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	procs, err := s.Processes(ctx)
	if err != nil || len(procs) != 2 {
		t.Fatalf("Processes() = %v, %v", procs, err)
	}
	if err := s.Connect(ctx, procs[1]); !terr.IsKind(err, terr.NoProject) {
		t.Errorf("Connect(idle) error = %v, want no_project", err)
	}
	if err := s.Connect(ctx, procs[0]); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Connect(ctx, procs[0]); !terr.IsKind(err, terr.ProjectOpen) {
		t.Errorf("second Connect() error = %v, want project_open", err)
	}
}

func TestExportThroughService(t *testing.T) {
	s, dir := newService(t)
	ctx := context.Background()
	procs, _ := s.Processes(ctx)
	if err := s.Connect(ctx, procs[0]); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	var notified []string
	s.OnExported = func(p string) { notified = append(notified, p) }

	// no Devices call yet: the PLC software is harvested on demand
	paths, err := s.Export("PLC_1/Main/Block1")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	want := filepath.Join(dir, "UserFiles", "Exports", "Main", "Block1.xml")
	if diff := cmp.Diff([]string{want}, paths); diff != "" {
		t.Errorf("Export() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{want}, notified); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}

	res := <-s.ExportAsync("PLC_1/Main")
	if res.Err != nil || len(res.Paths) != 1 {
		t.Errorf("ExportAsync() = %+v", res)
	}
}

func TestExportWithoutProject(t *testing.T) {
	s, _ := newService(t)
	if _, err := s.Export("PLC_1/Main"); !terr.IsKind(err, terr.NoProject) {
		t.Errorf("Export() error = %v, want no_project", err)
	}
	res := <-s.ExportAsync("PLC_1/Main")
	if !terr.IsKind(res.Err, terr.NoProject) {
		t.Errorf("ExportAsync() error = %v, want no_project", res.Err)
	}
}

func TestExclusiveAccessLifecycle(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	if _, err := s.BeginExclusiveAccess("sync"); !terr.IsKind(err, terr.NoProject) {
		t.Errorf("BeginExclusiveAccess() without project error = %v", err)
	}

	procs, _ := s.Processes(ctx)
	if err := s.Connect(ctx, procs[0]); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	first, err := s.BeginExclusiveAccess("sync")
	if err != nil {
		t.Fatalf("BeginExclusiveAccess() error = %v", err)
	}
	second, err := s.BeginExclusiveAccess("more")
	if err != nil || second != first {
		t.Errorf("BeginExclusiveAccess() reuse = %p, %v; want %p", second, err, first)
	}

	hmi, err := s.HmiDevice("HMI_RT_1")
	if err != nil {
		t.Fatalf("HmiDevice() error = %v", err)
	}
	err = unified.SyncAlarm(first, hmi, unified.AlarmRequest{ClassName: "Alarm", TagName: "Overheat"})
	if err != nil {
		t.Fatalf("SyncAlarm() error = %v", err)
	}

	if err := s.EndExclusiveAccess(); err != nil {
		t.Fatalf("EndExclusiveAccess() error = %v", err)
	}
	third, err := s.BeginExclusiveAccess("again")
	if err != nil || third == first {
		t.Errorf("BeginExclusiveAccess() after end = %p, %v", third, err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestHmiDeviceNotFound(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()
	procs, _ := s.Processes(ctx)
	_ = s.Connect(ctx, procs[0])
	if _, err := s.HmiDevice("PLC_1"); !terr.IsKind(err, terr.NotFound) {
		t.Errorf("HmiDevice(PLC_1) error = %v, want not_found", err)
	}
}
