// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package export

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"tiasync/cli/internal/backend"
	"tiasync/cli/internal/backend/memory"
	"tiasync/cli/internal/walker"
)

const project = `
processes:
  - id: 1
    project: /proj/Line.ap17
projects:
  - path: /proj/Line.ap17
    version: "17.0"
    languages: [en-US]
    devices:
      - name: PLC_1
        items:
          - name: PLC_1
            plc:
              name: PLC_1
              blocks:
                - {name: Startup, number: 100, type: OB}
              groups:
                - name: Main
                  blocks:
                    - {name: Block1, number: 1, type: FC}
                    - {name: Block2, number: 2, type: FB}
                  groups:
                    - name: Sub
                      blocks:
                        - {name: Deep, number: 3, type: FC}
                      groups:
                        - name: Leaf
                          blocks:
                            - {name: Deeper, number: 4, type: GlobalDB}
                    - name: Other
                      blocks:
                        - {name: Side, number: 5, type: FC}
`

type recorder struct{ paths []string }

func (r *recorder) notify(p string) { r.paths = append(r.paths, p) }

func newExporter(t *testing.T) (*Exporter, *recorder, string) {
	t.Helper()
	portal, err := memory.Load(strings.NewReader(project))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	pr, err := portal.Attach(context.Background(), 1)
	if err != nil {
		t.Fatalf("Attach() error = %v", err)
	}
	dir := t.TempDir()
	rec := &recorder{}
	e := New(dir, func() ([]backend.PlcSoftware, error) {
		_, plcs, err := walker.Walk(pr)
		return plcs, err
	})
	e.Notify = rec.notify
	return e, rec, dir
}

func rel(t *testing.T, base string, paths []string) []string {
	t.Helper()
	var out []string
	for _, p := range paths {
		r, err := filepath.Rel(base, p)
		if err != nil {
			t.Fatalf("Rel(%s) error = %v", p, err)
		}
		out = append(out, filepath.ToSlash(r))
	}
	return out
}

func TestExportBlock(t *testing.T) {
	e, rec, dir := newExporter(t)

	got, err := e.Export("PLC_1/Main/Block1")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	want := []string{"UserFiles/Exports/Main/Block1.xml"}
	if diff := cmp.Diff(want, rel(t, dir, got)); diff != "" {
		t.Errorf("Export() paths mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(got, rec.paths); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(got[0]); err != nil {
		t.Errorf("exported file missing: %v", err)
	}
}

func TestExportOverwrites(t *testing.T) {
	e, _, _ := newExporter(t)
	first, err := e.Export("PLC_1/Startup")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if err := os.WriteFile(first[0], []byte("stale"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Export("PLC_1/Startup"); err != nil {
		t.Fatalf("second Export() error = %v", err)
	}
	data, _ := os.ReadFile(first[0])
	if strings.Contains(string(data), "stale") {
		t.Error("existing export was not replaced")
	}
}

func TestExportGroup(t *testing.T) {
	e, rec, dir := newExporter(t)

	got, err := e.Export("PLC_1/Main")
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	want := []string{
		"UserFiles/Exports/Main/Block1.xml",
		"UserFiles/Exports/Main/Block2.xml",
		"UserFiles/Exports/Main/Sub/Deep.xml",
		"UserFiles/Exports/Main/Other/Side.xml",
		"UserFiles/Exports/Main/Sub/Leaf/Deeper.xml",
	}
	if diff := cmp.Diff(want, rel(t, dir, got)); diff != "" {
		t.Errorf("Export() paths mismatch (-want +got):\n%s", diff)
	}
	if len(rec.paths) != len(want) {
		t.Errorf("got %d notifications, want %d", len(rec.paths), len(want))
	}
}

func TestExportUnresolved(t *testing.T) {
	tests := []string{
		"PLC_2/Main/Block1",
		"PLC_1/Missing/Block1",
		"PLC_1/Main/Missing",
		"PLC_1",
		"",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			e, rec, dir := newExporter(t)
			got, err := e.Export(path)
			if err != nil {
				t.Fatalf("Export() error = %v", err)
			}
			if len(got) != 0 || len(rec.paths) != 0 {
				t.Errorf("Export(%q) = %v, want nothing", path, got)
			}
			if _, err := os.Stat(filepath.Join(dir, UserFolder)); !os.IsNotExist(err) {
				t.Errorf("UserFiles created for unresolved path: %v", err)
			}
		})
	}
}

func TestExportAsync(t *testing.T) {
	e, rec, _ := newExporter(t)
	res := <-e.ExportAsync("PLC_1/Main/Sub")
	if res.Err != nil {
		t.Fatalf("ExportAsync() error = %v", res.Err)
	}
	if len(res.Paths) != 2 {
		t.Errorf("ExportAsync() wrote %d files, want 2", len(res.Paths))
	}
	if diff := cmp.Diff(res.Paths, rec.paths); diff != "" {
		t.Errorf("notifications mismatch (-want +got):\n%s", diff)
	}
}

func TestExportBlockNode(t *testing.T) {
	e, rec, dir := newExporter(t)
	portal, _ := memory.Load(strings.NewReader(project))
	pr, _ := portal.Attach(context.Background(), 1)
	nodes, _, err := walker.Walk(pr)
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}
	block := nodes[0].Children[0]

	got, err := e.ExportBlock(block, "PLC_1_", "")
	if err != nil {
		t.Fatalf("ExportBlock() error = %v", err)
	}
	if want := filepath.Join(dir, "UserFiles", "PLC_1_Startup.xml"); got != want {
		t.Errorf("ExportBlock() = %q, want %q", got, want)
	}

	explicit := filepath.Join(t.TempDir(), "custom.xml")
	got, err = e.ExportBlock(block, "", explicit)
	if err != nil || got != explicit {
		t.Errorf("ExportBlock(explicit) = %q, %v; want %q", got, err, explicit)
	}
	if len(rec.paths) != 2 {
		t.Errorf("got %d notifications, want 2", len(rec.paths))
	}

	if _, err := e.ExportBlock(nodes[0], "", ""); err == nil {
		t.Error("ExportBlock(non-block) expected error")
	}
}
