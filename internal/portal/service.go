// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package portal provides the adapter service: version initialization, process
// discovery, attaching to or opening a project, device enumeration, block export
// and the exclusive-access session used by the HMI synchronizer.
package portal

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/mod/semver"

	"tiasync/cli/internal/backend"
	"tiasync/cli/internal/composition"
	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/export"
	"tiasync/cli/internal/resolver"
	"tiasync/cli/internal/unified"
	"tiasync/cli/internal/walker"
)

// ProjectSession is the project the service currently works on.
type ProjectSession struct {
	Project           backend.Project
	Multiuser         bool
	ReferenceLanguage string
	Languages         []string
}

// Service is one adapter instance. It holds at most one project session.
type Service struct {
	be  backend.Portal
	res *resolver.Resolver

	// OnProjectOpened is called after Connect or OpenProject yields a project.
	OnProjectOpened func(ProjectSession)
	// OnExported is called for every written export file.
	OnExported func(path string)
	// ExportFolder overrides export.DefaultFolder.
	ExportFolder string

	mu          sync.Mutex
	engineering string
	api         string
	session     *ProjectSession
	plcs        []backend.PlcSoftware
	access      *unified.Session
}

// NewService returns a service driving be, resolving versions through res.
func NewService(be backend.Portal, res *resolver.Resolver) *Service {
	return &Service{be: be, res: res}
}

// Initialize selects the engineering and API versions. The engineering version is
// kept only when a library resolves for the pair; otherwise it is cleared and the
// resolver's error returned.
func (s *Service) Initialize(engineeringVersion, apiVersion string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engineering, s.api = "", ""
	if !s.res.Installed() {
		return terr.Newf(terr.NotInstalled, "no engineering tool %s or newer is installed", resolver.MinimumVersion)
	}
	if _, err := s.res.LibraryPath(engineeringVersion, apiVersion); err != nil {
		return err
	}
	s.engineering = strings.TrimLeft(engineeringVersion, "Vv")
	s.api = strings.TrimLeft(apiVersion, "Vv")
	return nil
}

// EngineeringVersion returns the initialized engineering version, empty when none.
func (s *Service) EngineeringVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engineering
}

// APIVersion returns the initialized API version, empty when none.
func (s *Service) APIVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.api
}

// EngineeringVersions lists installed engineering versions.
func (s *Service) EngineeringVersions() []string { return s.res.EngineeringVersions() }

// APIVersions lists API versions for engineeringVersion, or for the initialized
// version when it is empty.
func (s *Service) APIVersions(engineeringVersion string) []string {
	if engineeringVersion == "" {
		engineeringVersion = s.EngineeringVersion()
	}
	if engineeringVersion == "" {
		return nil
	}
	return s.res.APIVersions(engineeringVersion)
}

// Processes lists running instances of the engineering tool.
func (s *Service) Processes(ctx context.Context) ([]backend.Process, error) {
	procs, err := s.be.Processes(ctx)
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "list processes", err)
	}
	return procs, nil
}

// Connect attaches to a running instance and adopts its primary project.
func (s *Service) Connect(ctx context.Context, proc backend.Process) error {
	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		return terr.New(terr.ProjectOpen, "a project is already open")
	}
	s.mu.Unlock()

	pr, err := s.be.Attach(ctx, proc.ID)
	if err != nil {
		return terr.Wrap(terr.BackendFailed, "attach to process", err)
	}
	if pr == nil {
		return terr.Newf(terr.NoProject, "process %d has no project open", proc.ID)
	}
	s.adopt(pr)
	return nil
}

// OpenProject opens a project file. It returns false without error when a project
// is already open or no engineering version was initialized. The extension, with
// the version suffix removed (".ap17" -> ".ap", ".als15_1" -> ".als"), selects a
// single-user project or a multi-user local session.
func (s *Service) OpenProject(ctx context.Context, path string) (bool, error) {
	s.mu.Lock()
	if s.session != nil || s.engineering == "" {
		s.mu.Unlock()
		return false, nil
	}
	version := s.engineering
	s.mu.Unlock()

	var multiuser bool
	switch ext := strings.TrimSuffix(filepath.Ext(path), versionSuffix(version)); ext {
	case ".ap":
	case ".als", ".amc":
		multiuser = true
	default:
		return false, terr.Newf(terr.InvalidInput, "%s is not a V%s project file", filepath.Base(path), version)
	}

	pr, err := s.be.Open(ctx, path, multiuser)
	if err != nil {
		return false, terr.Wrap(terr.BackendFailed, "open project", err)
	}
	s.adopt(pr)
	return true, nil
}

// versionSuffix renders "17.0" as "17" and "15.1" as "15_1".
func versionSuffix(version string) string {
	mm := semver.MajorMinor("v" + version)
	if mm == "" {
		return version
	}
	major := strings.TrimPrefix(semver.Major(mm), "v")
	minor := strings.TrimPrefix(mm, semver.Major(mm)+".")
	if minor == "0" {
		return major
	}
	return major + "_" + minor
}

func (s *Service) adopt(pr backend.Project) {
	ps := ProjectSession{
		Project:           pr,
		Multiuser:         pr.Multiuser(),
		ReferenceLanguage: pr.ReferenceLanguage(),
		Languages:         pr.ActiveLanguages(),
	}
	s.mu.Lock()
	s.session = &ps
	s.plcs = nil
	hook := s.OnProjectOpened
	s.mu.Unlock()
	if hook != nil {
		hook(ps)
	}
}

// Session returns the current project session, or nil.
func (s *Service) Session() *ProjectSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	return &cp
}

// Close ends exclusive access, drops the project session and releases the backend.
func (s *Service) Close() error {
	endErr := s.EndExclusiveAccess()
	s.mu.Lock()
	s.session = nil
	s.plcs = nil
	s.mu.Unlock()
	if err := s.be.Close(); err != nil {
		return terr.Wrap(terr.BackendFailed, "close backend", err)
	}
	return endErr
}

// ProjectDir is the directory of the open project file, empty when none.
func (s *Service) ProjectDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return filepath.Dir(s.session.Project.Path())
}

// ProjectName is the name of the open project, empty when none.
func (s *Service) ProjectName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.Project.Name()
}

// Languages returns the active languages of the open project.
func (s *Service) Languages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	return append([]string(nil), s.session.Languages...)
}

func (s *Service) project() (backend.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, terr.New(terr.NoProject, "no project is open")
	}
	return s.session.Project, nil
}

// Devices walks the open project. Every call re-walks the backend and refreshes
// the PLC software used by Export.
func (s *Service) Devices() ([]*composition.Node, error) {
	pr, err := s.project()
	if err != nil {
		return nil, err
	}
	nodes, plcs, err := walker.Walk(pr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.plcs = plcs
	s.mu.Unlock()
	return nodes, nil
}

// plcSoftware returns the PLC software harvested by the last walk, walking once
// when nothing was harvested yet.
func (s *Service) plcSoftware() ([]backend.PlcSoftware, error) {
	s.mu.Lock()
	plcs := s.plcs
	s.mu.Unlock()
	if plcs != nil {
		return plcs, nil
	}
	if _, err := s.Devices(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plcs, nil
}

func (s *Service) exporter() (*export.Exporter, error) {
	if _, err := s.project(); err != nil {
		return nil, err
	}
	e := export.New(s.ProjectDir(), s.plcSoftware)
	if s.ExportFolder != "" {
		e.Folder = s.ExportFolder
	}
	e.Notify = s.OnExported
	return e, nil
}

// Export exports the block or group at a logical path such as "PLC_1/Main/Block1".
func (s *Service) Export(path string) ([]string, error) {
	e, err := s.exporter()
	if err != nil {
		return nil, err
	}
	return e.Export(path)
}

// ExportAsync runs Export in the background.
func (s *Service) ExportAsync(path string) <-chan export.Result {
	e, err := s.exporter()
	if err != nil {
		ch := make(chan export.Result, 1)
		ch <- export.Result{Err: err}
		close(ch)
		return ch
	}
	return e.ExportAsync(path)
}

// ExportBlock exports a block node from a previous Devices call.
func (s *Service) ExportBlock(node *composition.Node, prefix, explicitPath string) (string, error) {
	e, err := s.exporter()
	if err != nil {
		return "", err
	}
	return e.ExportBlock(node, prefix, explicitPath)
}

// BeginExclusiveAccess returns the service's synchronization session, acquiring
// exclusive access on first use. The session lives until EndExclusiveAccess.
func (s *Service) BeginExclusiveAccess(text string) (*unified.Session, error) {
	pr, err := s.project()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.access != nil {
		s.access.SetText(text)
		return s.access, nil
	}
	ea, err := s.be.ExclusiveAccess(text)
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "acquire exclusive access", err)
	}
	s.access = unified.NewSession(ea, pr)
	return s.access, nil
}

// EndExclusiveAccess releases the session acquired by BeginExclusiveAccess, if any.
func (s *Service) EndExclusiveAccess() error {
	s.mu.Lock()
	access := s.access
	s.access = nil
	s.mu.Unlock()
	if access == nil {
		return nil
	}
	return access.Close()
}

// HmiDevice returns the unified HMI software called name.
func (s *Service) HmiDevice(name string) (backend.HmiSoftware, error) {
	nodes, err := s.Devices()
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Kind != composition.KindHmiUnifiedDevice || n.Name != name {
			continue
		}
		if hs, ok := n.Ref.(backend.HmiSoftware); ok {
			return hs, nil
		}
	}
	return nil, terr.Newf(terr.NotFound, "no unified HMI device %s", name)
}
