// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package agent

import (
	"context"
	"crypto/subtle"
	"net"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"tiasync/cli/internal/backend"
	terr "tiasync/cli/internal/errors"
	"tiasync/cli/internal/logging"
)

type entry struct {
	typ string
	obj any
}

// session is the handle table of one client. Handle ids are only meaningful
// within the session that received them.
type session struct {
	be      backend.Portal
	conn    *connTag
	next    int64
	handles map[int64]entry
}

type connKey struct{}

// connTag identifies one transport connection.
type connTag struct{ remote net.Addr }

// Server exposes a backend.Portal to remote clients. Each client owns a handle
// table keyed by the session id it sends with every call. Calls are serialized:
// the engineering tool is single-threaded.
type Server struct {
	be backend.Portal

	mu       sync.Mutex
	sessions map[string]*session
}

// NewServer serves be.
func NewServer(be backend.Portal) *Server {
	return &Server{be: be, sessions: make(map[string]*session)}
}

type invoker interface {
	Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*invoker)(nil),
	Methods: []grpc.MethodDesc{{
		MethodName: "Invoke",
		Handler:    invokeHandler,
	}},
	Metadata: "tiasync/agent/v1/engineering.proto",
}

func invokeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(invoker).Invoke(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodInvoke}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(invoker).Invoke(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// Register adds the engineering service to gs.
func (s *Server) Register(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s)
}

// ServerOption lets s see connections end, so a client that disappears without
// closing loses its session and the exclusive access it held. Pass it to
// grpc.NewServer.
func (s *Server) ServerOption() grpc.ServerOption {
	return grpc.StatsHandler(connWatcher{s})
}

type connWatcher struct{ s *Server }

func (connWatcher) TagConn(ctx context.Context, info *stats.ConnTagInfo) context.Context {
	return context.WithValue(ctx, connKey{}, &connTag{remote: info.RemoteAddr})
}

func (w connWatcher) HandleConn(ctx context.Context, st stats.ConnStats) {
	if _, ok := st.(*stats.ConnEnd); !ok {
		return
	}
	tag, _ := ctx.Value(connKey{}).(*connTag)
	if tag == nil {
		return
	}
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	for id, ss := range w.s.sessions {
		if ss.conn == tag {
			logging.Debugf("agent: connection from %v ended, dropping session %s", tag.remote, id)
			w.s.drop(id)
		}
	}
}

func (connWatcher) TagRPC(ctx context.Context, _ *stats.RPCTagInfo) context.Context { return ctx }

func (connWatcher) HandleRPC(context.Context, stats.RPCStats) {}

// TokenAuth rejects calls whose bearer token differs from token. An empty token
// disables the check.
func TokenAuth(token string) grpc.UnaryServerInterceptor {
	want := []byte("Bearer " + token)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" {
			return handler(ctx, req)
		}
		md, _ := metadata.FromIncomingContext(ctx)
		got := md.Get(authHeader)
		if len(got) != 1 || subtle.ConstantTimeCompare([]byte(got[0]), want) != 1 {
			return nil, status.Error(codes.Unauthenticated, "invalid agent token")
		}
		return handler(ctx, req)
	}
}

// Invoke runs one operation. Backend failures travel inside the response so the
// client sees the original error kind; only malformed requests fail the RPC.
func (s *Server) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	r, err := decodeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	md, _ := metadata.FromIncomingContext(ctx)
	ids := md.Get(sessionHeader)
	if len(ids) != 1 || ids[0] == "" {
		return nil, status.Error(codes.InvalidArgument, "missing "+sessionHeader+" metadata")
	}
	id := ids[0]

	s.mu.Lock()
	defer s.mu.Unlock()
	logging.Debugf("agent: session %s: %s on handle %d", id, r.Op, r.Handle)

	var result any
	switch {
	case r.Handle == portalID && r.Op == "reset":
		s.drop(id)
	case r.Handle == portalID:
		result, err = s.sessionFor(ctx, id).portal(ctx, r.Op, r.Args)
	default:
		ss := s.sessionFor(ctx, id)
		e, ok := ss.handles[r.Handle]
		if !ok {
			return encodeError(terr.Newf(terr.NotFound, "unknown handle %d", r.Handle)), nil
		}
		result, err = ss.dispatch(e, r.Op, r.Args)
	}
	if err != nil {
		return encodeError(err), nil
	}
	out, err := encodeResult(result)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}

// sessionFor returns session id, creating it on first use. Callers hold s.mu.
func (s *Server) sessionFor(ctx context.Context, id string) *session {
	ss, ok := s.sessions[id]
	if !ok {
		ss = &session{be: s.be, handles: make(map[int64]entry)}
		s.sessions[id] = ss
	}
	if tag, _ := ctx.Value(connKey{}).(*connTag); tag != nil {
		ss.conn = tag
	}
	return ss
}

// drop forgets session id and disposes every exclusive access it still holds,
// rolling back an open transaction. Callers hold s.mu.
func (s *Server) drop(id string) {
	ss, ok := s.sessions[id]
	if !ok {
		return
	}
	delete(s.sessions, id)
	for _, e := range ss.handles {
		if e.typ != typeAccess {
			continue
		}
		if err := e.obj.(backend.ExclusiveAccess).Dispose(); err != nil {
			logging.Debugf("agent: session %s: release exclusive access: %v", id, err)
		}
	}
}

// put registers obj and returns its descriptor.
func (s *session) put(typ string, obj any) map[string]any {
	s.next++
	s.handles[s.next] = entry{typ, obj}
	d := describe(typ, obj)
	d["id"] = s.next
	d["type"] = typ
	return d
}

func putAll[T any](s *session, typ string, items []T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = s.put(typ, it)
	}
	return out, nil
}

func putOne[T any](s *session, typ string, item T, err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return s.put(typ, item), nil
}

func describe(typ string, obj any) map[string]any {
	switch typ {
	case typeProject:
		p := obj.(backend.Project)
		return map[string]any{
			"name":               p.Name(),
			"path":               p.Path(),
			"multiuser":          p.Multiuser(),
			"reference_language": p.ReferenceLanguage(),
			"languages":          anyStrings(p.ActiveLanguages()),
		}
	case typeBlock:
		b := obj.(backend.Block)
		return map[string]any{
			"name":       b.Name(),
			"number":     b.Number(),
			"block_type": string(b.Type()),
			"consistent": b.Consistent(),
		}
	case typeHmiTag:
		t := obj.(backend.HmiTag)
		return map[string]any{
			"name":       t.Name(),
			"plc_tag":    t.PlcTag(),
			"connection": t.Connection(),
			"tag_table":  t.TagTable(),
		}
	case typeAlarm:
		a := obj.(backend.DiscreteAlarm)
		return map[string]any{
			"name":             a.Name(),
			"raised_state_tag": a.RaisedStateTag(),
			"alarm_class":      a.AlarmClass(),
			"origin":           a.Origin(),
		}
	case typeTextItem:
		t := obj.(backend.TextItem)
		return map[string]any{"language": t.Language(), "text": t.Text()}
	}
	if n, ok := obj.(interface{ Name() string }); ok {
		return map[string]any{"name": n.Name()}
	}
	return map[string]any{}
}

func softwareType(sw backend.Software) string {
	switch sw.(type) {
	case backend.PlcSoftware:
		return typePlcSoftware
	case backend.HmiTarget:
		return typeHmiTarget
	case backend.HmiSoftware:
		return typeHmiSoftware
	}
	return typeSoftware
}

func (s *session) portal(ctx context.Context, op string, args []any) (any, error) {
	switch op {
	case "processes":
		procs, err := s.be.Processes(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(procs))
		for i, p := range procs {
			out[i] = map[string]any{"pid": p.ID, "project_path": p.ProjectPath}
		}
		return out, nil
	case "attach":
		pid, err := argInt(args, 0)
		if err != nil {
			return nil, err
		}
		pr, err := s.be.Attach(ctx, int(pid))
		if err != nil || pr == nil {
			return nil, err
		}
		return s.put(typeProject, pr), nil
	case "open":
		path, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		multiuser, err := argBool(args, 1)
		if err != nil {
			return nil, err
		}
		pr, err := s.be.Open(ctx, path, multiuser)
		return putOne(s, typeProject, pr, err)
	case "exclusive_access":
		text, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		ea, err := s.be.ExclusiveAccess(text)
		return putOne(s, typeAccess, ea, err)
	}
	return nil, unknownOp("portal", op)
}

func unknownOp(typ, op string) error {
	return terr.Newf(terr.Unsupported, "%s has no operation %q", typ, op)
}

func (s *session) dispatch(e entry, op string, args []any) (any, error) {
	switch e.typ {
	case typeProject:
		p := e.obj.(backend.Project)
		switch op {
		case "devices":
			items, err := p.Devices()
			return putAll(s, typeDevice, items, err)
		case "device_groups":
			items, err := p.DeviceGroups()
			return putAll(s, typeDeviceGroup, items, err)
		case "ungrouped_devices":
			items, err := p.UngroupedDevices()
			return putAll(s, typeDevice, items, err)
		}
	case typeDeviceGroup:
		g := e.obj.(backend.DeviceGroup)
		switch op {
		case "devices":
			items, err := g.Devices()
			return putAll(s, typeDevice, items, err)
		case "groups":
			items, err := g.Groups()
			return putAll(s, typeDeviceGroup, items, err)
		}
	case typeDevice:
		if op == "items" {
			items, err := e.obj.(backend.Device).Items()
			return putAll(s, typeDeviceItem, items, err)
		}
	case typeDeviceItem:
		if op == "software" {
			sw, err := e.obj.(backend.DeviceItem).Software()
			if err != nil || sw == nil {
				return nil, err
			}
			return s.put(softwareType(sw), sw), nil
		}
	case typePlcSoftware:
		return s.plc(e.obj.(backend.PlcSoftware), op)
	case typeHmiSoftware:
		return s.hmi(e.obj.(backend.HmiSoftware), op, args)
	case typeBlockGroup:
		g := e.obj.(backend.BlockGroup)
		switch op {
		case "blocks":
			items, err := g.Blocks()
			return putAll(s, typeBlock, items, err)
		case "groups":
			items, err := g.Groups()
			return putAll(s, typeBlockGroup, items, err)
		}
	case typeBlock:
		if op == "export" {
			return exportBlock(e.obj.(backend.Block))
		}
	case typeTypeGroup:
		g := e.obj.(backend.TypeGroup)
		switch op {
		case "types":
			items, err := g.Types()
			return putAll(s, typeDataType, items, err)
		case "groups":
			items, err := g.Groups()
			return putAll(s, typeTypeGroup, items, err)
		}
	case typeTagTableGroup:
		g := e.obj.(backend.TagTableGroup)
		switch op {
		case "tag_tables":
			items, err := g.TagTables()
			return putAll(s, typeTagTable, items, err)
		case "groups":
			items, err := g.Groups()
			return putAll(s, typeTagTableGroup, items, err)
		}
	case typeHmiTableGroup:
		g := e.obj.(backend.HmiTagTableGroup)
		switch op {
		case "tag_tables":
			items, err := g.TagTables()
			return putAll(s, typeHmiTable, items, err)
		case "groups":
			items, err := g.Groups()
			return putAll(s, typeHmiTableGroup, items, err)
		}
	case typeHmiTag:
		return s.tag(e.obj.(backend.HmiTag), op, args)
	case typeAlarm:
		return s.alarm(e.obj.(backend.DiscreteAlarm), op, args)
	case typeTextItem:
		if op == "set_text" {
			text, err := argString(args, 0)
			if err != nil {
				return nil, err
			}
			return nil, e.obj.(backend.TextItem).SetText(text)
		}
	case typeAccess:
		return s.access(e.obj.(backend.ExclusiveAccess), op, args)
	case typeTransaction:
		tx := e.obj.(backend.Transaction)
		switch op {
		case "commit_on_dispose":
			tx.CommitOnDispose()
			return nil, nil
		case "dispose":
			return nil, tx.Dispose()
		}
	}
	return nil, unknownOp(e.typ, op)
}

func (s *session) plc(p backend.PlcSoftware, op string) (any, error) {
	switch op {
	case "block_group":
		g, err := p.BlockGroup()
		return putOne(s, typeBlockGroup, g, err)
	case "type_group":
		g, err := p.TypeGroup()
		return putOne(s, typeTypeGroup, g, err)
	case "tag_table_group":
		g, err := p.TagTableGroup()
		return putOne(s, typeTagTableGroup, g, err)
	}
	return nil, unknownOp(typePlcSoftware, op)
}

func (s *session) hmi(h backend.HmiSoftware, op string, args []any) (any, error) {
	switch op {
	case "tags":
		items, err := h.Tags().All()
		return putAll(s, typeHmiTag, items, err)
	case "create_tag":
		name, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		table, err := argString(args, 1)
		if err != nil {
			return nil, err
		}
		t, err := h.Tags().Create(name, table)
		return putOne(s, typeHmiTag, t, err)
	case "alarms":
		items, err := h.DiscreteAlarms().All()
		return putAll(s, typeAlarm, items, err)
	case "find_alarm":
		name, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		a, err := h.DiscreteAlarms().Find(name)
		if err != nil || a == nil {
			return nil, err
		}
		return s.put(typeAlarm, a), nil
	case "create_alarm":
		name, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		a, err := h.DiscreteAlarms().Create(name)
		return putOne(s, typeAlarm, a, err)
	case "alarm_classes":
		classes, err := h.AlarmClasses()
		if err != nil {
			return nil, err
		}
		return anyStrings(classes), nil
	case "connections":
		conns, err := h.Connections()
		if err != nil {
			return nil, err
		}
		out := make([]any, len(conns))
		for i, c := range conns {
			out[i] = map[string]any{"name": c.Name, "partner": c.Partner}
		}
		return out, nil
	case "tag_tables":
		items, err := h.TagTables().All()
		return putAll(s, typeHmiTable, items, err)
	case "create_tag_table":
		name, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		t, err := h.TagTables().Create(name)
		return putOne(s, typeHmiTable, t, err)
	case "tag_table_groups":
		items, err := h.TagTableGroups()
		return putAll(s, typeHmiTableGroup, items, err)
	}
	return nil, unknownOp(typeHmiSoftware, op)
}

func (s *session) tag(t backend.HmiTag, op string, args []any) (any, error) {
	if op == "delete" {
		return nil, t.Delete()
	}
	v, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	switch op {
	case "set_name":
		return nil, t.SetName(v)
	case "set_plc_tag":
		return nil, t.SetPlcTag(v)
	case "set_connection":
		return nil, t.SetConnection(v)
	}
	return nil, unknownOp(typeHmiTag, op)
}

func (s *session) alarm(a backend.DiscreteAlarm, op string, args []any) (any, error) {
	switch op {
	case "delete":
		return nil, a.Delete()
	case "event_text":
		items, err := a.EventText()
		return putAll(s, typeTextItem, items, err)
	}
	v, err := argString(args, 0)
	if err != nil {
		return nil, err
	}
	switch op {
	case "set_raised_state_tag":
		return nil, a.SetRaisedStateTag(v)
	case "set_alarm_class":
		return nil, a.SetAlarmClass(v)
	case "set_origin":
		return nil, a.SetOrigin(v)
	}
	return nil, unknownOp(typeAlarm, op)
}

func (s *session) access(ea backend.ExclusiveAccess, op string, args []any) (any, error) {
	switch op {
	case "set_text":
		text, err := argString(args, 0)
		if err != nil {
			return nil, err
		}
		ea.SetText(text)
		return nil, nil
	case "transaction":
		id, err := argInt(args, 0)
		if err != nil {
			return nil, err
		}
		pe, ok := s.handles[id]
		if !ok || pe.typ != typeProject {
			return nil, terr.Newf(terr.InvalidInput, "handle %d is not a project", id)
		}
		name, err := argString(args, 1)
		if err != nil {
			return nil, err
		}
		tx, err := ea.Transaction(pe.obj.(backend.Project), name)
		return putOne(s, typeTransaction, tx, err)
	case "dispose":
		return nil, ea.Dispose()
	}
	return nil, unknownOp(typeAccess, op)
}

// exportBlock exports into a scratch directory and returns the document, which
// the client writes on its side.
func exportBlock(b backend.Block) (any, error) {
	dir, err := os.MkdirTemp("", "tiasync-export-")
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "create scratch directory", err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, b.Name()+".xml")
	if err := b.Export(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "read export of "+b.Name(), err)
	}
	return map[string]any{"document": string(data)}, nil
}
