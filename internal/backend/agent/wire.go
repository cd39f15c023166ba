// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package agent carries the backend contract over gRPC so tiasync can drive an
// engineering tool running on another machine, typically the Windows station
// that has the Openness libraries installed.
//
// The wire protocol has a single unary method. Requests and responses are
// google.protobuf.Struct values, so no generated code is needed:
//
//	request:  {"handle": <id>, "op": <name>, "args": [...]}
//	response: {"result": <value>} or {"error": {"kind": <kind>, "message": <text>}}
//
// Every call carries a client-chosen session id in its metadata. The server keeps
// a table per session of every object it handed out; handle 0 is the portal.
// Objects travel as descriptors carrying their id, type and descriptive
// attributes, so accessors such as Name or PlcTag never need a round trip.
package agent

import (
	"strings"

	"google.golang.org/protobuf/types/known/structpb"

	terr "tiasync/cli/internal/errors"
)

const (
	// ServiceName is the gRPC service name.
	ServiceName = "tiasync.agent.v1.Engineering"
	// MethodInvoke is the full method name of the only RPC.
	MethodInvoke = "/" + ServiceName + "/Invoke"
	// DefaultAddress is where "tiasync agent serve" listens by default.
	DefaultAddress = "localhost:50551"

	authHeader    = "authorization"
	sessionHeader = "tiasync-session"
	portalID      = 0
)

// Object types as they appear in descriptors.
const (
	typeProject       = "project"
	typeDeviceGroup   = "device_group"
	typeDevice        = "device"
	typeDeviceItem    = "device_item"
	typeSoftware      = "software"
	typePlcSoftware   = "plc_software"
	typeHmiTarget     = "hmi_target"
	typeHmiSoftware   = "hmi_software"
	typeBlockGroup    = "block_group"
	typeBlock         = "block"
	typeTypeGroup     = "type_group"
	typeDataType      = "data_type"
	typeTagTableGroup = "tag_table_group"
	typeTagTable      = "tag_table"
	typeHmiTag        = "hmi_tag"
	typeAlarm         = "discrete_alarm"
	typeTextItem      = "text_item"
	typeHmiTable      = "hmi_tag_table"
	typeHmiTableGroup = "hmi_tag_table_group"
	typeAccess        = "exclusive_access"
	typeTransaction   = "transaction"
)

type request struct {
	Handle int64
	Op     string
	Args   []any
}

func (r request) encode() (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"handle": r.Handle,
		"op":     r.Op,
		"args":   r.Args,
	})
}

func decodeRequest(s *structpb.Struct) (request, error) {
	m := s.AsMap()
	var r request
	id, ok := m["handle"].(float64)
	if !ok {
		return r, terr.New(terr.InvalidInput, "request without handle")
	}
	r.Handle = int64(id)
	if r.Op, ok = m["op"].(string); !ok || r.Op == "" {
		return r, terr.New(terr.InvalidInput, "request without op")
	}
	if args, ok := m["args"].([]any); ok {
		r.Args = args
	}
	return r, nil
}

func encodeResult(v any) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{"result": v})
}

func encodeError(err error) *structpb.Struct {
	kind := terr.KindOf(err)
	if kind == "" {
		kind = terr.BackendFailed
	}
	s, _ := structpb.NewStruct(map[string]any{
		"error": map[string]any{"kind": string(kind), "message": err.Error()},
	})
	return s
}

// decodeResponse returns the result value or the remote error with its kind.
func decodeResponse(s *structpb.Struct) (any, error) {
	m := s.AsMap()
	if e, ok := m["error"].(map[string]any); ok {
		kind, _ := e["kind"].(string)
		msg, _ := e["message"].(string)
		msg = strings.TrimPrefix(msg, kind+": ")
		return nil, terr.Wrap(terr.Kind(kind), "agent", remoteError(msg))
	}
	return m["result"], nil
}

type remoteError string

func (e remoteError) Error() string { return string(e) }

// Argument accessors. Numbers arrive as float64.

func argString(args []any, i int) (string, error) {
	if i < len(args) {
		if s, ok := args[i].(string); ok {
			return s, nil
		}
	}
	return "", terr.Newf(terr.InvalidInput, "argument %d must be a string", i)
}

func argBool(args []any, i int) (bool, error) {
	if i < len(args) {
		if b, ok := args[i].(bool); ok {
			return b, nil
		}
	}
	return false, terr.Newf(terr.InvalidInput, "argument %d must be a bool", i)
}

func argInt(args []any, i int) (int64, error) {
	if i < len(args) {
		if f, ok := args[i].(float64); ok {
			return int64(f), nil
		}
	}
	return 0, terr.Newf(terr.InvalidInput, "argument %d must be a number", i)
}

// Descriptor field accessors; missing fields read as zero values.

func field(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func fieldBool(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}

func fieldInt(m map[string]any, key string) int64 {
	f, _ := m[key].(float64)
	return int64(f)
}

func fieldStrings(m map[string]any, key string) []string {
	raw, _ := m[key].([]any)
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func anyStrings(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
