// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package agent

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"net"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"tiasync/cli/internal/backend"
	terr "tiasync/cli/internal/errors"
)

// Client is a backend.Portal served by a remote agent.
type Client struct {
	conn    *grpc.ClientConn
	token   string
	session string
	// Timeout bounds every call that does not carry its own context.
	Timeout time.Duration
}

var _ backend.Portal = (*Client)(nil)

// Dial connects to the agent at addr. Plain-text transport is only meant for
// loopback and tests; otherwise TLS is used with the host as server name.
func Dial(addr, token string, plaintext bool) (*Client, error) {
	var creds credentials.TransportCredentials
	if plaintext {
		creds = insecure.NewCredentials()
	} else {
		host := addr
		if h, _, err := net.SplitHostPort(addr); err == nil {
			host = h
		}
		creds = credentials.NewTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, terr.Wrap(terr.BackendFailed, "dial agent "+addr, err)
	}
	return NewClient(conn, token), nil
}

// NewClient uses an existing connection. Close closes it. Each client opens its
// own session on the agent, so clients sharing a connection do not share handles.
func NewClient(conn *grpc.ClientConn, token string) *Client {
	return &Client{conn: conn, token: token, session: rand.Text(), Timeout: 2 * time.Minute}
}

func (c *Client) call(ctx context.Context, handle int64, op string, args ...any) (any, error) {
	if _, ok := ctx.Deadline(); !ok && c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, sessionHeader, c.session)
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, authHeader, "Bearer "+c.token)
	}
	if args == nil {
		args = []any{}
	}
	req, err := request{Handle: handle, Op: op, Args: args}.encode()
	if err != nil {
		return nil, terr.Wrap(terr.InvalidInput, "encode "+op, err)
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, MethodInvoke, req, resp); err != nil {
		return nil, err
	}
	return decodeResponse(resp)
}

func (c *Client) Processes(ctx context.Context) ([]backend.Process, error) {
	v, err := c.call(ctx, portalID, "processes")
	if err != nil {
		return nil, err
	}
	raw, _ := v.([]any)
	out := make([]backend.Process, 0, len(raw))
	for _, r := range raw {
		m, _ := r.(map[string]any)
		out = append(out, backend.Process{ID: int(fieldInt(m, "pid")), ProjectPath: field(m, "project_path")})
	}
	return out, nil
}

func (c *Client) Attach(ctx context.Context, pid int) (backend.Project, error) {
	v, err := c.call(ctx, portalID, "attach", pid)
	if err != nil || v == nil {
		return nil, err
	}
	return one[backend.Project](c, v)
}

func (c *Client) Open(ctx context.Context, path string, multiuser bool) (backend.Project, error) {
	v, err := c.call(ctx, portalID, "open", path, multiuser)
	if err != nil {
		return nil, err
	}
	return one[backend.Project](c, v)
}

func (c *Client) ExclusiveAccess(text string) (backend.ExclusiveAccess, error) {
	v, err := c.call(context.Background(), portalID, "exclusive_access", text)
	if err != nil {
		return nil, err
	}
	return one[backend.ExclusiveAccess](c, v)
}

// Close ends the session on the agent, releasing its handles and any exclusive
// access it still holds, and closes the connection.
func (c *Client) Close() error {
	_, resetErr := c.call(context.Background(), portalID, "reset")
	if err := c.conn.Close(); err != nil {
		return err
	}
	return resetErr
}

// object builds the proxy for a descriptor.
func (c *Client) object(v any) (any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, terr.New(terr.BackendFailed, "agent returned a malformed object")
	}
	r := remote{c: c, id: fieldInt(m, "id"), name: field(m, "name")}
	switch typ := field(m, "type"); typ {
	case typeProject:
		return &project{
			remote:    r,
			path:      field(m, "path"),
			multiuser: fieldBool(m, "multiuser"),
			reference: field(m, "reference_language"),
			languages: fieldStrings(m, "languages"),
		}, nil
	case typeDeviceGroup:
		return &deviceGroup{r}, nil
	case typeDevice:
		return &device{r}, nil
	case typeDeviceItem:
		return &deviceItem{r}, nil
	case typeSoftware:
		return &software{r}, nil
	case typePlcSoftware:
		return &plcSoftware{r}, nil
	case typeHmiTarget:
		return &hmiTarget{r}, nil
	case typeHmiSoftware:
		return &hmiSoftware{r}, nil
	case typeBlockGroup:
		return &blockGroup{r}, nil
	case typeBlock:
		return &block{
			remote:     r,
			number:     int(fieldInt(m, "number")),
			typ:        backend.BlockType(field(m, "block_type")),
			consistent: fieldBool(m, "consistent"),
		}, nil
	case typeTypeGroup:
		return &typeGroup{r}, nil
	case typeDataType:
		return &named{r}, nil
	case typeTagTableGroup:
		return &tagTableGroup{r}, nil
	case typeTagTable, typeHmiTable:
		return &named{r}, nil
	case typeHmiTableGroup:
		return &hmiTableGroup{r}, nil
	case typeHmiTag:
		return &hmiTag{
			remote:     r,
			plcTag:     field(m, "plc_tag"),
			connection: field(m, "connection"),
			table:      field(m, "tag_table"),
		}, nil
	case typeAlarm:
		return &alarm{
			remote: r,
			raised: field(m, "raised_state_tag"),
			class:  field(m, "alarm_class"),
			origin: field(m, "origin"),
		}, nil
	case typeTextItem:
		return &textItem{remote: r, language: field(m, "language"), text: field(m, "text")}, nil
	case typeAccess:
		return &exclusiveAccess{r}, nil
	case typeTransaction:
		return &transaction{r}, nil
	default:
		return nil, terr.Newf(terr.BackendFailed, "agent returned unknown object type %q", typ)
	}
}

func one[T any](c *Client, v any) (T, error) {
	var zero T
	obj, err := c.object(v)
	if err != nil {
		return zero, err
	}
	t, ok := obj.(T)
	if !ok {
		return zero, terr.Newf(terr.BackendFailed, "agent returned %T", obj)
	}
	return t, nil
}

func many[T any](c *Client, v any, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	raw, _ := v.([]any)
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		t, err := one[T](c, r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// remote is the common part of every proxy.
type remote struct {
	c    *Client
	id   int64
	name string
}

func (r *remote) Name() string { return r.name }

func (r *remote) do(op string, args ...any) (any, error) {
	return r.c.call(context.Background(), r.id, op, args...)
}

type named struct{ remote }

type project struct {
	remote
	path      string
	multiuser bool
	reference string
	languages []string
}

func (p *project) Path() string              { return p.path }
func (p *project) Multiuser() bool           { return p.multiuser }
func (p *project) ReferenceLanguage() string { return p.reference }

func (p *project) ActiveLanguages() []string {
	return append([]string(nil), p.languages...)
}

func (p *project) Devices() ([]backend.Device, error) {
	v, err := p.do("devices")
	return many[backend.Device](p.c, v, err)
}

func (p *project) DeviceGroups() ([]backend.DeviceGroup, error) {
	v, err := p.do("device_groups")
	return many[backend.DeviceGroup](p.c, v, err)
}

func (p *project) UngroupedDevices() ([]backend.Device, error) {
	v, err := p.do("ungrouped_devices")
	return many[backend.Device](p.c, v, err)
}

type deviceGroup struct{ remote }

func (g *deviceGroup) Devices() ([]backend.Device, error) {
	v, err := g.do("devices")
	return many[backend.Device](g.c, v, err)
}

func (g *deviceGroup) Groups() ([]backend.DeviceGroup, error) {
	v, err := g.do("groups")
	return many[backend.DeviceGroup](g.c, v, err)
}

type device struct{ remote }

func (d *device) Items() ([]backend.DeviceItem, error) {
	v, err := d.do("items")
	return many[backend.DeviceItem](d.c, v, err)
}

type deviceItem struct{ remote }

func (i *deviceItem) Software() (backend.Software, error) {
	v, err := i.do("software")
	if err != nil || v == nil {
		return nil, err
	}
	return one[backend.Software](i.c, v)
}

type software struct{ remote }

type hmiTarget struct{ remote }

func (h *hmiTarget) ClassicHMI() {}

type plcSoftware struct{ remote }

func (p *plcSoftware) BlockGroup() (backend.BlockGroup, error) {
	v, err := p.do("block_group")
	if err != nil {
		return nil, err
	}
	return one[backend.BlockGroup](p.c, v)
}

func (p *plcSoftware) TypeGroup() (backend.TypeGroup, error) {
	v, err := p.do("type_group")
	if err != nil {
		return nil, err
	}
	return one[backend.TypeGroup](p.c, v)
}

func (p *plcSoftware) TagTableGroup() (backend.TagTableGroup, error) {
	v, err := p.do("tag_table_group")
	if err != nil {
		return nil, err
	}
	return one[backend.TagTableGroup](p.c, v)
}

type blockGroup struct{ remote }

func (g *blockGroup) Blocks() ([]backend.Block, error) {
	v, err := g.do("blocks")
	return many[backend.Block](g.c, v, err)
}

func (g *blockGroup) Groups() ([]backend.BlockGroup, error) {
	v, err := g.do("groups")
	return many[backend.BlockGroup](g.c, v, err)
}

type block struct {
	remote
	number     int
	typ        backend.BlockType
	consistent bool
}

func (b *block) Number() int             { return b.number }
func (b *block) Type() backend.BlockType { return b.typ }
func (b *block) Consistent() bool        { return b.consistent }

// Export fetches the document from the agent and writes it locally. Like the
// engineering tool, it refuses to overwrite an existing file.
func (b *block) Export(path string) error {
	v, err := b.do("export")
	if err != nil {
		return err
	}
	m, _ := v.(map[string]any)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return terr.Newf(terr.BackendFailed, "export target %s already exists", path)
		}
		return err
	}
	if _, err := f.WriteString(field(m, "document")); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type typeGroup struct{ remote }

func (g *typeGroup) Types() ([]backend.DataType, error) {
	v, err := g.do("types")
	return many[backend.DataType](g.c, v, err)
}

func (g *typeGroup) Groups() ([]backend.TypeGroup, error) {
	v, err := g.do("groups")
	return many[backend.TypeGroup](g.c, v, err)
}

type tagTableGroup struct{ remote }

func (g *tagTableGroup) TagTables() ([]backend.TagTable, error) {
	v, err := g.do("tag_tables")
	return many[backend.TagTable](g.c, v, err)
}

func (g *tagTableGroup) Groups() ([]backend.TagTableGroup, error) {
	v, err := g.do("groups")
	return many[backend.TagTableGroup](g.c, v, err)
}

type hmiTableGroup struct{ remote }

func (g *hmiTableGroup) TagTables() ([]backend.HmiTagTable, error) {
	v, err := g.do("tag_tables")
	return many[backend.HmiTagTable](g.c, v, err)
}

func (g *hmiTableGroup) Groups() ([]backend.HmiTagTableGroup, error) {
	v, err := g.do("groups")
	return many[backend.HmiTagTableGroup](g.c, v, err)
}

type exclusiveAccess struct{ remote }

func (ea *exclusiveAccess) SetText(text string) {
	_, _ = ea.do("set_text", text)
}

func (ea *exclusiveAccess) Transaction(p backend.Project, name string) (backend.Transaction, error) {
	rp, ok := p.(*project)
	if !ok {
		return nil, terr.Newf(terr.InvalidInput, "project %s does not belong to this agent", p.Name())
	}
	v, err := ea.do("transaction", rp.id, name)
	if err != nil {
		return nil, err
	}
	return one[backend.Transaction](ea.c, v)
}

func (ea *exclusiveAccess) Dispose() error {
	_, err := ea.do("dispose")
	return err
}

type transaction struct{ remote }

func (t *transaction) CommitOnDispose() {
	_, _ = t.do("commit_on_dispose")
}

func (t *transaction) Dispose() error {
	_, err := t.do("dispose")
	return err
}
