// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package memory

import (
	"slices"

	"tiasync/cli/internal/backend"
	terr "tiasync/cli/internal/errors"
)

// DefaultTagTable receives tags created without an explicit table.
const DefaultTagTable = "Default tag table"

type hmiSoftware struct {
	st          *state
	pr          *project
	name        string
	classes     []string
	connections []backend.Connection
	tables      []*hmiTable
	groups      []*hmiTableGroup
	tags        []*hmiTag
	alarms      []*alarm
}

func buildUnified(pr *project, us UnifiedSpec) (*hmiSoftware, error) {
	sw := &hmiSoftware{
		st:      pr.st,
		pr:      pr,
		name:    us.Name,
		classes: append([]string(nil), us.AlarmClasses...),
	}
	for _, c := range us.Connections {
		sw.connections = append(sw.connections, backend.Connection{Name: c.Name, Partner: c.Partner})
	}
	for _, n := range us.TagTables {
		if sw.findTable(n) != nil {
			return nil, terr.Newf(terr.InvalidInput, "tag table %s declared twice", n)
		}
		sw.tables = append(sw.tables, &hmiTable{name: n})
	}
	if sw.findTable(DefaultTagTable) == nil {
		sw.tables = append([]*hmiTable{{name: DefaultTagTable}}, sw.tables...)
	}
	for _, fs := range us.TagTableGroups {
		g, err := sw.buildGroup(fs)
		if err != nil {
			return nil, err
		}
		sw.groups = append(sw.groups, g)
	}

	for _, ts := range us.Tags {
		if ts.Name == "" {
			return nil, terr.New(terr.InvalidInput, "tag without name")
		}
		if sw.findTag(ts.Name) != nil {
			return nil, terr.Newf(terr.InvalidInput, "tag %s declared twice", ts.Name)
		}
		table := ts.Table
		if table == "" {
			table = DefaultTagTable
		}
		if sw.findTable(table) == nil {
			return nil, terr.Newf(terr.InvalidInput, "tag %s references unknown table %s", ts.Name, table)
		}
		sw.tags = append(sw.tags, &hmiTag{
			sw:         sw,
			name:       ts.Name,
			plcTag:     ts.PlcTag,
			connection: ts.Connection,
			table:      table,
		})
	}

	for _, as := range us.Alarms {
		if sw.findAlarm(as.Name) != nil {
			return nil, terr.Newf(terr.InvalidInput, "alarm %s declared twice", as.Name)
		}
		a := sw.newAlarm(as.Name)
		a.raised = as.RaisedStateTag
		a.class = as.Class
		a.origin = as.Origin
		for _, ti := range a.text {
			ti.text = as.Text[ti.lang]
		}
		sw.alarms = append(sw.alarms, a)
	}
	return sw, nil
}

func (s *hmiSoftware) buildGroup(fs FolderSpec) (*hmiTableGroup, error) {
	g := &hmiTableGroup{sw: s, name: fs.Name}
	for _, n := range fs.Items {
		if s.findTable(n) != nil || slices.ContainsFunc(g.tables, func(t *hmiTable) bool { return t.name == n }) {
			return nil, terr.Newf(terr.InvalidInput, "tag table %s declared twice", n)
		}
		g.tables = append(g.tables, &hmiTable{name: n})
	}
	for _, sub := range fs.Groups {
		sg, err := s.buildGroup(sub)
		if err != nil {
			return nil, err
		}
		g.groups = append(g.groups, sg)
	}
	return g, nil
}

func (s *hmiSoftware) newAlarm(name string) *alarm {
	a := &alarm{sw: s, name: name}
	for _, lang := range s.pr.languages {
		a.text = append(a.text, &textItem{alarm: a, lang: lang})
	}
	return a
}

func (s *hmiSoftware) findTag(name string) *hmiTag {
	for _, t := range s.tags {
		if t.name == name {
			return t
		}
	}
	return nil
}

func (s *hmiSoftware) findAlarm(name string) *alarm {
	for _, a := range s.alarms {
		if a.name == name {
			return a
		}
	}
	return nil
}

func (s *hmiSoftware) findTable(name string) *hmiTable {
	for _, t := range s.tables {
		if t.name == name {
			return t
		}
	}
	queue := append([]*hmiTableGroup(nil), s.groups...)
	for len(queue) > 0 {
		g := queue[0]
		queue = queue[1:]
		for _, t := range g.tables {
			if t.name == name {
				return t
			}
		}
		queue = append(queue, g.groups...)
	}
	return nil
}

func (s *hmiSoftware) Name() string { return s.name }

func (s *hmiSoftware) Tags() backend.HmiTags { return (*hmiTags)(s) }

func (s *hmiSoftware) DiscreteAlarms() backend.DiscreteAlarms { return (*discreteAlarms)(s) }

func (s *hmiSoftware) TagTables() backend.HmiTagTables { return (*hmiTagTables)(s) }

func (s *hmiSoftware) AlarmClasses() ([]string, error) {
	return append([]string(nil), s.classes...), nil
}

func (s *hmiSoftware) Connections() ([]backend.Connection, error) {
	return append([]backend.Connection(nil), s.connections...), nil
}

func (s *hmiSoftware) TagTableGroups() ([]backend.HmiTagTableGroup, error) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]backend.HmiTagTableGroup, len(s.groups))
	for i, g := range s.groups {
		out[i] = g
	}
	return out, nil
}

type hmiTags hmiSoftware

func (c *hmiTags) All() ([]backend.HmiTag, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	out := make([]backend.HmiTag, len(c.tags))
	for i, t := range c.tags {
		out[i] = t
	}
	return out, nil
}

func (c *hmiTags) Create(name, table string) (backend.HmiTag, error) {
	s := (*hmiSoftware)(c)
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if name == "" {
		return nil, terr.New(terr.InvalidInput, "tag name is empty")
	}
	if s.findTag(name) != nil {
		return nil, terr.Newf(terr.BackendFailed, "tag name %s already in use", name)
	}
	if table == "" {
		table = DefaultTagTable
	}
	if s.findTable(table) == nil {
		return nil, terr.Newf(terr.NotFound, "tag table %s not found", table)
	}
	t := &hmiTag{sw: s, name: name, table: table}
	s.tags = append(s.tags, t)
	s.st.record(func() {
		s.tags = slices.DeleteFunc(s.tags, func(x *hmiTag) bool { return x == t })
		t.deleted = true
	})
	return t, nil
}

type hmiTag struct {
	sw         *hmiSoftware
	name       string
	plcTag     string
	connection string
	table      string
	deleted    bool
}

func (t *hmiTag) Name() string {
	t.sw.st.mu.Lock()
	defer t.sw.st.mu.Unlock()
	return t.name
}

func (t *hmiTag) PlcTag() string {
	t.sw.st.mu.Lock()
	defer t.sw.st.mu.Unlock()
	return t.plcTag
}

func (t *hmiTag) Connection() string {
	t.sw.st.mu.Lock()
	defer t.sw.st.mu.Unlock()
	return t.connection
}

func (t *hmiTag) TagTable() string {
	t.sw.st.mu.Lock()
	defer t.sw.st.mu.Unlock()
	return t.table
}

func (t *hmiTag) SetName(name string) error {
	t.sw.st.mu.Lock()
	defer t.sw.st.mu.Unlock()
	if t.deleted {
		return terr.Newf(terr.BackendFailed, "tag %s was deleted", t.name)
	}
	if name == t.name {
		return nil
	}
	if name == "" {
		return terr.New(terr.InvalidInput, "tag name is empty")
	}
	if t.sw.findTag(name) != nil {
		return terr.Newf(terr.BackendFailed, "tag name %s already in use", name)
	}
	old := t.name
	t.name = name
	t.sw.st.record(func() { t.name = old })
	return nil
}

func (t *hmiTag) SetPlcTag(ref string) error {
	t.sw.st.mu.Lock()
	defer t.sw.st.mu.Unlock()
	if t.deleted {
		return terr.Newf(terr.BackendFailed, "tag %s was deleted", t.name)
	}
	old := t.plcTag
	t.plcTag = ref
	t.sw.st.record(func() { t.plcTag = old })
	return nil
}

func (t *hmiTag) SetConnection(name string) error {
	t.sw.st.mu.Lock()
	defer t.sw.st.mu.Unlock()
	if t.deleted {
		return terr.Newf(terr.BackendFailed, "tag %s was deleted", t.name)
	}
	if name != "" && !slices.ContainsFunc(t.sw.connections, func(c backend.Connection) bool { return c.Name == name }) {
		return terr.Newf(terr.NotFound, "connection %s not found", name)
	}
	old := t.connection
	t.connection = name
	t.sw.st.record(func() { t.connection = old })
	return nil
}

func (t *hmiTag) Delete() error {
	t.sw.st.mu.Lock()
	defer t.sw.st.mu.Unlock()
	if t.deleted {
		return nil
	}
	idx := slices.Index(t.sw.tags, t)
	if idx < 0 {
		return terr.Newf(terr.BackendFailed, "tag %s is not attached", t.name)
	}
	t.sw.tags = slices.Delete(t.sw.tags, idx, idx+1)
	t.deleted = true
	t.sw.st.record(func() {
		t.sw.tags = slices.Insert(t.sw.tags, min(idx, len(t.sw.tags)), t)
		t.deleted = false
	})
	return nil
}

type discreteAlarms hmiSoftware

func (c *discreteAlarms) All() ([]backend.DiscreteAlarm, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	out := make([]backend.DiscreteAlarm, len(c.alarms))
	for i, a := range c.alarms {
		out[i] = a
	}
	return out, nil
}

func (c *discreteAlarms) Find(name string) (backend.DiscreteAlarm, error) {
	s := (*hmiSoftware)(c)
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if a := s.findAlarm(name); a != nil {
		return a, nil
	}
	return nil, nil
}

func (c *discreteAlarms) Create(name string) (backend.DiscreteAlarm, error) {
	s := (*hmiSoftware)(c)
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if name == "" {
		return nil, terr.New(terr.InvalidInput, "alarm name is empty")
	}
	if s.findAlarm(name) != nil {
		return nil, terr.Newf(terr.BackendFailed, "alarm name %s already in use", name)
	}
	a := s.newAlarm(name)
	s.alarms = append(s.alarms, a)
	s.st.record(func() {
		s.alarms = slices.DeleteFunc(s.alarms, func(x *alarm) bool { return x == a })
		a.deleted = true
	})
	return a, nil
}

type alarm struct {
	sw      *hmiSoftware
	name    string
	raised  string
	class   string
	origin  string
	text    []*textItem
	deleted bool
}

func (a *alarm) Name() string {
	a.sw.st.mu.Lock()
	defer a.sw.st.mu.Unlock()
	return a.name
}

func (a *alarm) RaisedStateTag() string {
	a.sw.st.mu.Lock()
	defer a.sw.st.mu.Unlock()
	return a.raised
}

func (a *alarm) AlarmClass() string {
	a.sw.st.mu.Lock()
	defer a.sw.st.mu.Unlock()
	return a.class
}

func (a *alarm) Origin() string {
	a.sw.st.mu.Lock()
	defer a.sw.st.mu.Unlock()
	return a.origin
}

// set assigns *field and records the previous value. Callers hold the state lock.
func (a *alarm) set(field *string, value string) error {
	if a.deleted {
		return terr.Newf(terr.BackendFailed, "alarm %s was deleted", a.name)
	}
	old := *field
	*field = value
	a.sw.st.record(func() { *field = old })
	return nil
}

func (a *alarm) SetRaisedStateTag(tag string) error {
	a.sw.st.mu.Lock()
	defer a.sw.st.mu.Unlock()
	return a.set(&a.raised, tag)
}

func (a *alarm) SetAlarmClass(class string) error {
	a.sw.st.mu.Lock()
	defer a.sw.st.mu.Unlock()
	if !slices.Contains(a.sw.classes, class) {
		return terr.Newf(terr.NotFound, "alarm class %s not found", class)
	}
	return a.set(&a.class, class)
}

func (a *alarm) SetOrigin(origin string) error {
	a.sw.st.mu.Lock()
	defer a.sw.st.mu.Unlock()
	return a.set(&a.origin, origin)
}

func (a *alarm) EventText() ([]backend.TextItem, error) {
	a.sw.st.mu.Lock()
	defer a.sw.st.mu.Unlock()
	out := make([]backend.TextItem, len(a.text))
	for i, ti := range a.text {
		out[i] = ti
	}
	return out, nil
}

func (a *alarm) Delete() error {
	a.sw.st.mu.Lock()
	defer a.sw.st.mu.Unlock()
	if a.deleted {
		return nil
	}
	idx := slices.Index(a.sw.alarms, a)
	if idx < 0 {
		return terr.Newf(terr.BackendFailed, "alarm %s is not attached", a.name)
	}
	a.sw.alarms = slices.Delete(a.sw.alarms, idx, idx+1)
	a.deleted = true
	a.sw.st.record(func() {
		a.sw.alarms = slices.Insert(a.sw.alarms, min(idx, len(a.sw.alarms)), a)
		a.deleted = false
	})
	return nil
}

type textItem struct {
	alarm *alarm
	lang  string
	text  string
}

func (t *textItem) Language() string { return t.lang }

func (t *textItem) Text() string {
	t.alarm.sw.st.mu.Lock()
	defer t.alarm.sw.st.mu.Unlock()
	return t.text
}

func (t *textItem) SetText(text string) error {
	t.alarm.sw.st.mu.Lock()
	defer t.alarm.sw.st.mu.Unlock()
	return t.alarm.set(&t.text, text)
}

type hmiTagTables hmiSoftware

func (c *hmiTagTables) All() ([]backend.HmiTagTable, error) {
	c.st.mu.Lock()
	defer c.st.mu.Unlock()
	out := make([]backend.HmiTagTable, len(c.tables))
	for i, t := range c.tables {
		out[i] = t
	}
	return out, nil
}

func (c *hmiTagTables) Create(name string) (backend.HmiTagTable, error) {
	s := (*hmiSoftware)(c)
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if name == "" {
		return nil, terr.New(terr.InvalidInput, "tag table name is empty")
	}
	if s.findTable(name) != nil {
		return nil, terr.Newf(terr.BackendFailed, "tag table name %s already in use", name)
	}
	t := &hmiTable{name: name}
	s.tables = append(s.tables, t)
	s.st.record(func() {
		s.tables = slices.DeleteFunc(s.tables, func(x *hmiTable) bool { return x == t })
	})
	return t, nil
}

type hmiTable struct{ name string }

func (t *hmiTable) Name() string { return t.name }

type hmiTableGroup struct {
	sw     *hmiSoftware
	name   string
	tables []*hmiTable
	groups []*hmiTableGroup
}

func (g *hmiTableGroup) Name() string { return g.name }

func (g *hmiTableGroup) TagTables() ([]backend.HmiTagTable, error) {
	g.sw.st.mu.Lock()
	defer g.sw.st.mu.Unlock()
	out := make([]backend.HmiTagTable, len(g.tables))
	for i, t := range g.tables {
		out[i] = t
	}
	return out, nil
}

func (g *hmiTableGroup) Groups() ([]backend.HmiTagTableGroup, error) {
	g.sw.st.mu.Lock()
	defer g.sw.st.mu.Unlock()
	out := make([]backend.HmiTagTableGroup, len(g.groups))
	for i, sg := range g.groups {
		out[i] = sg
	}
	return out, nil
}
