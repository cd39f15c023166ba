// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package agent

import (
	"tiasync/cli/internal/backend"
)

type hmiSoftware struct{ remote }

func (h *hmiSoftware) Tags() backend.HmiTags                  { return (*hmiTags)(h) }
func (h *hmiSoftware) DiscreteAlarms() backend.DiscreteAlarms { return (*discreteAlarms)(h) }
func (h *hmiSoftware) TagTables() backend.HmiTagTables        { return (*hmiTagTables)(h) }

func (h *hmiSoftware) AlarmClasses() ([]string, error) {
	v, err := h.do("alarm_classes")
	if err != nil {
		return nil, err
	}
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (h *hmiSoftware) Connections() ([]backend.Connection, error) {
	v, err := h.do("connections")
	if err != nil {
		return nil, err
	}
	raw, _ := v.([]any)
	out := make([]backend.Connection, 0, len(raw))
	for _, r := range raw {
		m, _ := r.(map[string]any)
		out = append(out, backend.Connection{Name: field(m, "name"), Partner: field(m, "partner")})
	}
	return out, nil
}

func (h *hmiSoftware) TagTableGroups() ([]backend.HmiTagTableGroup, error) {
	v, err := h.do("tag_table_groups")
	return many[backend.HmiTagTableGroup](h.c, v, err)
}

type hmiTags hmiSoftware

func (t *hmiTags) All() ([]backend.HmiTag, error) {
	v, err := t.do("tags")
	return many[backend.HmiTag](t.c, v, err)
}

func (t *hmiTags) Create(name, table string) (backend.HmiTag, error) {
	v, err := t.do("create_tag", name, table)
	if err != nil {
		return nil, err
	}
	return one[backend.HmiTag](t.c, v)
}

type discreteAlarms hmiSoftware

func (a *discreteAlarms) All() ([]backend.DiscreteAlarm, error) {
	v, err := a.do("alarms")
	return many[backend.DiscreteAlarm](a.c, v, err)
}

func (a *discreteAlarms) Find(name string) (backend.DiscreteAlarm, error) {
	v, err := a.do("find_alarm", name)
	if err != nil || v == nil {
		return nil, err
	}
	return one[backend.DiscreteAlarm](a.c, v)
}

func (a *discreteAlarms) Create(name string) (backend.DiscreteAlarm, error) {
	v, err := a.do("create_alarm", name)
	if err != nil {
		return nil, err
	}
	return one[backend.DiscreteAlarm](a.c, v)
}

type hmiTagTables hmiSoftware

func (t *hmiTagTables) All() ([]backend.HmiTagTable, error) {
	v, err := t.do("tag_tables")
	return many[backend.HmiTagTable](t.c, v, err)
}

func (t *hmiTagTables) Create(name string) (backend.HmiTagTable, error) {
	v, err := t.do("create_tag_table", name)
	if err != nil {
		return nil, err
	}
	return one[backend.HmiTagTable](t.c, v)
}

// hmiTag caches its attributes; setters update the cache once the agent accepted
// the change.
type hmiTag struct {
	remote
	plcTag     string
	connection string
	table      string
}

func (t *hmiTag) PlcTag() string     { return t.plcTag }
func (t *hmiTag) Connection() string { return t.connection }
func (t *hmiTag) TagTable() string   { return t.table }

func (t *hmiTag) SetName(name string) error {
	return t.set("set_name", name, &t.name)
}

func (t *hmiTag) SetPlcTag(ref string) error {
	return t.set("set_plc_tag", ref, &t.plcTag)
}

func (t *hmiTag) SetConnection(name string) error {
	return t.set("set_connection", name, &t.connection)
}

func (t *hmiTag) Delete() error {
	_, err := t.do("delete")
	return err
}

type alarm struct {
	remote
	raised string
	class  string
	origin string
}

func (a *alarm) RaisedStateTag() string { return a.raised }
func (a *alarm) AlarmClass() string     { return a.class }
func (a *alarm) Origin() string         { return a.origin }

func (a *alarm) SetRaisedStateTag(tag string) error {
	return a.set("set_raised_state_tag", tag, &a.raised)
}

func (a *alarm) SetAlarmClass(class string) error {
	return a.set("set_alarm_class", class, &a.class)
}

func (a *alarm) SetOrigin(origin string) error {
	return a.set("set_origin", origin, &a.origin)
}

func (a *alarm) EventText() ([]backend.TextItem, error) {
	v, err := a.do("event_text")
	return many[backend.TextItem](a.c, v, err)
}

func (a *alarm) Delete() error {
	_, err := a.do("delete")
	return err
}

type textItem struct {
	remote
	language string
	text     string
}

func (t *textItem) Language() string { return t.language }
func (t *textItem) Text() string     { return t.text }

func (t *textItem) SetText(text string) error {
	return t.set("set_text", text, &t.text)
}

// set runs a single-argument setter and mirrors the value into dst.
func (r *remote) set(op, value string, dst *string) error {
	if _, err := r.do(op, value); err != nil {
		return err
	}
	*dst = value
	return nil
}
