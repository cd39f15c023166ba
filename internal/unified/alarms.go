// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package unified

import (
	"slices"

	"tiasync/cli/internal/backend"
	terr "tiasync/cli/internal/errors"
)

// AlarmRequest is one desired discrete alarm, keyed by the tag that raises it.
type AlarmRequest struct {
	Device    string
	ClassName string
	TagName   string
	Origin    string
	// Descriptions maps a language code such as "en-US" to the alarm text.
	Descriptions map[string]string
}

// EventText wraps an alarm description in the rich-text body the HMI expects.
func EventText(text string) string {
	return "<body><p>" + text + "</p></body>"
}

// SyncAlarm finds or creates the alarm named after req.TagName and sets its
// raised-state tag, class, origin and one text per active project language.
func SyncAlarm(s *Session, device backend.HmiSoftware, req AlarmRequest) error {
	if req.TagName == "" {
		return terr.New(terr.InvalidInput, "alarm request needs a tag name")
	}
	s.SetText("Rebuild alarm " + req.TagName)
	return s.Do("Build "+req.TagName, func() error {
		classes, err := device.AlarmClasses()
		if err != nil {
			return err
		}
		if !slices.Contains(classes, req.ClassName) {
			return terr.Newf(terr.LookupFailed, "%s has no alarm class %q", device.Name(), req.ClassName)
		}

		alarms := device.DiscreteAlarms()
		a, err := alarms.Find(req.TagName)
		if err != nil {
			return err
		}
		if a == nil {
			if a, err = alarms.Create(req.TagName); err != nil {
				return err
			}
		}
		if err := a.SetRaisedStateTag(req.TagName); err != nil {
			return err
		}
		if err := a.SetAlarmClass(req.ClassName); err != nil {
			return err
		}
		if err := a.SetOrigin(req.Origin); err != nil {
			return err
		}

		items, err := a.EventText()
		if err != nil {
			return err
		}
		for _, lang := range s.Languages() {
			i := slices.IndexFunc(items, func(it backend.TextItem) bool { return it.Language() == lang })
			if i < 0 {
				return terr.Newf(terr.LookupFailed, "alarm %s has no text for %s", req.TagName, lang)
			}
			if err := items[i].SetText(EventText(req.Descriptions[lang])); err != nil {
				return err
			}
		}
		return nil
	})
}

// ResolveAlarmClass returns the first of className, tagName and defaultClass that
// names an alarm class of device.
func ResolveAlarmClass(device backend.HmiSoftware, className, tagName, defaultClass string) (string, error) {
	classes, err := device.AlarmClasses()
	if err != nil {
		return "", terr.Wrap(terr.BackendFailed, "list alarm classes of "+device.Name(), err)
	}
	for _, c := range []string{className, tagName, defaultClass} {
		if c != "" && slices.Contains(classes, c) {
			return c, nil
		}
	}
	return "", terr.Newf(terr.LookupFailed, "%s has none of the alarm classes %q, %q, %q", device.Name(), className, tagName, defaultClass)
}
