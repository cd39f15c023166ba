// Copyright (c) 2025 The tiasync Authors
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"sync"
	"time"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"

	"tiasync/cli/internal/terminal"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// status is a one-line spinner drawn in a pterm area. Its text can be replaced
// while it runs. On a non-interactive terminal it only logs text changes.
type status struct {
	mu   sync.Mutex
	text string
	area *pterm.AreaPrinter
	stop chan struct{}
	wg   sync.WaitGroup
}

// startStatus hides the cursor and starts the spinner.
func startStatus(text string) *status {
	s := &status{text: text, stop: make(chan struct{})}
	if !terminal.Interactive() {
		pterm.Info.Println(text)
		return s
	}
	cursor.Hide()
	area, err := pterm.DefaultArea.WithRemoveWhenDone(true).Start()
	if err != nil {
		cursor.Show()
		return s
	}
	s.area = area
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		i := 0
		for {
			select {
			case <-t.C:
				i++
				s.mu.Lock()
				area.Update(fmt.Sprintf("%s %s", spinnerFrames[i%len(spinnerFrames)], s.text))
				s.mu.Unlock()
			case <-s.stop:
				return
			}
		}
	}()
	return s
}

// Set replaces the text shown next to the spinner.
func (s *status) Set(text string) {
	s.mu.Lock()
	changed := s.text != text
	s.text = text
	s.mu.Unlock()
	if changed && s.area == nil && !terminal.Interactive() {
		pterm.Info.Println(text)
	}
}

// Stop removes the spinner line and shows the cursor again.
func (s *status) Stop() {
	if s.area == nil {
		return
	}
	close(s.stop)
	s.wg.Wait()
	_ = s.area.Stop()
	s.area = nil
	cursor.Show()
}
