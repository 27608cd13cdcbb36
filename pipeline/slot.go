// {{{ Copyright (c) Paul R. Tagliamonte <paul@k3xec.com>, 2022
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE. }}}

package pipeline

import (
	"errors"
	"sync"

	"hz.tools/rx/source"
)

// Slot holds the active Source. Replacing it detaches the old Source under
// the lock, stops and closes it outside the lock, and only then publishes
// the new one, so two sources never run at once.
type Slot struct {
	mu  sync.Mutex
	src source.Source
	gen uint64

	// swap serializes whole replacements.
	swap sync.Mutex
}

// Current returns the active Source, which may be nil, and a generation
// number that changes whenever the Source does.
func (s *Slot) Current() (source.Source, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src, s.gen
}

func (s *Slot) detach() source.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.src
	s.src = nil
	s.gen++
	return old
}

func (s *Slot) publish(src source.Source) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.src = src
	s.gen++
}

// Replace shuts down the active Source, then calls open to produce the next
// one. If open fails, the Slot is left empty. Errors from shutting down
// the old Source are returned alongside any from open.
func (s *Slot) Replace(open func() (source.Source, error)) error {
	s.swap.Lock()
	defer s.swap.Unlock()

	var errs []error
	if old := s.detach(); old != nil {
		if err := old.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := old.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	next, err := open()
	if err != nil {
		errs = append(errs, err)
		return errors.Join(errs...)
	}
	s.publish(next)
	return errors.Join(errs...)
}

// Close shuts down the active Source and empties the Slot.
func (s *Slot) Close() error {
	return s.Replace(func() (source.Source, error) { return nil, nil })
}

// vim: foldmethod=marker
