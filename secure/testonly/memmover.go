// Copyright 2024 The Secure Loader authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package testonly provides support for pipeline tests.
package testonly

import (
	"fmt"

	"github.com/hardened-boot/secureload/secure"
)

// Op records one data mover invocation.
type Op struct {
	Src   int64
	Len   int
	Flags secure.Flags
}

func (o Op) String() string {
	phase := "block"
	switch {
	case o.Flags&secure.CopyInitiate != 0:
		phase = "initiate"
	case o.Flags&secure.CopyWaitDone != 0:
		phase = "wait"
	}
	return fmt.Sprintf("%s src=%#x len=%d", phase, o.Src, o.Len)
}

type pendingXfer struct {
	src int64
	dst []byte
}

// MemMover is an in-memory data mover implementing the initiate/wait
// two-phase protocol over a byte slice standing in for the source medium.
// Initiated transfers are not completed until their wait phase, so tests
// observe the real ping-pong handshake.
type MemMover struct {
	Data []byte

	// Ops is the recorded invocation log.
	Ops []Op

	// Events, when non-nil, receives a line per invocation, interleaved
	// with other recorders sharing the slice.
	Events *[]string

	// FailAt injects a failure on the Nth invocation (1-based); 0 never
	// fails.
	FailAt int

	pending *pendingXfer
	calls   int
}

func (m *MemMover) Transfer(src int64, dst []byte, flags secure.Flags) error {
	op := Op{Src: src, Len: len(dst), Flags: flags}
	m.Ops = append(m.Ops, op)
	if m.Events != nil {
		*m.Events = append(*m.Events, op.String())
	}

	m.calls++
	if m.FailAt != 0 && m.calls == m.FailAt {
		return fmt.Errorf("injected transfer failure on call %d", m.calls)
	}

	switch {
	case flags&secure.CopyInitiate != 0:
		if m.pending != nil {
			return fmt.Errorf("initiate with transfer already in flight")
		}
		m.pending = &pendingXfer{src: src, dst: dst}
		return nil
	case flags&secure.CopyWaitDone != 0:
		if m.pending == nil {
			return fmt.Errorf("wait on a transfer that was never initiated")
		}
		p := m.pending
		m.pending = nil
		if p.src != src {
			return fmt.Errorf("wait src %#x does not match initiated src %#x", src, p.src)
		}
		return m.read(p.src, p.dst)
	}
	return m.read(src, dst)
}

func (m *MemMover) read(src int64, dst []byte) error {
	if src < 0 || src+int64(len(dst)) > int64(len(m.Data)) {
		return fmt.Errorf("read [%d, %d) outside medium of %d bytes", src, src+int64(len(dst)), len(m.Data))
	}
	copy(dst, m.Data[src:])
	return nil
}
