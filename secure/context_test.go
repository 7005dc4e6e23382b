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

package secure_test

import (
	"errors"
	"testing"

	"github.com/hardened-boot/secureload/image"
	"github.com/hardened-boot/secureload/secure"
	"github.com/hardened-boot/secureload/secure/testonly"
)

// stubProcessor satisfies the processing strategy interface for
// initialization tests; Process is never reached.
type stubProcessor struct {
	clearErr error
}

func (stubProcessor) Process(s *secure.Context, dst []byte, blockSize int, last bool) error {
	return errors.New("not reached")
}

func (p stubProcessor) Clear() error {
	return p.clearErr
}

func TestInitValidation(t *testing.T) {
	plainDesc := &image.Descriptor{TotalLength: 64, DataOffset: 0}

	for _, test := range []struct {
		name string
		p    secure.Params
	}{
		{
			name: "missing descriptor",
			p:    secure.Params{Mover: &testonly.MemMover{}},
		},
		{
			name: "missing mover",
			p:    secure.Params{Descriptor: plainDesc},
		},
		{
			name: "no processing mode selected",
			p: secure.Params{
				Descriptor: plainDesc,
				Mover:      &testonly.MemMover{},
			},
		},
		{
			name: "unsupported checksum type",
			p: secure.Params{
				Descriptor: &image.Descriptor{TotalLength: 64, Attributes: 0x2},
				Mover:      &testonly.MemMover{},
			},
		},
		{
			name: "undersized buffers",
			p: secure.Params{
				Descriptor: &image.Descriptor{TotalLength: 64, Attributes: uint32(image.ChecksumSHA3)},
				Mover:      &testonly.MemMover{Data: make([]byte, 256)},
				Buffers:    secure.NewBuffers(16),
				ChunkSize:  1024,
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			var ctx secure.Context
			err := secure.Init(&ctx, test.p)
			if !errors.Is(err, secure.ErrInit) {
				t.Errorf("got %v, want ErrInit", err)
			}
		})
	}
}

func TestInitChecksumSeedFailure(t *testing.T) {
	// The stored checksum copy is the very first transfer.
	mover := &testonly.MemMover{Data: make([]byte, 256), FailAt: 1}

	var ctx secure.Context
	err := secure.Init(&ctx, secure.Params{
		Descriptor: &image.Descriptor{TotalLength: 64, DataOffset: 48, Attributes: uint32(image.ChecksumSHA3)},
		Mover:      mover,
	})
	if !errors.Is(err, secure.ErrInit) {
		t.Fatalf("got %v, want ErrInit", err)
	}
	// Clear must remain usable after a failed initialization.
	if err := ctx.Clear(); err != nil {
		t.Errorf("Clear after failed Init: %v", err)
	}
}

// TestInitRedundantStrategyBinding exercises the doubled strategy
// initialization: both duplicate invocations run, and one succeeding is
// enough even when the other reports a transient fault.
func TestInitRedundantStrategyBinding(t *testing.T) {
	for _, test := range []struct {
		name     string
		errs     []error
		wantOK   bool
		wantRuns int
	}{
		{
			name:     "both succeed",
			errs:     []error{nil, nil},
			wantOK:   true,
			wantRuns: 2,
		},
		{
			name:     "first fails",
			errs:     []error{errors.New("transient"), nil},
			wantOK:   true,
			wantRuns: 2,
		},
		{
			name:     "second fails",
			errs:     []error{nil, errors.New("transient")},
			wantOK:   true,
			wantRuns: 2,
		},
		{
			name:     "both fail",
			errs:     []error{errors.New("a"), errors.New("b")},
			wantOK:   false,
			wantRuns: 2,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			runs := 0
			init := func(s *secure.Context) (secure.Processor, error) {
				err := test.errs[runs]
				runs++
				if err != nil {
					return nil, err
				}
				return stubProcessor{}, nil
			}

			var ctx secure.Context
			err := secure.Init(&ctx, secure.Params{
				Descriptor: &image.Descriptor{TotalLength: 64},
				Mover:      &testonly.MemMover{},
				AuthInit:   init,
			})
			if test.wantOK && err != nil {
				t.Errorf("Init: %v", err)
			}
			if !test.wantOK && err == nil {
				t.Error("Init succeeded, want failure")
			}
			if runs != test.wantRuns {
				t.Errorf("strategy init ran %d times, want %d", runs, test.wantRuns)
			}
		})
	}
}

func TestClear(t *testing.T) {
	t.Run("zero context", func(t *testing.T) {
		var ctx secure.Context
		if err := ctx.Clear(); err != nil {
			t.Errorf("Clear: %v", err)
		}
	})

	t.Run("engine reset despite teardown failure", func(t *testing.T) {
		eng := &testonly.RecordingEngine{Engine: secure.NewSHA3Engine()}

		var ctx secure.Context
		if err := secure.Init(&ctx, secure.Params{
			Descriptor: &image.Descriptor{TotalLength: 64},
			Mover:      &testonly.MemMover{},
			Engine:     eng,
			AuthInit: func(s *secure.Context) (secure.Processor, error) {
				return stubProcessor{clearErr: errors.New("key zeroization failed")}, nil
			},
		}); err != nil {
			t.Fatalf("Init: %v", err)
		}

		if err := ctx.Clear(); err == nil {
			t.Error("Clear succeeded, want teardown failure")
		}
		// The hash engine must be placed in reset regardless.
		if eng.Resets != 1 {
			t.Errorf("engine reset %d times, want 1", eng.Resets)
		}
	})
}
