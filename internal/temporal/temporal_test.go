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

package temporal

import (
	"errors"
	"testing"
)

func TestEither(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")

	for _, test := range []struct {
		name string
		errs []error
		want error
	}{
		{name: "both succeed", errs: []error{nil, nil}},
		{name: "first fails", errs: []error{errA, nil}},
		{name: "second fails", errs: []error{nil, errB}},
		{name: "both fail", errs: []error{errA, errB}, want: errA},
	} {
		t.Run(test.name, func(t *testing.T) {
			calls := 0
			err := Either(func() error {
				e := test.errs[calls]
				calls++
				return e
			})
			if calls != 2 {
				t.Errorf("f invoked %d times, want 2", calls)
			}
			if !errors.Is(err, test.want) {
				t.Errorf("got %v, want %v", err, test.want)
			}
		})
	}
}

func TestEitherNonZero(t *testing.T) {
	for _, test := range []struct {
		name string
		vals []uint32
		want bool
	}{
		{name: "both zero", vals: []uint32{0, 0}, want: false},
		{name: "first non-zero", vals: []uint32{7, 0}, want: true},
		{name: "second non-zero", vals: []uint32{0, 7}, want: true},
		{name: "both non-zero", vals: []uint32{7, 7}, want: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			calls := 0
			got := EitherNonZero(func() uint32 {
				v := test.vals[calls]
				calls++
				return v
			})
			if calls != 2 {
				t.Errorf("f invoked %d times, want 2", calls)
			}
			if got != test.want {
				t.Errorf("got %v, want %v", got, test.want)
			}
		})
	}
}

func TestConstantTimeEqual(t *testing.T) {
	a := []byte{1, 2, 3, 4}

	if !ConstantTimeEqual(a, []byte{1, 2, 3, 4}) {
		t.Error("equal inputs reported unequal")
	}
	if ConstantTimeEqual(a, []byte{1, 2, 3, 5}) {
		t.Error("unequal inputs reported equal")
	}
	if ConstantTimeEqual(a, a[:3]) {
		t.Error("inputs of different length reported equal")
	}
}
