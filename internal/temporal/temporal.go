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

// Package temporal provides doubled-execution primitives used by security
// decisions to resist single-event upsets and fault injection. Callers must
// not collapse a doubled invocation into a single one: the duplication is a
// deliberate security property, not redundancy to be optimized away.
package temporal

import "crypto/subtle"

// Either invokes f twice and succeeds if either invocation succeeds,
// tolerating transient corruption of one attempt. The error of the first
// invocation is returned when both fail.
func Either(f func() error) error {
	err := f()
	errTmp := f()

	if err == nil || errTmp == nil {
		return nil
	}
	return err
}

// EitherNonZero reads a 32-bit value twice through f and reports whether
// either read observed a non-zero value.
func EitherNonZero(f func() uint32) bool {
	v := f()
	vTmp := f()

	return v != 0 || vTmp != 0
}

// ConstantTimeEqual compares a and b in constant time, twice. Both
// comparisons must agree that the inputs are equal.
func ConstantTimeEqual(a, b []byte) bool {
	eq := subtle.ConstantTimeCompare(a, b)
	eqTmp := subtle.ConstantTimeCompare(a, b)

	return eq == 1 && eqTmp == 1
}
