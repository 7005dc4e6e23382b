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

package bootstatus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-semver/semver"
)

const (
	// VersionBase is the first status word of the firmware version epoch.
	VersionBase = 8
	// versionWords bounds the stored version string.
	versionWords = 8
	versionLen   = versionWords * 4
)

// CheckVersion verifies the running firmware version against the stored
// version epoch.
//
// If running is older than the stored epoch an error is returned. If it is
// more recent the epoch is updated. An unprogrammed epoch is initialized to
// the running version.
func (s *Store) CheckVersion(running string) error {
	runningVersion, err := semver.NewVersion(running)
	if err != nil {
		return err
	}

	stored, err := s.storedVersion()
	if err != nil {
		return err
	}
	if stored == nil {
		return s.updateVersion(runningVersion)
	}

	switch {
	case runningVersion.LessThan(*stored):
		return fmt.Errorf("version rollback: running %s, expected at least %s", runningVersion, stored)
	case stored.LessThan(*runningVersion):
		return s.updateVersion(runningVersion)
	}
	return nil
}

// storedVersion returns the persisted version epoch, nil if unprogrammed.
func (s *Store) storedVersion() (*semver.Version, error) {
	b := make([]byte, 0, versionLen)

	for i := 0; i < versionWords; i++ {
		w, err := s.ReadWord(VersionBase + i)
		if err != nil {
			return nil, err
		}
		b = binary.LittleEndian.AppendUint32(b, w)
	}

	v := strings.TrimRight(string(b), "\x00")
	if v == "" {
		return nil, nil
	}
	return semver.NewVersion(v)
}

func (s *Store) updateVersion(v *semver.Version) error {
	b := []byte(v.String())
	if len(b) > versionLen {
		return errors.New("version string too long")
	}
	b = append(b, make([]byte, versionLen-len(b))...)

	for i := 0; i < versionWords; i++ {
		if err := s.WriteWord(VersionBase+i, binary.LittleEndian.Uint32(b[i*4:])); err != nil {
			return err
		}
	}
	return nil
}
