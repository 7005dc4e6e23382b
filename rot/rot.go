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

// Package rot classifies the device's boot root of trust. It runs exactly
// once per boot, before any partition is processed, reading the public-key
// hash and decrypt-only fuses and the boot header with doubled,
// fault-resistant control flow, and persists the resulting authentication
// and encryption postures to the boot status store and an in-process
// redundant mirror.
package rot

import (
	"errors"
	"fmt"

	"k8s.io/klog/v2"

	"github.com/hardened-boot/secureload/bootstatus"
	"github.com/hardened-boot/secureload/image"
)

var (
	// ErrGlitchDetected reports a structurally impossible outcome of a
	// redundant check. It indicates active tampering or fault injection,
	// never a retryable condition.
	ErrGlitchDetected = errors.New("glitch detected")

	// ErrBhdrAuthNotAllowed reports the rejected combination of programmed
	// public-key fuses and boot-header authentication: the two trust roots
	// are mutually exclusive and a device configured with both must not
	// boot.
	ErrBhdrAuthNotAllowed = errors.New("boot header authentication not allowed with programmed public-key fuses")
)

// Fuse bank word layout consumed by the classifier.
const (
	// PPKScanStart and PPKScanEnd bound the three public-key hash fuse
	// banks, scanned inclusively.
	PPKScanStart = 0
	PPKScanEnd   = 23

	// SecCtrlWord carries the security-control bits.
	SecCtrlWord = 24
	// DecOnlyMask selects the decrypt-only bits of SecCtrlWord.
	DecOnlyMask = 0x0000ffff

	// NumFuseWords is the fuse bank capacity the classifier requires.
	NumFuseWords = 25
)

// Boot status store words holding the persisted postures.
const (
	AuthStateWord = 0
	EncStateWord  = 1
)

// FuseBank is read-only access to the hardware fuse words.
type FuseBank interface {
	Word(index int) uint32
}

// HeaderSource provides redundant reads of the boot header attributes.
type HeaderSource interface {
	ImgAttributes() uint32
	PlmKeySource() uint32
}

// AuthPosture is the device's authentication trust posture.
type AuthPosture uint32

// EncPosture is the device's encryption trust posture.
type EncPosture uint32

// Posture values use wide bit patterns so a single flipped bit cannot turn
// one posture into another.
const (
	AuthHWRoT     AuthPosture = 0xaaaaaaaa
	AuthEmulHWRoT AuthPosture = 0x55555555
	AuthNonSecure AuthPosture = 0xd2d2d2d2

	EncHWRoT     EncPosture = 0xa5a5a5a5
	EncEmulHWRoT EncPosture = 0x5a5a5a5a
	EncNonSecure EncPosture = 0xd2d2d2d2
)

func (a AuthPosture) String() string {
	switch a {
	case AuthHWRoT:
		return "Asymmetric HWRoT"
	case AuthEmulHWRoT:
		return "Emulated Asymmetric HWRoT"
	case AuthNonSecure:
		return "Non secure"
	}
	return fmt.Sprintf("invalid (%#x)", uint32(a))
}

func (e EncPosture) String() string {
	switch e {
	case EncHWRoT:
		return "Symmetric HWRoT"
	case EncEmulHWRoT:
		return "Emulated Symmetric HWRoT"
	case EncNonSecure:
		return "Non secure"
	}
	return fmt.Sprintf("invalid (%#x)", uint32(e))
}

// State is the classified root-of-trust state: written once by
// SetSecureState, read many times by the rest of the boot process. Each
// posture is held twice; accessors cross-check the pair on every read.
type State struct {
	auth       AuthPosture
	authMirror AuthPosture
	enc        EncPosture
	encMirror  EncPosture
}

// Auth returns the authentication posture, cross-checking the redundant
// mirror.
func (s *State) Auth() (AuthPosture, error) {
	if s.auth != s.authMirror {
		return 0, fmt.Errorf("%w: authentication state mirror mismatch", ErrGlitchDetected)
	}
	return s.auth, nil
}

// Enc returns the encryption posture, cross-checking the redundant mirror.
func (s *State) Enc() (EncPosture, error) {
	if s.enc != s.encMirror {
		return 0, fmt.Errorf("%w: encryption state mirror mismatch", ErrGlitchDetected)
	}
	return s.enc, nil
}

// Options are the classifier inputs.
type Options struct {
	Fuses  FuseBank
	Header HeaderSource
	Store  *bootstatus.Store
}

// SetSecureState determines the device's authentication and encryption
// postures and persists both to the boot status store and the returned
// in-process mirror before returning. A storage write failure is fatal and
// must abort boot.
func SetSecureState(opts Options) (*State, error) {
	if opts.Fuses == nil || opts.Header == nil || opts.Store == nil {
		return nil, errors.New("fuse bank, header source and status store are all required")
	}

	auth, err := classifyAuth(opts.Fuses, opts.Header)
	if err != nil {
		return nil, err
	}

	enc := classifyEnc(opts.Fuses, opts.Header)

	if auth == AuthNonSecure && enc == EncNonSecure {
		klog.Info("Non secure boot")
	}

	st := &State{
		auth:       auth,
		authMirror: auth,
		enc:        enc,
		encMirror:  enc,
	}

	if err := opts.Store.WriteWord(AuthStateWord, uint32(auth)); err != nil {
		return nil, err
	}
	if err := opts.Store.WriteWord(EncStateWord, uint32(enc)); err != nil {
		return nil, err
	}

	return st, nil
}

// classifyAuth decides the authentication posture. The public-key fuse scan
// is executed twice and accepted if either duplicate succeeds; a glitch
// reported by either duplicate is propagated, never degraded to a
// non-secure outcome.
func classifyAuth(fuses FuseBank, hdr HeaderSource) (AuthPosture, error) {
	programmed, err := nonZeroPPK(fuses)
	programmedTmp, errTmp := nonZeroPPK(fuses)

	if errors.Is(err, ErrGlitchDetected) || errors.Is(errTmp, ErrGlitchDetected) {
		if err == nil {
			err = errTmp
		}
		return 0, err
	}

	bhAuth := image.BHAuthEnabled(hdr.ImgAttributes())
	bhAuthTmp := image.BHAuthEnabled(hdr.ImgAttributes())

	if programmed || programmedTmp {
		if bhAuth || bhAuthTmp {
			return 0, ErrBhdrAuthNotAllowed
		}
		klog.Infof("State of Boot(Authentication): %v", AuthHWRoT)
		return AuthHWRoT, nil
	}

	if bhAuth || bhAuthTmp {
		klog.Infof("State of Boot(Authentication): %v", AuthEmulHWRoT)
		return AuthEmulHWRoT, nil
	}
	return AuthNonSecure, nil
}

// classifyEnc decides the encryption posture with doubled fuse and header
// reads.
func classifyEnc(fuses FuseBank, hdr HeaderSource) EncPosture {
	decOnly := fuses.Word(SecCtrlWord) & DecOnlyMask
	decOnlyTmp := fuses.Word(SecCtrlWord) & DecOnlyMask

	if decOnly != 0 || decOnlyTmp != 0 {
		klog.Infof("State of Boot(Encryption): %v", EncHWRoT)
		return EncHWRoT
	}

	keySrc := hdr.PlmKeySource()
	keySrcTmp := hdr.PlmKeySource()

	if keySrc != 0 || keySrcTmp != 0 {
		klog.Infof("State of Boot(Encryption): %v", EncEmulHWRoT)
		return EncEmulHWRoT
	}
	return EncNonSecure
}

// nonZeroPPK scans the public-key hash fuse banks and reports whether any
// word is programmed. The terminating scan index is validated against the
// expected range: an index outside it is structurally impossible under
// correct execution and is treated as evidence of fault injection.
func nonZeroPPK(fuses FuseBank) (bool, error) {
	idx := PPKScanStart
	for ; idx <= PPKScanEnd; idx++ {
		if fuses.Word(idx) != 0 {
			break
		}
	}
	return validateScanIndex(idx, PPKScanStart, PPKScanEnd)
}

// validateScanIndex classifies the terminating index of a bounded scan:
// within [start, end] means a hit, exactly end+1 means a clean miss,
// anything else is a glitch.
func validateScanIndex(idx, start, end int) (bool, error) {
	switch {
	case idx > end+1:
		return false, fmt.Errorf("%w: scan index %d beyond range end %d", ErrGlitchDetected, idx, end)
	case idx < start:
		return false, fmt.Errorf("%w: scan index %d before range start %d", ErrGlitchDetected, idx, start)
	case idx <= end:
		return true, nil
	}
	return false, nil
}
