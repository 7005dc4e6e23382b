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
	"errors"
	"strings"
	"testing"
)

func testStore(t *testing.T, dev *MemDevice) *Store {
	t.Helper()
	s, err := Open(dev, []byte("test-device-secret"), []byte("boot-status"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

func TestOpenValidation(t *testing.T) {
	if _, err := Open(nil, []byte("secret"), nil); err == nil {
		t.Error("Open with no device succeeded")
	}
	if _, err := Open(&MemDevice{}, nil, nil); err == nil {
		t.Error("Open with no secret succeeded")
	}
}

func TestWriteReadVerify(t *testing.T) {
	dev := &MemDevice{}
	s := testStore(t, dev)

	if err := s.WriteWord(3, 0xa5a5a5a5); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}
	if got, err := s.ReadWord(3); err != nil || got != 0xa5a5a5a5 {
		t.Errorf("ReadWord = %#x, %v; want 0xa5a5a5a5", got, err)
	}
	if err := s.Verify(); err != nil {
		t.Errorf("Verify after write: %v", err)
	}

	if n, err := s.Counter(); err != nil || n != 1 {
		t.Errorf("Counter = %d, %v; want 1", n, err)
	}
	if err := s.WriteWord(3, 0x5a5a5a5a); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}
	if n, err := s.Counter(); err != nil || n != 2 {
		t.Errorf("Counter = %d, %v; want 2", n, err)
	}
}

func TestVerifyDetectsTamper(t *testing.T) {
	dev := &MemDevice{}
	s := testStore(t, dev)

	if err := s.WriteWord(0, 0xaaaaaaaa); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}

	// Rewrite a status word on the raw device, bypassing the seal.
	if err := dev.WriteWord(0, 0xd2d2d2d2); err != nil {
		t.Fatalf("device WriteWord: %v", err)
	}
	if err := s.Verify(); err == nil {
		t.Error("Verify passed on tampered status area")
	}
}

func TestVerifyDetectsCounterRollback(t *testing.T) {
	dev := &MemDevice{}
	s := testStore(t, dev)

	if err := s.WriteWord(0, 1); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}
	if err := s.WriteWord(0, 2); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}

	// Roll the write counter back on the raw device. The seal covers it.
	if err := dev.WriteWord(counterWord, 0); err != nil {
		t.Fatalf("device WriteWord: %v", err)
	}
	if err := s.Verify(); err == nil {
		t.Error("Verify passed on rolled-back counter")
	}
}

func TestWriteWordFailures(t *testing.T) {
	t.Run("out of range", func(t *testing.T) {
		s := testStore(t, &MemDevice{})
		for _, idx := range []int{-1, NumWords, counterWord, TotalWords} {
			if err := s.WriteWord(idx, 0); !errors.Is(err, ErrStorageWrite) {
				t.Errorf("WriteWord(%d): got %v, want ErrStorageWrite", idx, err)
			}
		}
	})

	t.Run("device write fault", func(t *testing.T) {
		dev := &MemDevice{WriteErr: errors.New("nvram write fault")}
		s := testStore(t, dev)
		if err := s.WriteWord(0, 1); !errors.Is(err, ErrStorageWrite) {
			t.Errorf("got %v, want ErrStorageWrite", err)
		}
	})
}

func TestKeyedSeal(t *testing.T) {
	dev := &MemDevice{}
	s := testStore(t, dev)
	if err := s.WriteWord(0, 0xcafe); err != nil {
		t.Fatalf("WriteWord: %v", err)
	}

	// A store opened with a different secret must reject the seal.
	other, err := Open(dev, []byte("other-secret"), []byte("boot-status"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := other.Verify(); err == nil {
		t.Error("Verify passed under the wrong sealing key")
	}
}

func TestCheckVersion(t *testing.T) {
	t.Run("initializes unprogrammed epoch", func(t *testing.T) {
		s := testStore(t, &MemDevice{})
		if err := s.CheckVersion("1.2.3"); err != nil {
			t.Fatalf("CheckVersion: %v", err)
		}
		v, err := s.storedVersion()
		if err != nil {
			t.Fatalf("storedVersion: %v", err)
		}
		if got := v.String(); got != "1.2.3" {
			t.Errorf("stored epoch %q, want 1.2.3", got)
		}
	})

	t.Run("same version passes", func(t *testing.T) {
		s := testStore(t, &MemDevice{})
		if err := s.CheckVersion("1.2.3"); err != nil {
			t.Fatalf("CheckVersion: %v", err)
		}
		if err := s.CheckVersion("1.2.3"); err != nil {
			t.Errorf("CheckVersion repeat: %v", err)
		}
	})

	t.Run("newer version advances epoch", func(t *testing.T) {
		s := testStore(t, &MemDevice{})
		if err := s.CheckVersion("1.2.3"); err != nil {
			t.Fatalf("CheckVersion: %v", err)
		}
		if err := s.CheckVersion("2.0.0"); err != nil {
			t.Fatalf("CheckVersion upgrade: %v", err)
		}
		v, err := s.storedVersion()
		if err != nil {
			t.Fatalf("storedVersion: %v", err)
		}
		if got := v.String(); got != "2.0.0" {
			t.Errorf("stored epoch %q, want 2.0.0", got)
		}
	})

	t.Run("rollback rejected", func(t *testing.T) {
		s := testStore(t, &MemDevice{})
		if err := s.CheckVersion("2.0.0"); err != nil {
			t.Fatalf("CheckVersion: %v", err)
		}
		err := s.CheckVersion("1.9.9")
		if err == nil || !strings.Contains(err.Error(), "rollback") {
			t.Errorf("got %v, want rollback error", err)
		}
	})

	t.Run("malformed version rejected", func(t *testing.T) {
		s := testStore(t, &MemDevice{})
		if err := s.CheckVersion("not-a-version"); err == nil {
			t.Error("CheckVersion accepted a malformed version")
		}
	})
}
