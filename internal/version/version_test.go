/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	info := Get()
	if info.Version != Version || info.GoVersion != runtime.Version() {
		t.Fatalf("info = %+v", info)
	}
	if s := info.String(); !strings.HasPrefix(s, "grimnir-autopilot "+Version) {
		t.Fatalf("String() = %q", s)
	}
}
