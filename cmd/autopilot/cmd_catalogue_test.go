/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/friendsincode/grimnir_autopilot/internal/transition"
)

func TestPrintStyles(t *testing.T) {
	var buf bytes.Buffer
	if err := printStyles(&buf, transition.Styles(), false); err != nil {
		t.Fatalf("printStyles: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(transition.StyleNames())+1 {
		t.Fatalf("lines = %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "STYLE") {
		t.Fatalf("header = %q", lines[0])
	}
}

func TestPrintRitualsJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := printRituals(&buf, transition.DefaultPresets(), true); err != nil {
		t.Fatalf("printRituals: %v", err)
	}
	var got []transition.RitualPreset
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 5 || got[0].Key != transition.RitualInvocation {
		t.Fatalf("rituals = %+v", got)
	}
}

func TestPrintRitualsTable(t *testing.T) {
	var buf bytes.Buffer
	if err := printRituals(&buf, transition.DefaultPresets(), false); err != nil {
		t.Fatalf("printRituals: %v", err)
	}
	if !strings.Contains(buf.String(), "ghost_fade > melody_merge") {
		t.Fatalf("table = %q", buf.String())
	}
}
