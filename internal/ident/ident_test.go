package ident

import (
	"strings"
	"testing"

	"github.com/u1974754/p-final-multi/internal/wire"
)

func TestNewClientName_FillsFixedField(t *testing.T) {
	a, b := NewClientName(), NewClientName()
	if len(a) != wire.NameSize {
		t.Fatalf("len=%d", len(a))
	}
	if a == b {
		t.Fatalf("names not unique: %q", a)
	}
	if wire.FixedString(a) != a {
		t.Fatalf("name altered by wire truncation: %q", a)
	}
}

func TestMakeRunID_Prefix(t *testing.T) {
	if id := MakeRunID(); !strings.HasPrefix(id, "run-") {
		t.Fatalf("id=%q", id)
	}
}
