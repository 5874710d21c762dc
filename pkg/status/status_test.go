package status

import (
	"strings"
	"testing"
)

func TestDecode_NeverEmpty(t *testing.T) {
	for c := Code(0); c < 128; c++ {
		if got := Decode(c); len(got) == 0 {
			t.Fatalf("Decode(%d) returned empty set", c)
		}
	}
}

func TestDecode_Zero(t *testing.T) {
	got := Decode(0)
	if len(got) != 1 || got[0].Flag != OK {
		t.Fatalf("Decode(0) = %v, want [ok]", got)
	}
	if got[0].Detail() != "Code 0: OK" {
		t.Errorf("Detail() = %q", got[0].Detail())
	}
}

func TestDecode_SingleBits(t *testing.T) {
	tests := []struct {
		code Code
		want Flag
	}{
		{1, NoValue},
		{2, Timeout},
		{4, IllegalOpMode},
		{8, RemoteError},
		{16, SplitProgress},
		{32, LocalError},
		{64, InitializeError},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			got := Decode(tt.code)
			if len(got) != 1 {
				t.Fatalf("Decode(%d) = %v, want one flag", tt.code, got)
			}
			if got[0].Flag != tt.want {
				t.Errorf("Decode(%d) = %v, want %v", tt.code, got[0].Flag, tt.want)
			}
			if !strings.HasPrefix(got[0].Detail(), "Code ") {
				t.Errorf("Detail() = %q, want fixed description", got[0].Detail())
			}
		})
	}
}

func TestDecode_CoOccurringFlagsInOrder(t *testing.T) {
	got := Decode(Code(RemoteError) | Code(Timeout))
	if len(got) != 2 {
		t.Fatalf("Decode(10) = %v, want two flags", got)
	}
	if got[0].Flag != Timeout || got[1].Flag != RemoteError {
		t.Errorf("Decode(10) order = %v, want [timeout remote_error]", got)
	}
}

func TestDecode_Unknown(t *testing.T) {
	for _, c := range []Code{128, 256, 1 << 20} {
		got := Decode(c)
		if len(got) != 1 || got[0].Flag != Unknown {
			t.Errorf("Decode(%d) = %v, want [unknown]", c, got)
			continue
		}
		if !strings.Contains(got[0].Detail(), "unknown") {
			t.Errorf("Detail() = %q, want mention of unknown", got[0].Detail())
		}
		if got[0].Raw != c {
			t.Errorf("Raw = %d, want %d", got[0].Raw, c)
		}
	}

	// Unknown high bits next to a known bit only report the known one.
	got := Decode(128 | 8)
	if len(got) != 1 || got[0].Flag != RemoteError {
		t.Errorf("Decode(136) = %v, want [remote_error]", got)
	}
}

func TestDecode_NegativeIsTotal(t *testing.T) {
	got := Decode(-1)
	if len(got) != len(knownBits) {
		t.Errorf("Decode(-1) = %v, want all %d known flags", got, len(knownBits))
	}
}

func TestCode_Describe(t *testing.T) {
	desc := Code(Timeout | RemoteError).Describe()
	i := strings.Index(desc, "Code 2:")
	j := strings.Index(desc, "Code 8:")
	if i < 0 || j < 0 || i > j {
		t.Errorf("Describe() = %q, want both details in flag order", desc)
	}
}

func TestCode_Has(t *testing.T) {
	c := Code(Timeout | LocalError)
	if !c.Has(Timeout) || !c.Has(LocalError) {
		t.Error("Has() missing set flag")
	}
	if c.Has(RemoteError) || c.Has(OK) || c.Has(Unknown) {
		t.Error("Has() reported unset flag")
	}
	if !Code(0).Has(OK) || !Code(0).OK() {
		t.Error("zero should be OK")
	}
	if !Code(512).Has(Unknown) {
		t.Error("512 should be unknown")
	}
}

func TestCode_String(t *testing.T) {
	if got := Code(10).String(); got != "timeout|remote_error" {
		t.Errorf("String() = %q", got)
	}
	if got := Code(0).String(); got != "ok" {
		t.Errorf("String() = %q", got)
	}
}
