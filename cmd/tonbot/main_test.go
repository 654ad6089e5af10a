package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCheckAddress(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "absent.yaml")
	valid := "EQ" + strings.Repeat("A", 46)

	out, err := execute(t, "--config", cfg, "check-address", valid)
	if err != nil {
		t.Fatalf("check-address error: %v\n%s", err, out)
	}
	if !strings.Contains(out, valid+"\tvalid") {
		t.Fatalf("output = %q", out)
	}

	out, err = execute(t, "--config", cfg, "check-address", valid, "XX"+strings.Repeat("A", 46))
	if err == nil {
		t.Fatalf("check-address accepted an invalid prefix")
	}
	if !strings.Contains(out, "\tinvalid") {
		t.Fatalf("output = %q", out)
	}
}

func TestCheckAddressNeedsArgs(t *testing.T) {
	if _, err := execute(t, "check-address"); err == nil {
		t.Fatalf("check-address without arguments expected error")
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error: %v", err)
	}
	if !strings.HasPrefix(out, "dev (local") {
		t.Fatalf("version = %q", out)
	}
}
