package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return os.ErrInvalid
	}
	return nil
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("TABLEKIT_TEST_NAME", "orders")
	p := writeConfig(t, "name: ${TABLEKIT_TEST_NAME}\nport: ${TABLEKIT_TEST_PORT:-9090}\n")

	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "orders" || s.Port != 9090 {
		t.Errorf("loaded = %+v", s)
	}
}

func TestLoad_KeepsDefaults(t *testing.T) {
	p := writeConfig(t, "name: x\n")
	s := sample{Port: 8080}
	if err := Load(p, &s); err != nil {
		t.Fatal(err)
	}
	if s.Port != 8080 {
		t.Errorf("port = %d, want default 8080", s.Port)
	}
}

func TestLoad_UnknownField(t *testing.T) {
	p := writeConfig(t, "name: x\nport: 1\nbogus: true\n")
	var s sample
	if err := Load(p, &s); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoad_Validation(t *testing.T) {
	p := writeConfig(t, "name: x\nport: 0\n")
	var s sample
	err := Load(p, &s)
	if err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Fatalf("err = %v", err)
	}
}

func TestLoad_EmptyFile(t *testing.T) {
	p := writeConfig(t, "")
	s := sample{Port: 1}
	if err := Load(p, &s); err != nil {
		t.Fatal(err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	fallback := writeConfig(t, "name: fallback\nport: 2\n")
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	var s sample
	if err := LoadWithDefaults(missing, fallback, &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "fallback" {
		t.Errorf("name = %q", s.Name)
	}

	d := sample{Port: 3}
	if err := LoadWithDefaults(missing, "", &d); err != nil {
		t.Fatalf("defaults only: %v", err)
	}
	var bad sample
	if err := LoadWithDefaults(missing, "", &bad); err == nil {
		t.Error("expected validation error for zero port")
	}
}

func TestExpand(t *testing.T) {
	t.Setenv("TABLEKIT_SET", "v")
	t.Setenv("TABLEKIT_EMPTY", "")
	cases := map[string]string{
		"${TABLEKIT_SET}":           "v",
		"${TABLEKIT_SET:-x}":        "v",
		"${TABLEKIT_EMPTY:-x}":      "x",
		"${TABLEKIT_UNSET_ZZ:-a b}": "a b",
		"$TABLEKIT_SET/data":        "v/data",
		"${TABLEKIT_UNSET_ZZ}":      "",
	}
	for in, want := range cases {
		if got := Expand(in); got != want {
			t.Errorf("Expand(%q) = %q, want %q", in, got, want)
		}
	}
}
