package main

import (
	"testing"
)

func TestArgv0Alias(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{name: "surveyforge-mock", base: "surveyforge-mock", want: "mock-backend"},
		{name: "mock-backend", base: "mock-backend", want: "mock-backend"},
		{name: "surveyforge", base: "surveyforge", want: ""},
	}
	for _, tc := range tests {
		if got := argv0Alias(tc.base); got != tc.want {
			t.Fatalf("%s: argv0Alias(%q) = %q, want %q", tc.name, tc.base, got, tc.want)
		}
	}
}

func TestApplyArgv0Alias(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{name: "empty", args: nil, want: nil},
		{name: "no-alias", args: []string{"surveyforge", "serve"}, want: []string{"surveyforge", "serve"}},
		{name: "mock", args: []string{"/usr/bin/surveyforge-mock", "--seed", "7"}, want: []string{"/usr/bin/surveyforge-mock", "mock-backend", "--seed", "7"}},
	}
	for _, tc := range tests {
		got := applyArgv0Alias(tc.args)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: applyArgv0Alias length = %d, want %d", tc.name, len(got), len(tc.want))
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: applyArgv0Alias[%d] = %q, want %q", tc.name, i, got[i], tc.want[i])
			}
		}
	}
}

func TestRootHasCommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "generate", "history", "mock-backend", "config", "version"} {
		found := false
		for _, cmd := range root.Commands() {
			if cmd.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected root command to include %s", name)
		}
	}
}
