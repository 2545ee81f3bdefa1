package cmd

import "testing"

func TestNewRootCommandHasSubcommands(t *testing.T) {
	root := NewRootCommand()

	want := map[string]bool{"run": true, "validate": true, "import": true}
	for _, sub := range root.Commands() {
		delete(want, sub.Name())
	}
	if len(want) != 0 {
		t.Fatalf("missing subcommands: %v", want)
	}
}
