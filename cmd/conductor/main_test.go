package main

import "testing"

func TestVersionDefaultsToDev(t *testing.T) {
	if version != "dev" {
		t.Errorf("version = %q, want dev by default", version)
	}
}
