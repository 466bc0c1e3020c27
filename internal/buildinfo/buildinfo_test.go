package buildinfo

import "testing"

func TestShort(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	defer func() { Version, Commit = oldVersion, oldCommit }()

	Version, Commit = "1.4.0", "0123456789abcdef"
	if got := Short(); got != "1.4.0" {
		t.Fatalf("Short() = %q, want %q", got, "1.4.0")
	}

	Version = "dev"
	if got := Short(); got != "0123456789ab" {
		t.Fatalf("Short() = %q, want %q", got, "0123456789ab")
	}
	if got := Revision(); got != "0123456789abcdef" {
		t.Fatalf("Revision() = %q, want full commit", got)
	}
}
