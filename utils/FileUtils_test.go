package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSanitizeFileName(t *testing.T) {
	cases := map[string]string{
		"a/b/c.txt":    "c.txt",
		`a\b\c.txt`:    "c.txt",
		"c.txt":        "c.txt",
		"/abs/dir/x":   "x",
		`mixed/dir\y`:  "y",
		"name\x00\x00": "name",
	}
	for in, want := range cases {
		got, err := SanitizeFileName(in)
		if err != nil || got != want {
			t.Fatalf("SanitizeFileName(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "dir/", "..", "a/..", "."} {
		if _, err := SanitizeFileName(bad); err == nil {
			t.Fatalf("SanitizeFileName(%q) accepted", bad)
		}
	}
}

func TestCreateOutputFileTruncates(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	f, err := CreateOutputFile(dir, "f.bin")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	f.WriteString("old content")
	f.Close()

	f, err = CreateOutputFile(dir, "f.bin")
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	f.WriteString("new")
	f.Close()

	data, err := os.ReadFile(filepath.Join(dir, "f.bin"))
	if err != nil || string(data) != "new" {
		t.Fatalf("got %q %v", data, err)
	}
}

func TestCalMD5RewindsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m")
	os.WriteFile(path, []byte("hello"), 0o644)
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	sum, err := CalMD5(f)
	if err != nil || sum != "5d41402abc4b2a76b9719d911017c592" {
		t.Fatalf("md5 %s %v", sum, err)
	}
	buf := make([]byte, 5)
	if n, _ := f.Read(buf); n != 5 {
		t.Fatalf("file not rewound, read %d", n)
	}
}
