package storage

import (
	"os"
	"path/filepath"
	"testing"

	"cfip_nexus/ippool/model"
)

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "ip.txt")
	fs := NewFileStorage(path)

	rs := model.ResultSet{
		{Address: "1.2.3.4", CountryCode: "US", Speed: "3.00 MB/s"},
		{Address: "5.6.7.8", CountryCode: "XX"},
	}
	if err := fs.Save(rs.Serialize()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "1.2.3.4#US-3.00 MB/s\n5.6.7.8#XX\n" {
		t.Fatalf("unexpected file content %q", data)
	}

	loaded, err := fs.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 records, got %d", len(loaded))
	}
	if loaded[0].Speed != "3.00 MB/s" || loaded[0].CountryCode != "US" {
		t.Errorf("unexpected first record %+v", loaded[0])
	}
	if loaded[1].Speed != "" || loaded[1].Line() != "5.6.7.8#XX" {
		t.Errorf("unexpected second record %+v", loaded[1])
	}
}

func TestSave_OverwritesInFull(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ip.txt")
	fs := NewFileStorage(path)

	if err := fs.Save("1.1.1.1#US\n2.2.2.2#US\n3.3.3.3#US\n"); err != nil {
		t.Fatal(err)
	}
	if err := fs.Save("4.4.4.4#JP\n"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "4.4.4.4#JP\n" {
		t.Fatalf("expected full overwrite, got %q", data)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temporary files left behind: %v", entries)
	}
}

func TestLoad_MissingAndMalformed(t *testing.T) {
	dir := t.TempDir()

	empty, err := NewFileStorage(filepath.Join(dir, "missing.txt")).Load()
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty set for missing file, got %v, %v", empty, err)
	}

	path := filepath.Join(dir, "mixed.txt")
	if err := os.WriteFile(path, []byte("garbage\n1.1.1.1#HK-1.00MB/s\n2.2.2.2#Hongkong\n\n"), 0644); err != nil {
		t.Fatal(err)
	}
	recs, err := NewFileStorage(path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Address != "1.1.1.1" {
		t.Fatalf("expected only the well-formed line, got %+v", recs)
	}
}
