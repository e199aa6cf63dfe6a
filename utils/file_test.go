package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.cbor")
	for _, data := range []string{"first", "second"} {
		if err := WriteFileAtomic(path, []byte(data)); err != nil {
			t.Fatal(err)
		}
		got, err := os.ReadFile(path)
		if err != nil || string(got) != data {
			t.Errorf("read %q, %v; want %q", got, err, data)
		}
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temp files left: %v", entries)
	}
}

func TestRemoveDataset(t *testing.T) {
	dir := t.TempDir()
	shp := filepath.Join(dir, "lines.shp")
	tif := filepath.Join(dir, "out.tif")
	for _, f := range []string{shp, filepath.Join(dir, "lines.dbf"), filepath.Join(dir, "lines.prj"), tif, tif + ".ovr"} {
		if err := os.WriteFile(f, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := RemoveDataset(shp); err != nil {
		t.Fatal(err)
	}
	if err := RemoveDataset(tif); err != nil {
		t.Fatal(err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("left over: %v", entries)
	}
	if err := RemoveDataset(filepath.Join(dir, "missing.tif")); err != nil {
		t.Errorf("missing dataset: %v", err)
	}
	if GetFilenameWithoutExt("/a/b/scene.v2.tif") != "scene.v2" {
		t.Error("GetFilenameWithoutExt")
	}
}
