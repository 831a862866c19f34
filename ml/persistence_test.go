package ml

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveOpenRoundTrip(t *testing.T) {
	tbl := rarityTable(t, 120)
	m := trainMachine(t, tbl)
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := m.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	restored, err := Open(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if restored.Info() != m.Info() {
		t.Fatalf("info changed: %q vs %q", restored.Info(), m.Info())
	}
	if !restored.Features().Equal(m.Features()) || restored.Target() != "Rarity" {
		t.Fatalf("schema changed: %+v", restored.Features())
	}

	features, _ := tbl.Drop("Rarity")
	for i := 0; i < features.Len(); i++ {
		row := features.Subset([]int{i})
		wantLabel, wantConf, err := m.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		gotLabel, gotConf, err := restored.Predict(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if gotLabel != wantLabel || gotConf != wantConf {
			t.Fatalf("row %d: got (%s, %v), want (%s, %v)", i, gotLabel, gotConf, wantLabel, wantConf)
		}
	}
}

func TestOpenCorruptModel(t *testing.T) {
	m := trainMachine(t, rarityTable(t, 40))
	dir := t.TempDir()
	path := filepath.Join(dir, "model.bin")
	if err := m.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	good, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	flipped := append([]byte(nil), good...)
	flipped[headerSize+10] ^= 0xFF

	badVersion := append([]byte(nil), good...)
	binary.BigEndian.PutUint16(badVersion[len(modelMagic):], formatVersion+1)

	badMagic := append([]byte(nil), good...)
	copy(badMagic, "JUNK")

	cases := map[string][]byte{
		"empty":     {},
		"truncated": good[:len(good)/2],
		"no crc":    good[:len(good)-2],
		"flipped":   flipped,
		"version":   badVersion,
		"magic":     badMagic,
		"garbage":   []byte("definitely not a model file at all"),
	}
	for name, data := range cases {
		p := filepath.Join(dir, name+".bin")
		if err := os.WriteFile(p, data, 0o600); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		_, err := Open(p)
		var corrupt *CorruptModelError
		if !errors.As(err, &corrupt) {
			t.Fatalf("%s: expected CorruptModelError, got %v", name, err)
		}
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "absent.bin"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLoadModel(t *testing.T) {
	m := trainMachine(t, rarityTable(t, 30))
	path := filepath.Join(t.TempDir(), "model.bin")
	if err := m.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := LoadModel(RandomForestModel, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := LoadModel("decision_tree", path); err == nil {
		t.Fatal("expected error for unsupported model type")
	}
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	m := trainMachine(t, rarityTable(t, 30))
	dir := t.TempDir()
	path := filepath.Join(dir, "model.bin")
	for i := 0; i < 2; i++ {
		if err := m.Save(path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the model file, got %d entries", len(entries))
	}
}

func TestWatcherReloadsModel(t *testing.T) {
	m := trainMachine(t, rarityTable(t, 30))
	path := filepath.Join(t.TempDir(), "model.bin")

	loaded := make(chan *Machine, 4)
	w, err := NewWatcher(path, func(m *Machine) { loaded <- m })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if err := m.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	select {
	case got := <-loaded:
		if got.Info() != m.Info() {
			t.Fatalf("unexpected model: %s", got.Info())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
