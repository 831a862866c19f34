package ml

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/axsanchezgomez/BandersnatchStarter/table"
)

// Model file layout:
//
//	magic "BSNM" | version uint16 | payload length uint64 | gob payload | crc32(payload)
//
// All integers are big-endian.
const (
	modelMagic    = "BSNM"
	formatVersion = uint16(1)
	headerSize    = len(modelMagic) + 2 + 8
	trailerSize   = 4
)

type machineState struct {
	Name      string
	Timestamp time.Time
	Target    string
	Features  table.Schema
	Encoders  map[string][]string
	Classes   []string
	Forest    *RandomForest
}

// Save writes the whole machine to path. The file is written next to path
// and renamed into place so readers never observe a partial model.
func (m *Machine) Save(path string) error {
	var payload bytes.Buffer
	state := machineState{
		Name:      m.Name,
		Timestamp: m.Timestamp,
		Target:    m.target,
		Features:  m.features,
		Encoders:  m.encoders,
		Classes:   m.classes,
		Forest:    m.model,
	}
	if err := gob.NewEncoder(&payload).Encode(&state); err != nil {
		return fmt.Errorf("ml: encode model: %w", err)
	}

	buf := make([]byte, 0, headerSize+payload.Len()+trailerSize)
	buf = append(buf, modelMagic...)
	buf = binary.BigEndian.AppendUint16(buf, formatVersion)
	buf = binary.BigEndian.AppendUint64(buf, uint64(payload.Len()))
	buf = append(buf, payload.Bytes()...)
	buf = binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(payload.Bytes()))

	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*")
	if err != nil {
		return fmt.Errorf("ml: save model: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		return fmt.Errorf("ml: save model: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("ml: save model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("ml: save model: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("ml: save model: %w", err)
	}
	return nil
}

// Open restores a machine written by Save. Any file that is not a complete,
// checksummed model of the current format yields a *CorruptModelError.
func Open(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return decodeMachine(path, data)
}

func decodeMachine(path string, data []byte) (*Machine, error) {
	corrupt := func(reason string, err error) error {
		return &CorruptModelError{Path: path, Reason: reason, Err: err}
	}
	if len(data) < headerSize+trailerSize {
		return nil, corrupt("truncated header", nil)
	}
	if string(data[:len(modelMagic)]) != modelMagic {
		return nil, corrupt("bad magic", nil)
	}
	version := binary.BigEndian.Uint16(data[len(modelMagic):])
	if version != formatVersion {
		return nil, corrupt(fmt.Sprintf("unsupported format version %d", version), nil)
	}
	size := binary.BigEndian.Uint64(data[len(modelMagic)+2:])
	if uint64(len(data)-headerSize-trailerSize) != size {
		return nil, corrupt(fmt.Sprintf("payload is %d bytes, header says %d", len(data)-headerSize-trailerSize, size), nil)
	}
	payload := data[headerSize : headerSize+int(size)]
	sum := binary.BigEndian.Uint32(data[headerSize+int(size):])
	if crc32.ChecksumIEEE(payload) != sum {
		return nil, corrupt("checksum mismatch", nil)
	}

	var state machineState
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&state); err != nil {
		return nil, corrupt("decode payload", err)
	}
	if err := state.validate(); err != nil {
		return nil, corrupt("inconsistent model", err)
	}

	m := &Machine{
		Name:      state.Name,
		Timestamp: state.Timestamp,
		target:    state.Target,
		features:  state.Features,
		encoders:  state.Encoders,
		classes:   state.Classes,
		model:     state.Forest,
	}
	if m.encoders == nil {
		m.encoders = make(map[string][]string)
	}
	m.buildCodes()
	return m, nil
}

func (s *machineState) validate() error {
	switch {
	case s.Forest == nil || len(s.Forest.Trees) == 0:
		return errors.New("no trees")
	case len(s.Classes) == 0 || s.Forest.NClasses != len(s.Classes):
		return errors.New("class count mismatch")
	case len(s.Features) == 0:
		return errors.New("no feature columns")
	}
	for _, col := range s.Features {
		if col.Kind == table.Categorical {
			if _, ok := s.Encoders[col.Name]; !ok {
				return fmt.Errorf("missing encoder for %q", col.Name)
			}
		}
	}
	for _, tree := range s.Forest.Trees {
		if tree == nil || len(tree.Nodes) == 0 {
			return errors.New("empty tree")
		}
	}
	return nil
}
