package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/motongxue/fileTransferKit/models"
	"github.com/motongxue/fileTransferKit/utils"
)

func expectProtocolError(t *testing.T, err error) {
	t.Helper()
	var protoErr *models.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func data(b string) models.Message {
	return models.NewRawMessage(models.FileData, models.ControlIndex, []byte(b))
}

func fileEnd() models.Message {
	return models.Message{Tag: models.FileEnd, ChunkIndex: models.ControlIndex}
}

func TestSessionReceivesFile(t *testing.T) {
	dir := t.TempDir()
	s := NewSession(dir)
	defer s.Close()

	if s.State() != Idle {
		t.Fatalf("initial state %v", s.State())
	}
	if err := s.Dispatch(models.NewMessage(models.FileBegin, "a/b/c.txt")); err != nil {
		t.Fatalf("FileBegin: %v", err)
	}
	if s.State() != ReceivingFile {
		t.Fatalf("state %v", s.State())
	}
	for _, part := range []string{"hel", "lo"} {
		if err := s.Dispatch(data(part)); err != nil {
			t.Fatalf("FileData: %v", err)
		}
	}
	if err := s.Dispatch(fileEnd()); err != nil {
		t.Fatalf("FileEnd: %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("state after FileEnd %v", s.State())
	}

	got, err := os.ReadFile(filepath.Join(dir, "c.txt"))
	if err != nil || string(got) != "hello" {
		t.Fatalf("file content %q %v", got, err)
	}
	record, ok := s.Record("c.txt")
	if !ok || record.FileSize != 5 || record.MD5 != "5d41402abc4b2a76b9719d911017c592" || record.SessionID != s.ID {
		t.Fatalf("record %+v %v", record, ok)
	}

	if err := s.Dispatch(models.NewMessage(models.Done, "Done.")); err != nil {
		t.Fatalf("Done: %v", err)
	}
	if s.State() != Finished {
		t.Fatalf("state after Done %v", s.State())
	}
}

func TestSessionBackslashName(t *testing.T) {
	dir := t.TempDir()
	s := NewSession(dir)
	defer s.Close()

	if err := s.Dispatch(models.NewMessage(models.FileBegin, `a\b\c.txt`)); err != nil {
		t.Fatalf("FileBegin: %v", err)
	}
	if err := s.Dispatch(fileEnd()); err != nil {
		t.Fatalf("FileEnd: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "c.txt")); err != nil {
		t.Fatalf("stored name: %v", err)
	}
}

func TestSessionRejectsOutOfOrderMessages(t *testing.T) {
	s := NewSession(t.TempDir())
	defer s.Close()

	expectProtocolError(t, s.Dispatch(data("x")))
	expectProtocolError(t, s.Dispatch(fileEnd()))

	if err := s.Dispatch(models.NewMessage(models.FileBegin, "f")); err != nil {
		t.Fatalf("FileBegin: %v", err)
	}
	expectProtocolError(t, s.Dispatch(models.NewMessage(models.FileBegin, "g")))
	expectProtocolError(t, s.Dispatch(models.NewMessage(models.Done, "Done.")))

	// 拒绝的消息不改变状态
	if s.State() != ReceivingFile {
		t.Fatalf("state %v", s.State())
	}
}

func TestSessionRejectsInvalidName(t *testing.T) {
	s := NewSession(t.TempDir())
	defer s.Close()

	expectProtocolError(t, s.Dispatch(models.NewMessage(models.FileBegin, "dir/..")))
	if s.State() != Idle {
		t.Fatalf("state %v", s.State())
	}
}

func TestSessionOpenFailureIsTransferError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	os.WriteFile(blocker, nil, 0o644)

	s := NewSession(blocker)
	defer s.Close()

	err := s.Dispatch(models.NewMessage(models.FileBegin, "x"))
	var transferErr *models.TransferError
	if !errors.As(err, &transferErr) {
		t.Fatalf("expected TransferError, got %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("state %v", s.State())
	}
}

func TestDispatchIgnoresUnregisteredTag(t *testing.T) {
	s := NewSession(t.TempDir())
	defer s.Close()

	if err := s.Dispatch(models.NewRawMessage(models.Chunk, 0, []byte("x"))); err != nil {
		t.Fatalf("unregistered tag: %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("state %v", s.State())
	}
}

func TestRegisterOverwritesHandler(t *testing.T) {
	s := NewSession(t.TempDir())
	defer s.Close()

	calls := 0
	s.Register(models.Done, func(models.Message) error {
		calls++
		return nil
	})
	if err := s.Dispatch(models.NewMessage(models.Done, "Done.")); err != nil {
		t.Fatalf("Done: %v", err)
	}
	if calls != 1 || s.State() != Idle {
		t.Fatalf("calls=%d state=%v", calls, s.State())
	}
}

type memoryStore struct {
	records []models.FileRecord
}

func (m *memoryStore) SaveRecord(_ context.Context, record models.FileRecord) error {
	m.records = append(m.records, record)
	return nil
}

func (m *memoryStore) GetRecord(_ context.Context, sessionID, name string) (models.FileRecord, error) {
	for _, r := range m.records {
		if r.SessionID == sessionID && r.Name == name {
			return r, nil
		}
	}
	return models.FileRecord{}, utils.ErrRecordNotFound
}

func (m *memoryStore) SessionFiles(_ context.Context, sessionID string) ([]string, error) {
	var names []string
	for _, r := range m.records {
		if r.SessionID == sessionID {
			names = append(names, r.Name)
		}
	}
	return names, nil
}

func TestSessionSavesRecordToStore(t *testing.T) {
	store := &memoryStore{}
	s := NewSession(t.TempDir(), WithStore(store))
	defer s.Close()

	s.Dispatch(models.NewMessage(models.FileBegin, "empty.bin"))
	if err := s.Dispatch(fileEnd()); err != nil {
		t.Fatalf("FileEnd: %v", err)
	}
	if len(store.records) != 1 || store.records[0].Name != "empty.bin" || store.records[0].FileSize != 0 {
		t.Fatalf("records %+v", store.records)
	}
}

func TestSessionCloseReleasesOpenFile(t *testing.T) {
	s := NewSession(t.TempDir())
	s.Dispatch(models.NewMessage(models.FileBegin, "partial"))
	s.Close()
	if s.State() != Idle {
		t.Fatalf("state %v", s.State())
	}
	if err := s.Dispatch(models.NewMessage(models.FileBegin, "next")); err != nil {
		t.Fatalf("FileBegin after Close: %v", err)
	}
	s.Close()
}
