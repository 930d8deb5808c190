package server

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/motongxue/fileTransferKit/models"
	"github.com/motongxue/fileTransferKit/utils"
)

var testGeometry = utils.ChunkConfig{PayloadSize: 4, Window: 3}

func newChunkSession(t *testing.T) (*Session, string) {
	dir := t.TempDir()
	s := NewSession(dir)
	NewReassembly(s, testGeometry).Install()
	t.Cleanup(func() { s.Close() })
	return s, dir
}

func chunk(i int32, b string) models.Message {
	return models.NewRawMessage(models.Chunk, i, []byte(b))
}

func chunkEnd(n uint32, seq int) models.Message {
	return models.Message{Tag: models.ChunkEnd, PayloadLength: n, ChunkIndex: models.WindowMarker(seq)}
}

func mustDispatch(t *testing.T, s *Session, msgs ...models.Message) {
	t.Helper()
	for _, m := range msgs {
		if err := s.Dispatch(m); err != nil {
			t.Fatalf("%v: %v", m.Tag, err)
		}
	}
}

func TestReassemblyOutOfOrderChunks(t *testing.T) {
	s, dir := newChunkSession(t)
	mustDispatch(t, s,
		models.NewMessage(models.FileBegin, "r.bin"),
		chunk(2, "IJ"), chunk(0, "ABCD"), chunk(1, "EFGH"),
		chunkEnd(10, 0),
		chunk(0, "KL"),
		chunkEnd(2, 1),
		fileEnd(),
	)
	got, _ := os.ReadFile(filepath.Join(dir, "r.bin"))
	if !bytes.Equal(got, []byte("ABCDEFGHIJKL")) {
		t.Fatalf("got %q", got)
	}
	record, _ := s.Record("r.bin")
	if record.Windows != 2 {
		t.Fatalf("windows %d", record.Windows)
	}
}

func TestReassemblyDuplicateChunkEndWritesOnce(t *testing.T) {
	s, dir := newChunkSession(t)
	mustDispatch(t, s,
		models.NewMessage(models.FileBegin, "d.bin"),
		chunk(0, "ABCD"),
		chunkEnd(4, 0),
		chunkEnd(4, 0),
		fileEnd(),
	)
	got, _ := os.ReadFile(filepath.Join(dir, "d.bin"))
	if string(got) != "ABCD" {
		t.Fatalf("got %q", got)
	}
}

func TestReassemblyMarkerResetsPerFile(t *testing.T) {
	s, dir := newChunkSession(t)
	mustDispatch(t, s,
		models.NewMessage(models.FileBegin, "one"),
		chunk(0, "1111"), chunkEnd(4, 0), fileEnd(),
		models.NewMessage(models.FileBegin, "two"),
		chunk(0, "2222"), chunkEnd(4, 0), fileEnd(),
	)
	got, _ := os.ReadFile(filepath.Join(dir, "two"))
	if string(got) != "2222" {
		t.Fatalf("second file %q", got)
	}
}

func TestReassemblyRejectsBadChunks(t *testing.T) {
	s, _ := newChunkSession(t)

	expectProtocolError(t, s.Dispatch(chunk(0, "AB")))
	expectProtocolError(t, s.Dispatch(chunkEnd(2, 0)))

	mustDispatch(t, s, models.NewMessage(models.FileBegin, "bad"))
	expectProtocolError(t, s.Dispatch(chunk(3, "AB")))
	expectProtocolError(t, s.Dispatch(chunk(-1, "AB")))
	expectProtocolError(t, s.Dispatch(chunk(0, "ABCDE")))
	expectProtocolError(t, s.Dispatch(chunkEnd(13, 0)))
}
