package storage

import (
	"bytes"
	"errors"
	"testing"
)

func TestNewPage(t *testing.T) {
	page := NewPage(1, PageTypeData)

	if page.ID() != 1 {
		t.Errorf("expected ID 1, got %d", page.ID())
	}
	if page.Type() != PageTypeData {
		t.Errorf("expected PageTypeData, got %d", page.Type())
	}
	if page.NumSlots() != 0 {
		t.Errorf("expected 0 slots, got %d", page.NumSlots())
	}
	if page.FreeSpace() != MaxDataSize {
		t.Errorf("expected %d free space, got %d", MaxDataSize, page.FreeSpace())
	}
	if page.Next() != NoPage {
		t.Errorf("expected no next page, got %d", page.Next())
	}
	if !page.IsDirty() {
		t.Error("new page should be dirty")
	}
}

func TestPageAppendBlocks(t *testing.T) {
	page := NewPage(1, PageTypeData)
	inputs := [][]byte{[]byte("Hello"), {}, []byte("World!")}
	for _, b := range inputs {
		if err := page.Append(b); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if page.NumSlots() != 3 {
		t.Errorf("expected 3 slots, got %d", page.NumSlots())
	}
	if want := uint16(MaxDataSize - 11 - 3*blockHeaderSize); page.FreeSpace() != want {
		t.Errorf("expected %d free space, got %d", want, page.FreeSpace())
	}

	blocks, err := page.Blocks()
	if err != nil {
		t.Fatalf("Blocks failed: %v", err)
	}
	if len(blocks) != len(inputs) {
		t.Fatalf("expected %d blocks, got %d", len(inputs), len(blocks))
	}
	for i := range inputs {
		if !bytes.Equal(blocks[i], inputs[i]) {
			t.Errorf("block %d: expected %q, got %q", i, inputs[i], blocks[i])
		}
	}
}

func TestPageSerializeDeserialize(t *testing.T) {
	original := NewPage(42, PageTypeData)
	if err := original.Append([]byte("Test data for serialization")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	original.SetNext(43)

	buf := original.Serialize()
	if len(buf) != PageSize {
		t.Fatalf("expected %d bytes, got %d", PageSize, len(buf))
	}

	restored, err := Deserialize(buf)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if restored.ID() != 42 || restored.Type() != PageTypeData || restored.Next() != 43 {
		t.Errorf("header mismatch: id=%d type=%d next=%d", restored.ID(), restored.Type(), restored.Next())
	}
	if restored.IsDirty() {
		t.Error("deserialized page should be clean")
	}
	blocks, err := restored.Blocks()
	if err != nil {
		t.Fatalf("Blocks failed: %v", err)
	}
	if len(blocks) != 1 || string(blocks[0]) != "Test data for serialization" {
		t.Errorf("unexpected blocks %q", blocks)
	}
}

func TestDeserializeCorrupt(t *testing.T) {
	if _, err := Deserialize(make([]byte, 10)); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt for short buffer, got %v", err)
	}

	buf := NewPage(1, PageTypeData).Serialize()
	buf[7], buf[8] = 0xff, 0xff
	if _, err := Deserialize(buf); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt for bad free space offset, got %v", err)
	}
}

func TestPageOverflow(t *testing.T) {
	page := NewPage(1, PageTypeData)
	big := make([]byte, MaxDataSize-blockHeaderSize)
	if err := page.Append(big); err != nil {
		t.Fatalf("Append of a full block failed: %v", err)
	}
	if err := page.Append([]byte("x")); !errors.Is(err, ErrPageOverflow) {
		t.Errorf("expected ErrPageOverflow, got %v", err)
	}
	if err := NewPage(2, PageTypeData).Append(make([]byte, MaxDataSize)); !errors.Is(err, ErrBlockSize) {
		t.Errorf("expected ErrBlockSize, got %v", err)
	}
}

func TestPageReset(t *testing.T) {
	page := NewPage(0, PageTypeData)
	page.Append([]byte("data"))
	page.SetNext(5)
	page.MarkClean()

	page.Reset(PageTypeCatalog)
	if page.Type() != PageTypeCatalog || page.NumSlots() != 0 || page.Next() != NoPage {
		t.Errorf("page not reset: type=%d slots=%d next=%d", page.Type(), page.NumSlots(), page.Next())
	}
	if !page.IsDirty() {
		t.Error("reset page should be dirty")
	}
}
