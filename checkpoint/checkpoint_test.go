package checkpoint

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMapperCursorRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := WriteMapperCursor(dir, "Mapper_0", 3, "42"); err != nil {
		t.Fatal(err)
	}
	got, err := ReadMapperCursor(dir, "Mapper_0", 3)
	if err != nil {
		t.Fatal(err)
	}
	if got != "42" {
		t.Fatalf("cursor = %q, want 42", got)
	}
}

func TestReducerWordCountRoundTrip(t *testing.T) {
	dir := t.TempDir()
	wc := map[string]int{"alpha": 2, "beta": 1}
	if err := WriteReducerWordCount(dir, "Reducer_0", 5, wc); err != nil {
		t.Fatal(err)
	}
	got, err := ReadReducerWordCount(dir, "Reducer_0", 5)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(wc, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReadMissingCheckpointErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := ReadMapperCursor(dir, "Mapper_0", 99); err == nil {
		t.Fatal("expected an error reading a checkpoint that was never written")
	}
}
