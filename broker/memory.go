package broker

import "strconv"

// Memory is an in-memory Broker backed by a fixed slice of records per
// partition, sufficient for tests and the demo cluster. Cursors are decimal
// counts of records already consumed (the record at slice index i has
// cursor i+1, so StartCursor "0" means nothing consumed), stringified so the
// type matches the opaque Cursor the mapper persists to its checkpoint file
// untouched.
type Memory struct {
	partitions [][]string
}

// NewMemory builds a Memory broker with one partition per entry in texts;
// each partition holds a single record with the given text, matching how
// the reference mapper reads one CSV-derived blob of text per stream read.
func NewMemory(texts ...string) *Memory {
	partitions := make([][]string, len(texts))
	for i, t := range texts {
		partitions[i] = []string{t}
	}
	return &Memory{partitions: partitions}
}

func (m *Memory) Partition(idx int) Partition {
	if idx < 0 || idx >= len(m.partitions) {
		return &memoryPartition{}
	}
	return &memoryPartition{records: m.partitions[idx]}
}

type memoryPartition struct {
	records []string
}

func (p *memoryPartition) Next(cursor Cursor) (Record, bool, error) {
	next := 0
	if cursor != StartCursor && cursor != "" {
		n, err := strconv.Atoi(string(cursor))
		if err != nil {
			return Record{}, false, err
		}
		next = n
	}
	if next >= len(p.records) {
		return Record{}, false, nil
	}
	return Record{ID: Cursor(strconv.Itoa(next + 1)), Text: p.records[next]}, true, nil
}
