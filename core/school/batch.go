package school

// Batch membership is never stored: it is derived from a student's rank in the
// division roster. The roster is partitioned into contiguous, near-equal chunks
// of ceil(n/k) students; the first chunk maps to the first batch by name, etc.
// The mapping is pure: identical inputs always produce identical output.

// BatchMap is the rank-to-batch mapping for one division, computed once per
// scope. Callers doing division-wide work must build it once and reuse it
// instead of re-deriving per student.
type BatchMap struct {
	batches   []Batch
	rank      map[int]int    // student ID -> zero-based rank in the sorted roster
	noRoll    map[int]bool   // students the registry has not issued a roll number to
	batchSize int
}

// NewBatchMap builds the mapping from a division's batches ordered ascending by
// name and its full roster ordered ascending by roll number (ties broken by ID).
func NewBatchMap(orderedBatches []Batch, orderedStudents []Student) BatchMap {
	m := BatchMap{
		batches: orderedBatches,
		rank:    make(map[int]int, len(orderedStudents)),
		noRoll:  make(map[int]bool),
	}
	for i, st := range orderedStudents {
		m.rank[st.ID] = i
		if st.RollNumber == "" {
			m.noRoll[st.ID] = true
		}
	}
	if n, k := len(orderedStudents), len(orderedBatches); n > 0 && k > 0 {
		m.batchSize = (n + k - 1) / k // ceil(n/k)
	}
	return m
}

// BatchFor returns the student's batch, or nil when no batch can be assigned:
// the division has no batches or no students, the student has no roll number,
// or the student is not on the roster. A nil batch is a configuration gap, not
// an error; callers requiring a batch for authorization treat it as a denial.
func (m BatchMap) BatchFor(studentID int) *Batch {
	if m.batchSize == 0 || m.noRoll[studentID] {
		return nil
	}
	r, ok := m.rank[studentID]
	if !ok {
		return nil
	}
	idx := r / m.batchSize
	if idx < 0 || idx >= len(m.batches) {
		return nil
	}
	return &m.batches[idx]
}

// Members returns the IDs of the roster students assigned to the given batch.
func (m BatchMap) Members(batchID int) []int {
	var ids []int
	for id := range m.rank {
		if b := m.BatchFor(id); b != nil && b.ID == batchID {
			ids = append(ids, id)
		}
	}
	return ids
}

// AssignBatch maps one student to a batch given the division's ordered batch
// list and its roster sorted by roll number. One-shot variant of BatchMap; for
// many lookups in the same division build a BatchMap once instead.
func AssignBatch(st Student, orderedBatches []Batch, orderedStudents []Student) *Batch {
	return NewBatchMap(orderedBatches, orderedStudents).BatchFor(st.ID)
}
