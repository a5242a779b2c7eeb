package school

import (
	"fmt"
	"reflect"
	"testing"
)

func makeBatches(divisionID int, names ...string) []Batch {
	batches := make([]Batch, 0, len(names))
	for i, name := range names {
		batches = append(batches, Batch{ID: 100 + i, Name: name, DivisionID: divisionID})
	}
	return batches
}

// makeStudents builds a roster of n students with ids 1..n and roll numbers
// already in ascending order.
func makeStudents(n int) []Student {
	students := make([]Student, 0, n)
	for i := 1; i <= n; i++ {
		students = append(students, Student{ID: i, RollNumber: fmt.Sprintf("r%02d", i)})
	}
	return students
}

func TestBatchMapBatchFor(t *testing.T) {
	tests := []struct {
		name      string
		batches   []Batch
		students  []Student
		studentID int
		wantName  string // "" = no batch
	}{
		{
			name:      "first student goes to first batch",
			batches:   makeBatches(1, "A1", "A2"),
			students:  makeStudents(10),
			studentID: 1,
			wantName:  "A1",
		},
		{
			name:      "last of first chunk stays in first batch",
			batches:   makeBatches(1, "A1", "A2"),
			students:  makeStudents(10),
			studentID: 5,
			wantName:  "A1",
		},
		{
			// 10 students, 2 batches: batchSize=5; rank 7 -> 7/5 = batch index 1
			name:      "rank seven of ten goes to second batch",
			batches:   makeBatches(1, "A1", "A2"),
			students:  makeStudents(10),
			studentID: 8,
			wantName:  "A2",
		},
		{
			// 10 students, 3 batches: batchSize=ceil(10/3)=4; chunks 4,4,2
			name:      "uneven split puts the remainder in the last batch",
			batches:   makeBatches(1, "B1", "B2", "B3"),
			students:  makeStudents(10),
			studentID: 9,
			wantName:  "B3",
		},
		{
			name:      "division without batches assigns nothing",
			batches:   nil,
			students:  makeStudents(4),
			studentID: 2,
		},
		{
			name:      "student not on the roster assigns nothing",
			batches:   makeBatches(1, "A1"),
			students:  makeStudents(4),
			studentID: 99,
		},
		{
			name:    "student without roll number assigns nothing",
			batches: makeBatches(1, "A1"),
			students: []Student{
				{ID: 1, RollNumber: "r01"},
				{ID: 2}, // registry has not issued a roll number
			},
			studentID: 2,
		},
		{
			name:      "empty roster assigns nothing",
			batches:   makeBatches(1, "A1"),
			students:  nil,
			studentID: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewBatchMap(tt.batches, tt.students).BatchFor(tt.studentID)
			if tt.wantName == "" {
				if got != nil {
					t.Errorf("BatchFor() = %v, want nil", got)
				}
				return
			}
			if got == nil {
				t.Fatalf("BatchFor() = nil, want %q", tt.wantName)
			}
			if got.Name != tt.wantName {
				t.Errorf("BatchFor() = %q, want %q", got.Name, tt.wantName)
			}
		})
	}
}

func TestBatchMapIsDeterministic(t *testing.T) {
	batches := makeBatches(1, "A1", "A2", "A3")
	students := makeStudents(17)

	first := make(map[int]int, len(students))
	bm := NewBatchMap(batches, students)
	for _, st := range students {
		if b := bm.BatchFor(st.ID); b != nil {
			first[st.ID] = b.ID
		}
	}

	for i := 0; i < 50; i++ {
		again := make(map[int]int, len(students))
		bm := NewBatchMap(batches, students)
		for _, st := range students {
			if b := bm.BatchFor(st.ID); b != nil {
				again[st.ID] = b.ID
			}
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced a different mapping", i)
		}
	}
}

func TestBatchMapPartitionsWholeRoster(t *testing.T) {
	batches := makeBatches(1, "A1", "A2", "A3")
	students := makeStudents(17) // batchSize=ceil(17/3)=6; chunks 6,6,5

	counts := make(map[int]int)
	bm := NewBatchMap(batches, students)
	for _, st := range students {
		b := bm.BatchFor(st.ID)
		if b == nil {
			t.Fatalf("student %d got no batch", st.ID)
		}
		counts[b.ID]++
	}

	want := map[int]int{100: 6, 101: 6, 102: 5}
	if !reflect.DeepEqual(counts, want) {
		t.Errorf("batch sizes = %v, want %v", counts, want)
	}
}

func TestBatchMapMembers(t *testing.T) {
	batches := makeBatches(1, "A1", "A2")
	students := makeStudents(6) // batchSize=3

	bm := NewBatchMap(batches, students)
	members := bm.Members(batches[1].ID)
	if len(members) != 3 {
		t.Fatalf("Members() returned %d students, want 3", len(members))
	}
	for _, id := range members {
		if id < 4 {
			t.Errorf("student %d belongs to the first batch", id)
		}
	}
}

func TestAssignBatchMatchesBatchMap(t *testing.T) {
	batches := makeBatches(1, "A1", "A2")
	students := makeStudents(9)

	bm := NewBatchMap(batches, students)
	for _, st := range students {
		want := bm.BatchFor(st.ID)
		got := AssignBatch(st, batches, students)
		if (got == nil) != (want == nil) {
			t.Fatalf("AssignBatch(%d) = %v, want %v", st.ID, got, want)
		}
		if got != nil && got.ID != want.ID {
			t.Errorf("AssignBatch(%d) = %q, want %q", st.ID, got.Name, want.Name)
		}
	}
}
