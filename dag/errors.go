package dag

import "fmt"

// DuplicateIDError is returned when an explicit node id is already used in
// the graph.
type DuplicateIDError struct {
	Graph string
	ID    string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("node id '%s' already exists in graph %s", e.ID, e.Graph)
}

// ReservedNameError is returned at write time for a job variable whose
// name starts with "queue", in any case.
type ReservedNameError struct {
	Job string
	Key string
}

func (e *ReservedNameError) Error() string {
	return fmt.Sprintf("variable '%s' of job %s: macro names must not start with \"queue\"", e.Key, e.Job)
}

// MissingAttributeError is returned by Job.Get when neither the job nor
// its submit description defines the key.
type MissingAttributeError struct {
	Job string
	Key string
}

func (e *MissingAttributeError) Error() string {
	return fmt.Sprintf("'%s' not present in job %s", e.Key, e.Job)
}
