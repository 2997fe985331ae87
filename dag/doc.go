// Package dag builds job graphs for the HTCondor DAGMan scheduler.
//
// A Graph holds Jobs and nested Graphs (splices) in insertion order. Each
// Job refers to a submit description, carries per-job variables, and may
// own a call record stored in an InputBlob. Graph.Defer turns a call to a
// registered callable into a Job: arguments that reference other Jobs are
// captured as placeholders, the referenced Jobs become parents, and their
// output files are listed in the child's input_files variable so the
// scheduler stages them.
//
// Graph.Write emits the DAG file and triggers each node's own files:
// submit descriptions and input blobs are written at most once, no matter
// how many jobs share them. Output is deterministic: variables, edges and
// limits are sorted.
//
// Cycles are not detected here; DAGMan rejects cyclic graphs when it loads
// them.
package dag
