// Package app contains the condordag use cases: building graphs from HCL
// files, running one job on an execute node, and inspecting input files and
// runtime facts. It is decoupled from any specific entrypoint like a CLI.
package app
