// Package report renders the results of a dump run.
//
// BuildIndex writes the INDEX.md manifest at the top of the output root.
// The Writer implementations print a finished RunReport: SummaryWriter
// renders terminal tables, JSONWriter emits JSON for scripts.
package report
