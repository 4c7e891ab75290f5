// Package main provides a CLI for the m2m relationship engine.
//
// The CLI supports:
//   - migrate: Convert legacy post relationships into m2m relationships
//   - migrate step: Run a single migration step (JSON in, JSON out)
//   - cleanup: Delete dangling intermediary posts
//   - cleanup watch: Delete them in the background on a schedule
//   - status: Show tables, migration and relationship counts
//   - doctor: Run health checks on the relationship tables
//
// Usage:
//
//	m2m [flags] <command>
//
// Database commands need --db or database settings in m2m.yaml.
package main

func main() {
	Execute()
}
