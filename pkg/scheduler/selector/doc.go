// Package selector implements the pluggable agent-selection strategies the
// dispatcher uses to choose which compatible agent hosts a session's (or a
// multi-node session's kernel's) requested resource slots: Legacy,
// Concentrated, Dispersed, and RoundRobin.
package selector
