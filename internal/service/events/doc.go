// Package events implements the append-only engagement event log.
//
// Every physical request is recorded, including the second and third
// delivery of the same logical event. First-occurrence questions are
// answered from the recipient's terminal fields, never by counting rows here.
package events
