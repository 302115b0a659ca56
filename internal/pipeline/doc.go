// Package pipeline runs a meeting through the fixed sequence of agent
// stages and persists the result.
//
// The sequence is code, not configuration:
//
//	audio: ingest_audio -> transcribe -> diarize -> summarize ->
//	       extract_decisions -> extract_actions -> persist
//	text:  summarize -> extract_decisions -> extract_actions -> persist
//
// Each stage receives a deep copy of the meeting state, so a buggy stage
// can corrupt its own snapshot but never the one the runner keeps. The
// runner validates every message a stage appends against the routing
// table, records a timing per stage, and aborts on the first error after
// appending a failure message to the log.
package pipeline
