// Package workflow wires the classify-then-route control flow: one
// classification, one routing decision, one terminal tutor call.
//
// Invariants:
// - State is passed by value between stages; stages never share mutable state.
// - Exactly one tutor runs per request; there is no retry or loop-back.
// - Classification failures propagate; no default label is ever substituted.
package workflow
