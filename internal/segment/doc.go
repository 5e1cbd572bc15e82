// Package segment defines the canonical unit exchanged between pipeline steps
// and the validator that checks batches of them.
//
// Raw tool output never reaches this package directly: the adapter package
// canonicalizes it into Segment values first. Validator checks every segment
// independently, keeps the survivors in their original order, and reports one
// Issue per failed check so callers can log the full picture.
package segment
