// Package verifier answers the questions auditors ask of the system: is a
// stored document still the bytes it claims to be, does a presented key
// match the key that protected it, and does a product's custody history
// still agree with a previously anchored checkpoint.
//
// Verification is read-only and fails closed: any corruption, inactive key,
// or unexplainable divergence yields a negative answer, never a guess.
package verifier
