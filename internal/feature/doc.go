// Package feature owns action descriptors and the per-version dispatch tables
// built from them.
//
// Ownership boundary:
// - request/confirmation collaborator contracts
// - profile capability sets (a named list of features)
// - immutable registries keyed by action name per version and origin
package feature
