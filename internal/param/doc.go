// Package param models the inputs and outputs of an experiment: named,
// unit-tagged parameters collected into an ordered Set.
//
// A parameter is "iterated" when its value is a domain to sweep over.
// By default that is true exactly when the value is a sequence (slice or
// array). The same types describe results: an iterated result parameter
// is a vector field, a non-iterated one is a scalar field.
package param
