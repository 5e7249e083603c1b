// Package engine implements the recursive execution core: the Node contract,
// the leaf/pipeline/loop variants, hierarchical Contexts, the Updates result
// accumulator, and per-node limit evaluation.
//
// The engine has one cross-node failure channel: the status carried on the
// Updates a node returns. No error or panic crosses a Node boundary; a parent
// observes a child's outcome and decides locally whether to continue, which
// keeps both failure handling and limit cancellation compositional.
package engine
