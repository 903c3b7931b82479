// Package schema models the node catalog published by the execution engine.
//
// The engine describes every node type it can run through GET /object_info:
// required and optional inputs (with defaults and bounds), and the typed outputs
// the node produces. Parse turns that payload into an immutable Catalog that the
// graph package resolves node types against.
//
// Basic usage:
//
//	cat, err := schema.Parse(objectInfo, embeddings)
//	if err != nil {
//	    return err
//	}
//	ks, ok := cat.Node("KSampler")
//
// Literal input values can be checked against their declared type:
//
//	in, _ := ks.Input("steps")
//	if err := in.Validate(20); err != nil {
//	    // not an INT, or out of bounds
//	}
package schema
