// Package export implements the traversal-and-export engine of deepexport.
//
// The engine mirrors a repository folder tree into a local directory:
//   - Walk visits folders depth-first, pre-order, in repository order.
//     Each folder gets its local directory before any of its children are
//     processed. Children are read through a paged reader so no single
//     query exceeds the repository's result set cap.
//   - ExportDocument decides whether a document can be materialized
//     (content association, parked state, content size) and streams its
//     content to a collision-free file name.
//
// Per-object problems (skips and write failures) are logged and counted;
// they never stop the walk. Query failures abort it.
package export
