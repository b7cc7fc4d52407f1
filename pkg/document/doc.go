// Package document models trial metadata as a generic JSON tree and provides
// pointer-addressed reads, auto-vivifying writes and path-enumerating searches.
//
// Trees are built from Object (map[string]any), Array ([]any) and JSON
// scalars. A Cursor owns the root of a tree together with an absolute path
// inside it, which is what relative pointers ("<N>/<rest>") ascend from.
package document
