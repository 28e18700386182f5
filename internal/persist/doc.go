// Package persist writes extracted challenges to disk.
//
// Each challenge gets its own directory under the output root, optionally
// nested in a category directory. The directory holds description.txt, an
// optional page.html and the downloaded attachments under files/.
// Directory names are sanitized with model.SafeName, so two challenges with
// the same sanitized title and category share a directory; the later one
// overwrites the earlier one's files.
package persist
