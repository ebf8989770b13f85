// Package snippet turns a flat source file into categorized snippets.
//
// A source file holds blocks of text separated by lines equal to "..".
// Parse yields the trimmed blocks, Categorize partitions them by leading
// prefix and Dedup collapses near-duplicates sharing a first line.
package snippet
