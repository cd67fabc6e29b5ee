// Package matching finds catalog entities mentioned in free text such as a
// file path.
//
// Text and names are reduced to lower-case tokens before comparison:
// diacritics are stripped, every rune that is not a letter or digit acts as a
// separator, and a new token also starts at a lower-to-upper case change or a
// letter/digit change. "Jane_Doe-2024.mp4" and "JaneDoe2024" both become
// "jane doe 2024 ...".
//
// An alias matches when its tokens, joined without separators, equal a run
// of whole consecutive text tokens joined the same way. Matches therefore
// always begin and end on token boundaries, so "an" never matches inside
// "jane", while "Jane Doe" still matches "janedoe".
//
// Aliases prefixed with "regex:" are raw regular expressions evaluated
// case-insensitively against the diacritic-stripped, lower-cased text. They
// are never tokenized and are never treated as single names.
//
// With IgnoreSingleNames set, names and aliases of exactly one token are
// skipped for every entity kind.
package matching
