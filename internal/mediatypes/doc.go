// Package mediatypes classifies files by extension into the two library
// kinds, videos (ingested as scenes) and images.
package mediatypes
