// Package fetch acquires raw document content for ingestion: readable
// text from web pages, and text from local markdown, PDF, and plain
// files. Acquisition failures are terminal for an ingestion attempt, so
// everything here returns hard errors rather than degrading.
package fetch
