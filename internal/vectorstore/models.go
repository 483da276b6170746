package vectorstore

import "strconv"

// PageMeta is the metadata stored alongside each embedded page.
type PageMeta struct {
	// DocID identifies the source document (content digest prefix).
	DocID string

	// Filename is the source file name.
	Filename string

	// Page is the 1-based page number within the source file.
	Page int

	// SourceText is the raw page text the embedding was computed from.
	SourceText string
}

// Passage is one search result: stored metadata plus a non-negative
// dissimilarity score (smaller = more relevant).
type Passage struct {
	Meta     PageMeta
	Distance float32
}

// Metadata keys used in the underlying store.
const (
	metaDocID    = "doc_id"
	metaFilename = "filename"
	metaPage     = "page"
)

func (m PageMeta) toMap() map[string]string {
	return map[string]string{
		metaDocID:    m.DocID,
		metaFilename: m.Filename,
		metaPage:     strconv.Itoa(m.Page),
	}
}

func metaFromMap(m map[string]string, sourceText string) PageMeta {
	page, _ := strconv.Atoi(m[metaPage])
	return PageMeta{
		DocID:      m[metaDocID],
		Filename:   m[metaFilename],
		Page:       page,
		SourceText: sourceText,
	}
}
