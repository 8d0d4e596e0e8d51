package docs

// RawResult is one provider search/fetch hit before normalization. Only the named
// fields are interpreted; everything else rides along in Fields and is preserved
// in the document metadata.
type RawResult struct {
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	Content        string         `json:"content"`
	Snippet        string         `json:"description,omitempty"`
	TechnologyHint string         `json:"technology,omitempty"`
	Fields         map[string]any `json:"metadata,omitempty"`
}

// Body is the text used for hashing and chunking: content, or the snippet when a
// provider only returned a summary.
func (r RawResult) Body() string {
	if r.Content != "" {
		return r.Content
	}
	return r.Snippet
}
