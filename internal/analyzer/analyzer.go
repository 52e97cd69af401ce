package analyzer

// Analyzer extracts format-specific metadata from a local file. An
// analyzer must never fail: when the content type is not applicable or
// the file cannot be decoded it returns an empty map.
type Analyzer interface {
	Analyze(path, contentType string) map[string]any
}

// Merge runs every analyzer in order and merges the results. The first
// analyzer to produce a value for a key wins.
func Merge(analyzers []Analyzer, path, contentType string) map[string]any {
	merged := map[string]any{}
	for _, a := range analyzers {
		for k, v := range a.Analyze(path, contentType) {
			if _, ok := merged[k]; !ok {
				merged[k] = v
			}
		}
	}
	return merged
}
