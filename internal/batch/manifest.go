package batch

// Manifest is the index written next to the per-document summaries.
type Manifest struct {
	Location  string   `json:"location"`
	Documents []Result `json:"documents"`
	Parsed    int      `json:"parsed"`
	Failed    int      `json:"failed"`
}

// NewManifest tallies results for location.
func NewManifest(location string, results []Result) Manifest {
	m := Manifest{Location: location, Documents: results}
	for _, r := range results {
		switch {
		case r.Error != "":
			m.Failed++
		case r.Summary != "":
			m.Parsed++
		}
	}
	return m
}

// WriteManifest writes manifest.json to path.
func WriteManifest(path string, m Manifest) error {
	return writeJSON(path, m)
}
