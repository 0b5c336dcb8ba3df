package drive

import (
	"sort"
	"strings"

	"github.com/ignite/audio-retro/internal/podscribe"
)

// Classification splits a folder's CSVs into the file the engine processes
// and the files appended raw.
type Classification struct {
	Engine *File
	// Vendor is true when Engine is a Podscribe export rather than the
	// geo/spend metrics fallback.
	Vendor bool
	Others []File
}

// IsVendorFile reports whether a file looks like a Podscribe export.
func IsVendorFile(f File) bool {
	if strings.Contains(strings.ToLower(f.Name), "podscribe") {
		return true
	}
	h := podscribe.HeaderOf(f.Content)
	return strings.Contains(h, "impression") && (strings.Contains(h, "visitor") || strings.Contains(h, "unique"))
}

// IsPrimaryMetricsFile reports whether a file carries geo and spend columns.
func IsPrimaryMetricsFile(f File) bool {
	h := podscribe.HeaderOf(f.Content)
	return strings.Contains(h, "geo") && strings.Contains(h, "spend")
}

// ClassifyFiles orders files by name, then picks the first vendor file, or
// failing that the first primary metrics file. Engine is nil when neither
// exists.
func ClassifyFiles(files []File) Classification {
	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	engine := -1
	vendor := false
	for i, f := range sorted {
		if IsVendorFile(f) {
			engine, vendor = i, true
			break
		}
	}
	if engine < 0 {
		for i, f := range sorted {
			if IsPrimaryMetricsFile(f) {
				engine = i
				break
			}
		}
	}

	var c Classification
	for i := range sorted {
		if i == engine {
			f := sorted[i]
			c.Engine = &f
			c.Vendor = vendor
			continue
		}
		c.Others = append(c.Others, sorted[i])
	}
	return c
}
