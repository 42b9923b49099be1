package comfy

import (
	"os"
	"path/filepath"
)

// ResolveOutput locates the result artifact of a completed execution on the
// shared filesystem. Manifest entries are checked in node-iteration order
// (the backend does not guarantee an order across nodes) and the first entry
// whose resolved path exists wins. Entries pointing at files that do not
// exist are returned in skipped; if nothing resolves the run counts as
// ErrNoOutput even though the backend reported success.
func ResolveOutput(entry *HistoryEntry, outputRoot string) (string, []string, error) {
	var skipped []string
	for _, node := range entry.Outputs {
		for _, group := range [][]OutputFile{node.Images, node.Videos, node.Gifs} {
			for _, file := range group {
				if file.Filename == "" {
					continue
				}
				path := filepath.Join(outputRoot, file.Subfolder, file.Filename)
				if _, err := os.Stat(path); err == nil {
					return path, skipped, nil
				}
				skipped = append(skipped, path)
			}
		}
	}
	return "", skipped, ErrNoOutput
}
