package knowledge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var supportedExtensions = map[string]bool{".txt": true, ".md": true, ".pdf": true}

// LoadDirectory reads every .txt, .md and .pdf file under dir. The source id
// is the path relative to dir; the title is the file name without extension.
//
// A PDF without extractable text is skipped. The returned error then joins
// one *DocumentError per skipped file and docs still holds the rest. Any
// other error aborts the walk and docs is nil.
func LoadDirectory(dir string) ([]Document, error) {
	var (
		docs    []Document
		skipped []error
	)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		base := filepath.Base(path)
		doc, err := DocumentFromFile(filepath.ToSlash(rel), strings.TrimSuffix(base, filepath.Ext(base)), base, data)
		if err != nil {
			skipped = append(skipped, err)
			return nil
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].SourceID < docs[j].SourceID })
	return docs, errors.Join(skipped...)
}
