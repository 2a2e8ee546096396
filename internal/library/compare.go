package library

import (
	"path/filepath"
	"strings"

	"github.com/franz/djsync/internal/collection"
	"github.com/franz/djsync/internal/util"
)

// CompareTags pairs the audio files of sourceDir and comparisonDir by file
// name without extension and returns a source->comparison mapping for every
// pair whose tags differ. Pairs with unreadable tags are logged and skipped.
func CompareTags(sourceDir, comparisonDir string, reader TagReader) ([]collection.FileMapping, error) {
	if reader == nil {
		reader = FileTagReader{}
	}

	comparePaths, err := collectAudioFiles(comparisonDir)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(comparePaths))
	for _, p := range comparePaths {
		byName[baseName(p)] = p
	}

	sourcePaths, err := collectAudioFiles(sourceDir)
	if err != nil {
		return nil, err
	}

	var changed []collection.FileMapping
	for _, source := range sourcePaths {
		compare, ok := byName[baseName(source)]
		if !ok {
			continue
		}
		sourceTags, err := reader.ReadTags(source)
		if err != nil {
			util.ErrorLog("Unable to read tags from '%s': %v", source, err)
			continue
		}
		compareTags, err := reader.ReadTags(compare)
		if err != nil {
			util.ErrorLog("Unable to read tags from '%s': %v", compare, err)
			continue
		}
		if *sourceTags == *compareTags {
			continue
		}

		util.InfoLog("Detected tag difference in '%s'", source)
		changed = append(changed, collection.FileMapping{Source: absPath(source), Dest: absPath(compare)})
	}
	return changed, nil
}

func baseName(p string) string {
	name := filepath.Base(p)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
