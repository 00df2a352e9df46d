// Package runtime owns the live state of the messaging core: the room
// registry, the rooms themselves, and the loading of moderation data.
package runtime

import (
	"bufio"
	"bytes"
	"embed"
	"io/fs"
	"strings"

	"github.com/abadojack/whatlanggo"

	"ajar-messaging/errors"
)

// CensoredData carries the result of the loading process including
// metadata for startup logging.
type CensoredData struct {
	Words     []string
	Languages []string
}

// CensoredLoader reads and parses blacklisted words from embedded files.
type CensoredLoader struct {
	fs embed.FS
}

func NewCensoredLoader(f embed.FS) *CensoredLoader {
	return &CensoredLoader{fs: f}
}

// LoadAll scans the given directory path in the embedded FS, identifying
// .txt files as language dictionaries and parsing their contents into a
// unique list of words. The language of each dictionary is detected from
// its content; the filename is the fallback when detection is inconclusive.
func (l *CensoredLoader) LoadAll(path string) (*CensoredData, error) {
	entries, err := fs.ReadDir(l.fs, path)
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		data, err := l.fs.ReadFile(path + "/" + entry.Name())
		if err != nil {
			return nil, err
		}

		// Use a scanner to handle different line endings (\n vs \r\n) correctly
		// ⚠️Don't use strings.Split
		var fileWords []string
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				fileWords = append(fileWords, line)
				uniqueWords[line] = struct{}{}
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}

		languages = append(languages, detectLanguage(entry.Name(), fileWords))
	}

	if len(uniqueWords) == 0 {
		return nil, errors.ErrEmptyWords
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}

	return &CensoredData{
		Words:     words,
		Languages: languages,
	}, nil
}

// detectLanguage tags a dictionary with its ISO 639-1 code. A filename
// that is already a language code ("fr.txt") wins; otherwise the code is
// inferred from the dictionary content.
func detectLanguage(filename string, words []string) string {
	stem := strings.TrimSuffix(filename, ".txt")
	if len(stem) == 2 {
		return stem
	}
	info := whatlanggo.Detect(strings.Join(words, " "))
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return stem
}
