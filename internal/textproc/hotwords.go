package textproc

import (
	"bufio"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// defaultHotwords keeps correction usable when no hotword file is
// deployed.
var defaultHotwords = []string{"小护", "胸闷", "胸痛", "发热", "呕吐"}

// LoadHotwords reads the hotword list for the LLM prompt. Each line is a
// word, optionally followed by an integer weight which is dropped here
// (weights only matter inside the prompt rules). The configured path is
// tried first, then "hotwords.txt" in the working directory; when neither
// is readable the built-in defaults are returned.
func LoadHotwords(path string) []string {
	for _, candidate := range []string{path, "hotwords.txt"} {
		if candidate == "" {
			continue
		}
		words, err := readHotwordFile(candidate)
		if err != nil {
			continue
		}
		slog.Info("loaded hotwords", "path", candidate, "count", len(words))
		return words
	}
	slog.Warn("no hotword file found, using defaults", "path", path)
	return defaultHotwords
}

func readHotwordFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if i := strings.LastIndex(line, " "); i > 0 {
			if _, err := strconv.Atoi(strings.TrimSpace(line[i+1:])); err == nil {
				line = strings.TrimSpace(line[:i])
			}
		}
		if line != "" {
			words = append(words, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return words, nil
}
