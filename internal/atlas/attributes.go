package atlas

import (
	"html"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hre-border/internal/fetcher"
)

var contentPattern = regexp.MustCompile(`add_content\((\d+),"(.*?)"\)`)

// Attributes maps region id to its cleaned attribute fields.
type Attributes map[int]map[string]string

// ParseAttributes reads the add_content(...) calls of one attribute file.
// Each call carries comma separated KEY||VALUE pairs.
func ParseAttributes(r io.Reader, charset string) (Attributes, error) {
	decoded, err := fetcher.DecodeCharset(r, charset)
	if err != nil {
		return nil, err
	}
	content, err := io.ReadAll(decoded)
	if err != nil {
		return nil, eris.Wrap(err, "atlas: read attributes")
	}

	out := make(Attributes)
	for _, m := range contentPattern.FindAllStringSubmatch(string(content), -1) {
		id, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, eris.Wrapf(err, "atlas: region id %q", m[1])
		}
		fields := out[id]
		if fields == nil {
			fields = make(map[string]string)
			out[id] = fields
		}
		for _, item := range strings.Split(m[2], ",") {
			key, value, ok := strings.Cut(item, "||")
			if !ok {
				continue
			}
			if k := cleanKey(key); k != "" {
				fields[k] = cleanValue(value)
			}
		}
	}
	return out, nil
}

func cleanKey(k string) string {
	k = strings.ReplaceAll(strings.TrimSpace(k), `"`, "")
	k = strings.ReplaceAll(k, "&#", "")
	return strings.ReplaceAll(k, " ", "_")
}

func cleanValue(v string) string {
	v = html.UnescapeString(v)
	v = strings.ReplaceAll(v, "&#", "")
	return strings.Trim(v, `" `)
}

// LoadAttributes parses every .JS file in dir. Later files win when two
// files describe the same region field.
func LoadAttributes(dir, charset string) (Attributes, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.JS"))
	if err != nil {
		return nil, eris.Wrap(err, "atlas: list attribute files")
	}
	if len(matches) == 0 {
		return nil, eris.Errorf("atlas: no attribute files in %s", dir)
	}
	sort.Strings(matches)

	log := zap.L().With(zap.String("component", "atlas"))
	all := make(Attributes)
	for _, path := range matches {
		attrs, err := parseAttributeFile(path, charset)
		if err != nil {
			log.Warn("skipping unreadable attribute file", zap.String("path", path), zap.Error(err))
			continue
		}
		for id, fields := range attrs {
			if all[id] == nil {
				all[id] = make(map[string]string, len(fields))
			}
			for k, v := range fields {
				all[id][k] = v
			}
		}
	}
	log.Info("attributes loaded", zap.Int("files", len(matches)), zap.Int("regions", len(all)))
	return all, nil
}

func parseAttributeFile(path, charset string) (Attributes, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "atlas: open attribute file")
	}
	defer f.Close() //nolint:errcheck
	return ParseAttributes(f, charset)
}
