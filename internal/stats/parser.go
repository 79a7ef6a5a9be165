package stats

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
)

const globalSection = "global"

type Parser struct {
	instanceSection string
	logger          *zap.Logger
}

func NewParser(instanceSection string, logger *zap.Logger) *Parser {
	return &Parser{instanceSection: instanceSection, logger: logger}
}

// Parse reads a statistics file. A missing file is expected while an engine
// starts up and yields an empty report. Files ending in .toml are LibAFL
// stats; anything else is read as AFL++ "key : value" lines.
func (p *Parser) Parse(path string) Report {
	report := Report{}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("Stats file not found, maybe it has not been written yet", zap.String("path", path))
		} else {
			p.logger.Warn("Failed to read stats file", zap.String("path", path), zap.Error(err))
		}
		return report
	}

	if strings.HasSuffix(path, ".toml") {
		p.parseTOML(path, data, report)
	} else {
		parseKeyValue(data, report)
	}

	report.derive()
	return report
}

// parseTOML decodes the instance section, then the global one. Each section
// is decoded on its own so a broken one cannot hide the other.
func (p *Parser) parseTOML(path string, data []byte, report Report) {
	sections := splitSections(data)
	for _, name := range []string{p.instanceSection, globalSection} {
		bodies, ok := sections[name]
		if !ok {
			p.logger.Warn("Stats section missing", zap.String("path", path), zap.String("section", name))
			continue
		}
		for _, body := range bodies {
			values := map[string]any{}
			if _, err := toml.Decode(body, &values); err != nil {
				p.logger.Warn("Failed to parse stats section",
					zap.String("path", path),
					zap.String("section", name),
					zap.Error(err))
				continue
			}
			for k, v := range values {
				report[k] = v
			}
		}
	}
}

// splitSections cuts a TOML document at its [table] headers. Array tables
// and content before the first header are ignored.
func splitSections(data []byte) map[string][]string {
	sections := make(map[string][]string)

	current := ""
	inTable := false
	var body strings.Builder
	flush := func() {
		if inTable {
			sections[current] = append(sections[current], body.String())
		}
		body.Reset()
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := tableHeader(line); ok {
			flush()
			current, inTable = name, true
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(line), "[[") {
			flush()
			inTable = false
			continue
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	flush()
	return sections
}

func tableHeader(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") || strings.HasPrefix(line, "[[") {
		return "", false
	}
	end := strings.IndexByte(line, ']')
	if end < 0 {
		return "", false
	}
	rest := strings.TrimSpace(line[end+1:])
	if rest != "" && !strings.HasPrefix(rest, "#") {
		return "", false
	}
	name := strings.TrimSpace(line[1:end])
	return strings.Trim(name, `"'`), true
}

// parseKeyValue reads AFL++ fuzzer_stats lines, "key : value".
func parseKeyValue(data []byte, report Report) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, raw, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key, raw = strings.TrimSpace(key), strings.TrimSpace(raw)
		if key == "" {
			continue
		}

		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			report[key] = i
		} else if f, err := strconv.ParseFloat(raw, 64); err == nil {
			report[key] = f
		} else {
			report[key] = raw
		}
	}
}
