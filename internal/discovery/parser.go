package discovery

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// ParseOneLine parses the classic sources.list syntax:
//
//	deb [arch=amd64,arm64 signed-by=/usr/share/keyrings/x.gpg] uri suite [component...]
func ParseOneLine(r io.Reader) ([]Entry, error) {
	var entries []Entry

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		entry, err := parseOneLineFields(fields)
		if err != nil {
			return entries, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, entry)
	}

	return entries, scanner.Err()
}

func parseOneLineFields(fields []string) (Entry, error) {
	entry := Entry{Types: []string{fields[0]}, Enabled: true}
	rest := fields[1:]

	// Options may be written as "[a=b c=d]" or "[ a=b ]"
	if len(rest) > 0 && strings.HasPrefix(rest[0], "[") {
		var options []string
		closed := false
		for len(rest) > 0 && !closed {
			tok := rest[0]
			rest = rest[1:]
			if strings.HasSuffix(tok, "]") {
				closed = true
			}
			tok = strings.Trim(tok, "[]")
			if tok != "" {
				options = append(options, tok)
			}
		}
		if !closed {
			return entry, fmt.Errorf("unterminated option list")
		}
		applyOptions(&entry, options)
	}

	if len(rest) < 2 {
		return entry, fmt.Errorf("expected uri and suite")
	}

	entry.URIs = []string{rest[0]}
	entry.Suites = []string{rest[1]}
	entry.Components = rest[2:]
	return entry, nil
}

func applyOptions(entry *Entry, options []string) {
	for _, opt := range options {
		key, value, found := strings.Cut(opt, "=")
		if !found {
			continue
		}
		key = strings.TrimRight(key, "+-")

		switch key {
		case "arch":
			entry.Architectures = splitList(value, ",")
		case "signed-by":
			entry.SignedBy = value
		}
	}
}

// ParseDeb822 parses the stanza based ".sources" syntax
func ParseDeb822(r io.Reader) ([]Entry, error) {
	var entries []Entry

	for _, stanza := range readStanzas(r) {
		if len(stanza) == 0 {
			continue
		}

		entry := Entry{
			Types:         strings.Fields(stanza["types"]),
			URIs:          strings.Fields(stanza["uris"]),
			Suites:        strings.Fields(stanza["suites"]),
			Components:    strings.Fields(stanza["components"]),
			Architectures: strings.Fields(stanza["architectures"]),
			SignedBy:      strings.TrimSpace(stanza["signed-by"]),
			Enabled:       true,
		}

		if enabled, ok := stanza["enabled"]; ok {
			switch strings.ToLower(strings.TrimSpace(enabled)) {
			case "no", "false", "0":
				entry.Enabled = false
			}
		}

		if len(entry.URIs) == 0 || len(entry.Suites) == 0 {
			return entries, fmt.Errorf("stanza without URIs or Suites")
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// readStanzas splits deb822 data into field maps keyed by lower-case name
func readStanzas(r io.Reader) []map[string]string {
	var stanzas []map[string]string
	current := make(map[string]string)
	var currentKey string
	var currentValue strings.Builder

	flush := func() {
		if currentKey != "" {
			current[currentKey] = currentValue.String()
			currentKey = ""
		}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "#") {
			continue
		}

		// Empty line = end of stanza
		if strings.TrimSpace(line) == "" {
			flush()
			if len(current) > 0 {
				stanzas = append(stanzas, current)
				current = make(map[string]string)
			}
			continue
		}

		// Handle continuation lines (start with space); " ." is an empty line
		if line[0] == ' ' || line[0] == '\t' {
			if currentKey == "" {
				continue
			}
			cont := strings.TrimSpace(line)
			if cont == "." {
				cont = ""
			}
			currentValue.WriteString("\n")
			currentValue.WriteString(cont)
			continue
		}

		flush()
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		currentKey = strings.ToLower(strings.TrimSpace(key))
		currentValue.Reset()
		currentValue.WriteString(strings.TrimSpace(value))
	}

	flush()
	if len(current) > 0 {
		stanzas = append(stanzas, current)
	}
	return stanzas
}

func splitList(value, sep string) []string {
	var out []string
	for _, v := range strings.Split(value, sep) {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
