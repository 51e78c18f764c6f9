package kiwi

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/elektrobit/berrymill/internal/models"
	"github.com/elektrobit/berrymill/internal/utils"
)

// Repository types kiwi accepts
var repoTypes = map[string]bool{
	"apt-deb": true,
	"rpm-dir": true,
	"rpm-md":  true,
}

// element is a node of the description tree. Names keep their namespace
// prefix as written so the document round-trips unchanged.
type element struct {
	name     string
	attrs    []xml.Attr
	children []interface{}
}

func (e *element) attr(name string) (string, bool) {
	for _, a := range e.attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}
	return "", false
}

func (e *element) setAttr(name, value string) {
	e.attrs = append(e.attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
}

func (e *element) childElements(name string) []*element {
	var out []*element
	for _, c := range e.children {
		if ce, ok := c.(*element); ok && ce.name == name {
			out = append(out, ce)
		}
	}
	return out
}

// XMLState is a loaded appliance description
type XMLState struct {
	path string
	doc  []interface{}
	root *element

	// position in root.children where the next repository is inserted
	insertAt int
}

// StagedDescription is the file name the rewritten description is run as
const StagedDescription = "config.kiwi"

// FindDescription returns the description file to use in dir: config.kiwi,
// config.xml, the first *.kiwi file or else the first *.xml file.
func FindDescription(dir string) (string, error) {
	for _, name := range []string{"config.kiwi", "config.xml"} {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}

	for _, pattern := range []string{"*.kiwi", "*.xml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return "", err
		}
		sort.Strings(matches)
		for _, path := range matches {
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}
	return "", fmt.Errorf("no image description found in %s", dir)
}

// descriptionCandidates returns the files in dir kiwi-ng reads a
// description from: config.xml and every *.kiwi file.
func descriptionCandidates(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.kiwi"))
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(filepath.Join(dir, "config.xml")); err == nil && !info.IsDir() {
		matches = append(matches, filepath.Join(dir, "config.xml"))
	}

	var files []string
	for _, path := range matches {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			files = append(files, path)
		}
	}
	return files, nil
}

// LoadDescription reads the description file at path
func LoadDescription(path string) (*XMLState, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	state, err := ParseDescription(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	state.path = path
	return state, nil
}

// ParseDescription reads a description document
func ParseDescription(r io.Reader) (*XMLState, error) {
	dec := xml.NewDecoder(r)
	state := &XMLState{insertAt: -1}

	var stack []*element
	appendNode := func(n interface{}) {
		if len(stack) == 0 {
			state.doc = append(state.doc, n)
			return
		}
		top := stack[len(stack)-1]
		top.children = append(top.children, n)
	}

	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid XML: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: rawName(t.Name)}
			for _, a := range t.Attr {
				el.attrs = append(el.attrs, xml.Attr{Name: xml.Name{Local: rawName(a.Name)}, Value: a.Value})
			}
			appendNode(el)
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) == 0 || stack[len(stack)-1].name != rawName(t.Name) {
				return nil, fmt.Errorf("unexpected end element </%s>", rawName(t.Name))
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			appendNode(t.Copy())
		case xml.Comment:
			appendNode(t.Copy())
		case xml.ProcInst:
			appendNode(t.Copy())
		case xml.Directive:
			appendNode(t.Copy())
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].name)
	}

	for _, n := range state.doc {
		if el, ok := n.(*element); ok {
			state.root = el
			break
		}
	}
	if state.root == nil || state.root.name != "image" {
		return nil, fmt.Errorf("not an image description: missing <image> root")
	}
	return state, nil
}

func rawName(n xml.Name) string {
	if n.Space != "" {
		return n.Space + ":" + n.Local
	}
	return n.Local
}

// Path returns the file the description was loaded from
func (s *XMLState) Path() string {
	return s.path
}

// Name returns the image name
func (s *XMLState) Name() string {
	name, _ := s.root.attr("name")
	return name
}

// DeleteRepositorySections removes every <repository> element. New
// repositories are added where the first deleted one was.
func (s *XMLState) DeleteRepositorySections() {
	var kept []interface{}
	first := -1

	for _, c := range s.root.children {
		if el, ok := c.(*element); ok && el.name == "repository" {
			// drop the indentation in front of the element as well
			if n := len(kept); n > 0 && isWhitespace(kept[n-1]) {
				kept = kept[:n-1]
			}
			if first < 0 {
				first = len(kept)
			}
			continue
		}
		kept = append(kept, c)
	}

	s.root.children = kept
	s.insertAt = first
}

// ValidateRepository checks rec the way AddRepository does, without
// modifying the description
func (s *XMLState) ValidateRepository(rec models.Record) error {
	if rec.Alias == "" {
		return fmt.Errorf("repository without alias")
	}
	if rec.SourceURL == "" {
		return fmt.Errorf("repository %s: missing source url", rec.Alias)
	}
	if rec.Type != "" && !repoTypes[rec.Type] {
		return fmt.Errorf("repository %s: unsupported type %q", rec.Alias, rec.Type)
	}
	return nil
}

// AddRepository adds a repository section for rec. Aliases must be unique.
func (s *XMLState) AddRepository(rec models.Record) error {
	if err := s.ValidateRepository(rec); err != nil {
		return err
	}
	for _, existing := range s.root.childElements("repository") {
		if alias, _ := existing.attr("alias"); alias == rec.Alias {
			return fmt.Errorf("repository %s: duplicate alias", rec.Alias)
		}
	}

	indent := s.indent()
	repo := &element{name: "repository"}
	if rec.Type != "" {
		repo.setAttr("type", rec.Type)
	}
	repo.setAttr("alias", rec.Alias)
	if rec.Components != "" {
		repo.setAttr("components", rec.Components)
	}
	if rec.Distribution != "" {
		repo.setAttr("distribution", rec.Distribution)
	}
	repo.setAttr("repository_gpgcheck", fmt.Sprint(rec.GPGCheck))

	source := &element{name: "source"}
	source.setAttr("path", rec.SourceURL)
	for _, key := range rec.SigningKeys {
		if key == "" {
			continue
		}
		signing := &element{name: "signing"}
		signing.setAttr("key", key)
		source.children = append(source.children, xml.CharData(indent+"        "), signing)
	}
	if len(source.children) > 0 {
		source.children = append(source.children, xml.CharData(indent+"    "))
	}
	repo.children = []interface{}{xml.CharData(indent + "    "), source, xml.CharData(indent)}

	pos := s.insertionPoint()
	children := make([]interface{}, 0, len(s.root.children)+2)
	children = append(children, s.root.children[:pos]...)
	children = append(children, xml.CharData(indent), repo)
	children = append(children, s.root.children[pos:]...)
	s.root.children = children
	s.insertAt = pos + 2
	return nil
}

// insertionPoint returns where the next repository goes: after the last
// repository, else before <packages>, else at the end of <image>.
func (s *XMLState) insertionPoint() int {
	if s.insertAt >= 0 && s.insertAt <= len(s.root.children) {
		return s.insertAt
	}

	children := s.root.children
	for i := len(children) - 1; i >= 0; i-- {
		if el, ok := children[i].(*element); ok && el.name == "repository" {
			return i + 1
		}
	}
	for i, c := range children {
		if el, ok := c.(*element); ok && el.name == "packages" {
			if i > 0 && isWhitespace(children[i-1]) {
				return i - 1
			}
			return i
		}
	}
	if n := len(children); n > 0 && isWhitespace(children[n-1]) {
		return n - 1
	}
	return len(children)
}

// indent returns the whitespace used in front of the children of <image>
func (s *XMLState) indent() string {
	for i, c := range s.root.children {
		if _, ok := c.(*element); ok && i > 0 {
			if cd, ok := s.root.children[i-1].(xml.CharData); ok && isWhitespace(cd) {
				return string(cd)
			}
		}
	}
	return "\n    "
}

func isWhitespace(n interface{}) bool {
	cd, ok := n.(xml.CharData)
	return ok && len(bytes.TrimSpace(cd)) == 0
}

// Repositories returns the repository sections as records
func (s *XMLState) Repositories() []models.Record {
	var records []models.Record
	for _, repo := range s.root.childElements("repository") {
		rec := models.Record{}
		rec.Alias, _ = repo.attr("alias")
		rec.Type, _ = repo.attr("type")
		rec.Components, _ = repo.attr("components")
		rec.Distribution, _ = repo.attr("distribution")
		if gpg, ok := repo.attr("repository_gpgcheck"); ok {
			rec.GPGCheck = strings.EqualFold(gpg, "true")
		}
		for _, source := range repo.childElements("source") {
			rec.SourceURL, _ = source.attr("path")
			for _, signing := range source.childElements("signing") {
				key, _ := signing.attr("key")
				rec.SigningKeys = append(rec.SigningKeys, key)
			}
		}
		records = append(records, rec)
	}
	return records
}

// WriteTo serializes the description
func (s *XMLState) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	for _, n := range s.doc {
		if err := encodeNode(enc, n); err != nil {
			return 0, err
		}
	}
	if err := enc.Flush(); err != nil {
		return 0, err
	}
	if !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
		buf.WriteByte('\n')
	}
	return buf.WriteTo(w)
}

func encodeNode(enc *xml.Encoder, n interface{}) error {
	el, ok := n.(*element)
	if !ok {
		return enc.EncodeToken(n)
	}

	start := xml.StartElement{Name: xml.Name{Local: el.name}, Attr: el.attrs}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	for _, c := range el.children {
		if err := encodeNode(enc, c); err != nil {
			return err
		}
	}
	return enc.EncodeToken(start.End())
}

// Save writes the description to path
func (s *XMLState) Save(path string) error {
	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to serialize description: %w", err)
	}
	return utils.WriteFile(path, buf.Bytes(), 0644)
}
