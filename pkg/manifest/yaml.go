package manifest

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// YAML is the default codec. It works on the yaml.v3 node tree, so
// keys come back in document order, and it rewrites a value by
// splicing the new scalar over the old one in the original bytes,
// leaving comments, quoting and indentation elsewhere untouched. If
// the scalar can't be located precisely (e.g., it is a block scalar)
// the whole document is re-encoded instead.
var YAML Codec = yamlCodec{}

type yamlCodec struct{}

func (yamlCodec) Keys(doc []byte, path ...string) ([]string, error) {
	n, err := yamlLookup(doc, path)
	if err != nil {
		return nil, err
	}
	if n.Kind != yaml.MappingNode {
		return nil, pathError(ErrWrongKind, path)
	}
	keys := make([]string, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		keys = append(keys, n.Content[i].Value)
	}
	return keys, nil
}

func (yamlCodec) Get(doc []byte, path ...string) (string, error) {
	n, err := yamlLookup(doc, path)
	if err != nil {
		return "", err
	}
	if n.Kind != yaml.ScalarNode {
		return "", pathError(ErrWrongKind, path)
	}
	return n.Value, nil
}

func (c yamlCodec) Set(doc []byte, value string, path ...string) ([]byte, error) {
	root, err := parseYAML(doc)
	if err != nil {
		return nil, err
	}
	n, err := lookupNode(root, path)
	if err != nil {
		return nil, err
	}
	if n.Kind != yaml.ScalarNode {
		return nil, pathError(ErrWrongKind, path)
	}

	if out, ok := spliceScalar(doc, n, value); ok {
		// the splice has to read back as value, or we re-encode
		if got, err := c.Get(out, path...); err == nil && got == value {
			return out, nil
		}
	}

	n.Value = value
	n.Tag = "!!str"
	if plainSafe.MatchString(value) {
		n.Style = 0
	} else {
		n.Style = yaml.DoubleQuotedStyle
	}
	buf := &bytes.Buffer{}
	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, errors.Wrap(err, "encoding YAML")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "encoding YAML")
	}
	return buf.Bytes(), nil
}

func parseYAML(doc []byte) (*yaml.Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(doc, &root); err != nil {
		return nil, errors.Wrap(err, "parsing YAML")
	}
	return &root, nil
}

func yamlLookup(doc []byte, path []string) (*yaml.Node, error) {
	root, err := parseYAML(doc)
	if err != nil {
		return nil, err
	}
	return lookupNode(root, path)
}

// lookupNode walks the mapping keys in path from the root. Keys are
// matched exactly. Aliases are followed; merge keys (`<<`) are not.
func lookupNode(root *yaml.Node, path []string) (*yaml.Node, error) {
	n := resolve(root)
	for i, key := range path {
		if n == nil || isNull(n) {
			return nil, pathError(ErrPathNotFound, path[:i])
		}
		if n.Kind != yaml.MappingNode {
			return nil, pathError(ErrWrongKind, path[:i])
		}
		var next *yaml.Node
		for j := 0; j+1 < len(n.Content); j += 2 {
			if k := n.Content[j]; k.Kind == yaml.ScalarNode && k.Value == key {
				next = n.Content[j+1]
				break
			}
		}
		if next == nil {
			return nil, pathError(ErrPathNotFound, path[:i+1])
		}
		n = resolve(next)
	}
	if n == nil || isNull(n) {
		return nil, pathError(ErrPathNotFound, path)
	}
	return n, nil
}

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil {
		switch n.Kind {
		case yaml.DocumentNode:
			if len(n.Content) == 0 {
				return nil
			}
			n = n.Content[0]
		case yaml.AliasNode:
			n = n.Alias
		case 0:
			// an empty document
			return nil
		default:
			return n
		}
	}
	return nil
}

func isNull(n *yaml.Node) bool {
	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

// Scalars matching this can be written without quotes and will read
// back as the same string.
var plainSafe = regexp.MustCompile(`^[A-Za-z0-9_./][A-Za-z0-9_./:@+$-]*$`)

// spliceScalar replaces the text of the scalar n in doc with value,
// keeping the scalar's quoting style. It returns false if the
// scalar's extent in doc can't be determined.
func spliceScalar(doc []byte, n *yaml.Node, value string) ([]byte, bool) {
	start, ok := offsetOf(doc, n.Line, n.Column)
	if !ok {
		return nil, false
	}
	rest := doc[start:]

	var end int
	var rendered string
	switch n.Style {
	case 0:
		if !bytes.HasPrefix(rest, []byte(n.Value)) || !plainSafe.MatchString(value) {
			return nil, false
		}
		end = start + len(n.Value)
		rendered = value
	case yaml.DoubleQuotedStyle:
		quoted := `"` + n.Value + `"`
		if strings.ContainsAny(n.Value, `"\`) || !bytes.HasPrefix(rest, []byte(quoted)) {
			return nil, false
		}
		end = start + len(quoted)
		rendered = strconv.Quote(value)
	case yaml.SingleQuotedStyle:
		quoted := `'` + n.Value + `'`
		if strings.Contains(n.Value, `'`) || !bytes.HasPrefix(rest, []byte(quoted)) {
			return nil, false
		}
		end = start + len(quoted)
		rendered = `'` + strings.Replace(value, `'`, `''`, -1) + `'`
	default:
		return nil, false
	}

	out := make([]byte, 0, len(doc)-(end-start)+len(rendered))
	out = append(out, doc[:start]...)
	out = append(out, rendered...)
	out = append(out, doc[end:]...)
	return out, true
}

// offsetOf converts a 1-based line and (character) column, as
// reported by the YAML parser, into a byte offset.
func offsetOf(doc []byte, line, column int) (int, bool) {
	if line < 1 || column < 1 {
		return 0, false
	}
	offset := 0
	for l := 1; l < line; l++ {
		i := bytes.IndexByte(doc[offset:], '\n')
		if i < 0 {
			return 0, false
		}
		offset += i + 1
	}
	for c := 1; c < column; c++ {
		if offset >= len(doc) || doc[offset] == '\n' {
			return 0, false
		}
		_, size := utf8.DecodeRune(doc[offset:])
		offset += size
	}
	return offset, offset <= len(doc)
}
