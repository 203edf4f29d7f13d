package manifest

import (
	"sort"

	"github.com/Jeffail/gabs"
	jsonyaml "github.com/ghodss/yaml"
	"github.com/pkg/errors"
)

// JSON converts the YAML document to JSON, edits it there, and
// converts it back to YAML. All values survive the round trip, but
// comments do not, and mapping keys are written (and listed) in
// sorted order.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

func decodeJSON(doc []byte) (*gabs.Container, error) {
	j, err := jsonyaml.YAMLToJSON(doc)
	if err != nil {
		return nil, errors.Wrap(err, "converting YAML to JSON")
	}
	c, err := gabs.ParseJSON(j)
	if err != nil {
		return nil, errors.Wrap(err, "parsing JSON")
	}
	return c, nil
}

func (jsonCodec) lookup(doc []byte, path []string) (*gabs.Container, interface{}, error) {
	c, err := decodeJSON(doc)
	if err != nil {
		return nil, nil, err
	}
	v := c.Search(path...).Data()
	if v == nil {
		return nil, nil, pathError(ErrPathNotFound, path)
	}
	return c, v, nil
}

func (j jsonCodec) Keys(doc []byte, path ...string) ([]string, error) {
	_, v, err := j.lookup(doc, path)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		return nil, pathError(ErrWrongKind, path)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (j jsonCodec) Get(doc []byte, path ...string) (string, error) {
	_, v, err := j.lookup(doc, path)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", pathError(ErrWrongKind, path)
	}
	return s, nil
}

func (j jsonCodec) Set(doc []byte, value string, path ...string) ([]byte, error) {
	c, v, err := j.lookup(doc, path)
	if err != nil {
		return nil, err
	}
	if _, ok := v.(string); !ok {
		return nil, pathError(ErrWrongKind, path)
	}
	if _, err := c.Set(value, path...); err != nil {
		return nil, errors.Wrap(err, "setting value")
	}
	out, err := jsonyaml.JSONToYAML(c.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "converting JSON to YAML")
	}
	return out, nil
}
