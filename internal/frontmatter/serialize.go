package frontmatter

import (
	"bytes"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/inful/mdfp"
	"gopkg.in/yaml.v3"
)

// Encode serializes fields as YAML with keys sorted at every level, so equal
// maps always produce equal bytes. An empty map encodes to nothing.
func Encode(fields map[string]any) ([]byte, error) {
	if len(fields) == 0 {
		return []byte{}, nil
	}
	node, err := mappingNode(fields)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		_ = enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Compose builds a document from fields and body. The delimiters are always
// written, even for empty fields.
func Compose(fields map[string]any, body []byte) ([]byte, error) {
	fm, err := Encode(fields)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(fm)+len(body)+8)
	out = append(out, "---\n"...)
	out = append(out, fm...)
	out = append(out, "---\n"...)
	out = append(out, body...)
	return out, nil
}

// Fingerprint returns the content signature of a page. The stored
// fingerprint field itself is excluded.
func Fingerprint(fields map[string]any, body []byte) (string, error) {
	hashed := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == mdfp.FingerprintField {
			continue
		}
		hashed[k] = v
	}
	fm, err := Encode(hashed)
	if err != nil {
		return "", err
	}
	return mdfp.CalculateFingerprintFromParts(strings.TrimSuffix(string(fm), "\n"), string(body)), nil
}

func mappingNode(m map[string]any) (*yaml.Node, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	n := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		v, err := valueNode(m[k])
		if err != nil {
			return nil, err
		}
		n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, v)
	}
	return n, nil
}

func valueNode(v any) (*yaml.Node, error) {
	switch vv := v.(type) {
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: vv}, nil
	case bool:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(vv)}, nil
	case int:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: strconv.Itoa(vv)}, nil
	case map[string]any:
		return mappingNode(vv)
	case map[any]any:
		converted := make(map[string]any, len(vv))
		for k, val := range vv {
			converted[fmt.Sprint(k)] = val
		}
		return mappingNode(converted)
	case []any:
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, item := range vv {
			node, err := valueNode(item)
			if err != nil {
				return nil, err
			}
			seq.Content = append(seq.Content, node)
		}
		return seq, nil
	default:
		var node yaml.Node
		if err := node.Encode(v); err != nil {
			return nil, err
		}
		return &node, nil
	}
}
