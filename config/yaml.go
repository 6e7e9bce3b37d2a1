package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

func parseYaml(out interface{}, blob []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(blob))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("can't parse yaml: %w", err)
	}
	return nil
}

// expandEnv substitutes environment variables inside scalar values only,
// so expanded values can't change the document structure.
func expandEnv(blob []byte) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(blob, &root); err != nil {
		return nil, fmt.Errorf("can't parse yaml: %w", err)
	}
	if root.Kind == 0 {
		return blob, nil
	}
	expandScalars(&root)
	res, err := yaml.Marshal(&root)
	if err != nil {
		return nil, fmt.Errorf("can't encode expanded yaml: %w", err)
	}
	return res, nil
}

func expandScalars(node *yaml.Node) {
	if node.Kind == yaml.ScalarNode {
		if expanded := os.ExpandEnv(node.Value); expanded != node.Value {
			// the tag is resolved again from the expanded value
			node.Value = expanded
			node.Tag = ""
			node.Style = 0
		}
		return
	}
	for _, child := range node.Content {
		expandScalars(child)
	}
}
