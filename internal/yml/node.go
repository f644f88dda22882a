// Package yml decodes loosely typed YAML values, such as command line
// overrides, into plain Go values.
package yml

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Node wraps yaml.Node.
type Node yaml.Node

// Interface returns the Go value of the node: string, bool, int, float64,
// nil, map[string]interface{} or []interface{}.
func (n *Node) Interface() interface{} {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil
		}
		return (*Node)(n.Content[0]).Interface()
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!bool":
			if v, err := strconv.ParseBool(n.Value); err == nil {
				return v
			}
		case "!!null":
			return nil
		case "!!float":
			if v, err := strconv.ParseFloat(n.Value, 64); err == nil {
				return v
			}
		case "!!int":
			if v, err := strconv.Atoi(n.Value); err == nil {
				return v
			}
		}
		return n.Value
	case yaml.MappingNode:
		aMap := make(map[string]interface{})
		for i := 0; i+1 < len(n.Content); i += 2 {
			aMap[n.Content[i].Value] = (*Node)(n.Content[i+1]).Interface()
		}
		return aMap
	case yaml.SequenceNode:
		aSlice := make([]interface{}, 0, len(n.Content))
		for _, item := range n.Content {
			aSlice = append(aSlice, (*Node)(item).Interface())
		}
		return aSlice
	case yaml.AliasNode:
		if n.Alias != nil {
			return (*Node)(n.Alias).Interface()
		}
	}
	return nil
}

// Value decodes a single YAML value.
func Value(text string) (interface{}, error) {
	node := &yaml.Node{}
	if err := yaml.Unmarshal([]byte(text), node); err != nil {
		return nil, err
	}
	return (*Node)(node).Interface(), nil
}

// Overrides parses "path.to.key=value" pairs into a nested map. Values are
// decoded as YAML, so "8" becomes an int and "true" a bool.
func Overrides(pairs []string) (map[string]interface{}, error) {
	ret := make(map[string]interface{})
	for _, pair := range pairs {
		key, text, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid override %q, expected key=value", pair)
		}
		value, err := Value(text)
		if err != nil {
			return nil, fmt.Errorf("invalid override %q: %w", pair, err)
		}
		if err = put(ret, strings.Split(key, "."), value); err != nil {
			return nil, fmt.Errorf("invalid override %q: %w", pair, err)
		}
	}
	return ret, nil
}

func put(aMap map[string]interface{}, path []string, value interface{}) error {
	if len(path) == 1 {
		aMap[path[0]] = value
		return nil
	}
	child, ok := aMap[path[0]]
	if !ok {
		child = make(map[string]interface{})
		aMap[path[0]] = child
	}
	childMap, ok := child.(map[string]interface{})
	if !ok {
		return fmt.Errorf("%v is not a map", path[0])
	}
	return put(childMap, path[1:], value)
}

// Flatten turns a nested map into dotted keys.
func Flatten(aMap map[string]interface{}) map[string]interface{} {
	ret := make(map[string]interface{})
	flatten("", aMap, ret)
	return ret
}

func flatten(prefix string, aMap map[string]interface{}, dest map[string]interface{}) {
	for k, v := range aMap {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]interface{}); ok {
			flatten(key, child, dest)
			continue
		}
		dest[key] = v
	}
}
