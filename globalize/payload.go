package globalize

import (
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Section maps record identifiers to the column values to write for them.
type Section map[string]map[string]any

// Payload maps table names to their sections.
type Payload map[string]Section

func DecodePayload(data []byte) (Payload, error) {
	var payload Payload
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return payload, nil
}

func (p Payload) Tables() []string {
	tables := make([]string, 0, len(p))
	for table := range p {
		tables = append(tables, table)
	}
	sort.Strings(tables)
	return tables
}

func (s Section) ids() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
