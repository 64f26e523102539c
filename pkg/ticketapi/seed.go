package ticketapi

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Seed is a YAML fixture describing a memory ticket store.
//
// Example:
//
//	views:
//	  - view: {id: 1, title: "Open tickets"}
//	    tickets: [101, 102, 103]
//	macros:
//	  - {id: 7, title: "Close and thank", active: true}
//	tickets:
//	  - {id: 101, subject: "Printer on fire", status: open, tags: [hardware]}
type Seed struct {
	Views []struct {
		View    View    `yaml:"view"`
		Tickets []int64 `yaml:"tickets"`
	} `yaml:"views"`
	Macros  []Macro  `yaml:"macros"`
	Tickets []Ticket `yaml:"tickets"`
}

// LoadSeed reads a YAML seed file and returns a populated memory store.
func LoadSeed(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("seed file not found: %s", path)
		}
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	m := NewMemory()
	for _, t := range seed.Tickets {
		m.AddTicket(t)
	}
	for _, mc := range seed.Macros {
		m.AddMacro(mc)
	}
	for _, v := range seed.Views {
		m.AddView(v.View, v.Tickets...)
	}
	return m, nil
}
