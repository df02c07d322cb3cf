// Package meshio loads mesh programs: YAML files declaring sets, maps and
// dats plus the schedule of parallel loops to run over them.
package meshio

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/parloop/parloop/internal/core/access"
	"gopkg.in/yaml.v3"
)

// Program is the decoded form of a mesh program file.
type Program struct {
	Sets  []SetEntry  `yaml:"sets"`
	Maps  []MapEntry  `yaml:"maps"`
	Dats  []DatEntry  `yaml:"dats"`
	Loops []LoopEntry `yaml:"loops"`
}

type SetEntry struct {
	Name string `yaml:"name"`
	Size int    `yaml:"size"`
}

type MapEntry struct {
	Name      string `yaml:"name"`
	From      string `yaml:"from"`
	To        string `yaml:"to"`
	Arity     int    `yaml:"arity"`
	IndexBase int    `yaml:"index_base,omitempty"` // 0 or 1
	Table     []int  `yaml:"table"`
}

type DatEntry struct {
	Name   string    `yaml:"name"`
	Set    string    `yaml:"set"`
	Dim    int       `yaml:"dim"`
	Type   string    `yaml:"type"`             // int, long, float, double
	Values []float64 `yaml:"values,omitempty"` // empty = zero-filled
}

type LoopEntry struct {
	Name   string     `yaml:"name"`
	Kernel string     `yaml:"kernel,omitempty"` // defaults to Name
	Set    string     `yaml:"set"`
	Args   []ArgEntry `yaml:"args"`
}

type ArgEntry struct {
	Dat   string `yaml:"dat"`
	Map   string `yaml:"map,omitempty"`   // empty = direct
	Index *Index `yaml:"index,omitempty"` // "all" or a 0-based map component; absent = all
	Dim   int    `yaml:"dim,omitempty"`
	Type  string `yaml:"type,omitempty"`
	Mode  string `yaml:"mode"`
}

// Index is a map component selector. It decodes "all" to access.All and
// integers to themselves.
type Index int

func (i *Index) UnmarshalYAML(n *yaml.Node) error {
	v := strings.ToLower(strings.TrimSpace(n.Value))
	if v == "" || v == "all" || v == "op_all" {
		*i = access.All
		return nil
	}
	k, err := strconv.Atoi(v)
	if err != nil || k < 0 {
		return fmt.Errorf("line %d: index %q: want all or a non-negative integer", n.Line, n.Value)
	}
	*i = Index(k)
	return nil
}

func (i Index) MarshalYAML() (any, error) {
	if int(i) == access.All {
		return "all", nil
	}
	return int(i), nil
}

// Load reads and decodes a mesh program file.
func Load(path string) (*Program, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mesh program: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a mesh program from YAML.
func Parse(raw []byte) (*Program, error) {
	p := &Program{}
	if err := yaml.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("parse mesh program: %w", err)
	}
	for i := range p.Loops {
		l := &p.Loops[i]
		if l.Kernel == "" {
			l.Kernel = l.Name
		}
	}
	return p, nil
}
