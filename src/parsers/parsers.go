// src/parsers/parsers.go
package parsers

import (
	"fmt"
	"io"
	"sort"

	"github.com/username/finledger/backend/src/models"
)

// Parser turns one source format into normalized raw transactions. Parsers
// only handle well-formed input for their format; choosing the right parser
// for a file is the caller's job.
type Parser interface {
	Name() string
	Description() string
	Parse(r io.Reader) (*ParseResult, error)
}

type ParseResult struct {
	Transactions []models.RawTransaction
	SourceType   string
	Errors       []string
	Warnings     []string
	Metadata     map[string]any

	// Shared-ledger exports also surface participants and groups.
	Persons       []models.PersonRecord
	Groups        []models.GroupRecord
	CurrentUserID int64
}

func (r *ParseResult) Success() bool {
	return len(r.Errors) == 0
}

func (r *ParseResult) RecordCount() int {
	return len(r.Transactions)
}

type ParserInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Registry holds the parsers wired in at startup. Registration is explicit,
// so the set of available parsers is visible in one place.
type Registry struct {
	parsers map[string]Parser
}

func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// Register adds a parser under its name. A duplicate name is a wiring bug,
// so it panics.
func (reg *Registry) Register(p Parser) {
	name := p.Name()
	if _, exists := reg.parsers[name]; exists {
		panic(fmt.Sprintf("parser %q registered twice", name))
	}
	reg.parsers[name] = p
}

// Get returns the parser registered under name, or nil.
func (reg *Registry) Get(name string) Parser {
	return reg.parsers[name]
}

func (reg *Registry) List() []ParserInfo {
	infos := make([]ParserInfo, 0, len(reg.parsers))
	for _, p := range reg.parsers {
		infos = append(infos, ParserInfo{Name: p.Name(), Description: p.Description()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}
