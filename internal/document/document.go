// Package document defines screenplay projects and the pure operations that
// edit them. Nothing here performs I/O; callers own the values they pass in.
package document

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"scriptroom/api/internal/util"
)

type BlockType string

const (
	BlockSceneHeading  BlockType = "scene-heading"
	BlockAction        BlockType = "action"
	BlockCharacter     BlockType = "character"
	BlockParenthetical BlockType = "parenthetical"
	BlockDialogue      BlockType = "dialogue"
	BlockTransition    BlockType = "transition"
	BlockShot          BlockType = "shot"
)

var blockTypes = map[BlockType]struct{}{
	BlockSceneHeading:  {},
	BlockAction:        {},
	BlockCharacter:     {},
	BlockParenthetical: {},
	BlockDialogue:      {},
	BlockTransition:    {},
	BlockShot:          {},
}

// Valid reports whether t is one of the known block types.
func (t BlockType) Valid() bool {
	_, ok := blockTypes[t]
	return ok
}

type Country string

const (
	CountryNigeria     Country = "Nigeria"
	CountrySierraLeone Country = "Sierra Leone"
)

func (c Country) Valid() bool {
	return c == CountryNigeria || c == CountrySierraLeone
}

type Block struct {
	ID      string    `json:"id"`
	Type    BlockType `json:"type"`
	Content string    `json:"content"`
}

type Metadata struct {
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	DraftDate string  `json:"draftDate"`
	Country   Country `json:"country"`
	Logline   string  `json:"logline,omitempty"`
}

type Project struct {
	ID           string    `json:"id"`
	Metadata     Metadata  `json:"metadata"`
	Content      []Block   `json:"content"`
	LastModified time.Time `json:"lastModifiedISO"`
}

// Clone returns a copy whose block slice does not alias p's.
func (p Project) Clone() Project {
	out := p
	out.Content = append([]Block(nil), p.Content...)
	return out
}

// BlockIndex returns the position of blockID in p.Content, or -1.
func (p Project) BlockIndex(blockID string) int {
	for i, block := range p.Content {
		if block.ID == blockID {
			return i
		}
	}
	return -1
}

var (
	ErrNoBlocks       = errors.New("project has no blocks")
	ErrDuplicateBlock = errors.New("duplicate block id")
	ErrMissingID      = errors.New("project id is empty")
)

// Validate reports structural problems in a project read from storage.
func Validate(p Project) error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrMissingID
	}
	if len(p.Content) == 0 {
		return fmt.Errorf("project %s: %w", p.ID, ErrNoBlocks)
	}
	seen := make(map[string]struct{}, len(p.Content))
	for _, block := range p.Content {
		if _, ok := seen[block.ID]; ok {
			return fmt.Errorf("project %s block %s: %w", p.ID, block.ID, ErrDuplicateBlock)
		}
		seen[block.ID] = struct{}{}
	}
	return nil
}

// PlainText joins block contents in reading order, one block per line.
func PlainText(p Project) string {
	lines := make([]string, 0, len(p.Content))
	for _, block := range p.Content {
		text := strings.TrimSpace(block.Content)
		if text == "" {
			continue
		}
		lines = append(lines, text)
	}
	return strings.Join(lines, "\n")
}

func newBlockID() string {
	return util.NewID("blk")
}

func newProjectID() string {
	return util.NewID("prj")
}
