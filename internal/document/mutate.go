package document

import (
	"strings"
	"time"
)

type MetadataField string

const (
	FieldTitle     MetadataField = "title"
	FieldAuthor    MetadataField = "author"
	FieldDraftDate MetadataField = "draftDate"
	FieldCountry   MetadataField = "country"
	FieldLogline   MetadataField = "logline"
)

const (
	DefaultTitle        = "Untitled Screenplay"
	defaultSceneHeading = "INT. LOCATION - DAY"
	draftDateLayout     = "2006-01-02"
)

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }

// NextBlockType picks the type of a block inserted after one of type prev.
func NextBlockType(prev BlockType) BlockType {
	switch prev {
	case BlockSceneHeading:
		return BlockAction
	case BlockCharacter, BlockParenthetical:
		return BlockDialogue
	case BlockDialogue:
		return BlockCharacter
	case BlockTransition:
		return BlockSceneHeading
	default:
		return BlockAction
	}
}

// stamp never moves the timestamp backwards.
func stamp(p *Project) {
	t := now()
	if t.Before(p.LastModified) {
		t = p.LastModified
	}
	p.LastModified = t
}

func UpdateMetadataField(p Project, field MetadataField, value string) (Project, bool) {
	out := p.Clone()
	switch field {
	case FieldTitle:
		out.Metadata.Title = value
	case FieldAuthor:
		out.Metadata.Author = value
	case FieldDraftDate:
		out.Metadata.DraftDate = value
	case FieldCountry:
		country := Country(value)
		if !country.Valid() {
			return p, false
		}
		out.Metadata.Country = country
	case FieldLogline:
		out.Metadata.Logline = value
	default:
		return p, false
	}
	stamp(&out)
	return out, true
}

// UpdateBlockContent is a no-op for unknown ids; removal and edits may race
// in the editor.
func UpdateBlockContent(p Project, blockID, text string) (Project, bool) {
	idx := p.BlockIndex(blockID)
	if idx < 0 {
		return p, false
	}
	out := p.Clone()
	out.Content[idx].Content = text
	stamp(&out)
	return out, true
}

func ChangeBlockType(p Project, blockID string, newType BlockType) (Project, bool) {
	if !newType.Valid() {
		return p, false
	}
	idx := p.BlockIndex(blockID)
	if idx < 0 {
		return p, false
	}
	out := p.Clone()
	out.Content[idx].Type = newType
	stamp(&out)
	return out, true
}

// InsertBlockAfter adds an empty block right after afterID and returns it.
func InsertBlockAfter(p Project, afterID string) (Project, Block, bool) {
	idx := p.BlockIndex(afterID)
	if idx < 0 {
		return p, Block{}, false
	}
	block := Block{
		ID:   newBlockID(),
		Type: NextBlockType(p.Content[idx].Type),
	}
	out := p
	out.Content = make([]Block, 0, len(p.Content)+1)
	out.Content = append(out.Content, p.Content[:idx+1]...)
	out.Content = append(out.Content, block)
	out.Content = append(out.Content, p.Content[idx+1:]...)
	stamp(&out)
	return out, block, true
}

// RemoveBlock refuses to remove the last remaining block.
func RemoveBlock(p Project, blockID string) (Project, bool) {
	if len(p.Content) <= 1 {
		return p, false
	}
	idx := p.BlockIndex(blockID)
	if idx < 0 {
		return p, false
	}
	out := p
	out.Content = make([]Block, 0, len(p.Content)-1)
	out.Content = append(out.Content, p.Content[:idx]...)
	out.Content = append(out.Content, p.Content[idx+1:]...)
	stamp(&out)
	return out, true
}

func CreateDefaultProject() Project {
	return NewProject(DefaultTitle)
}

func NewProject(title string) Project {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	created := now()
	return Project{
		ID: newProjectID(),
		Metadata: Metadata{
			Title:     title,
			DraftDate: created.Format(draftDateLayout),
			Country:   CountryNigeria,
		},
		Content: []Block{{
			ID:      newBlockID(),
			Type:    BlockSceneHeading,
			Content: defaultSceneHeading,
		}},
		LastModified: created,
	}
}
