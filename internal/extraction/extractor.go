// Package extraction locates the "materials and methods" subsections of an article-json document
// and turns them into the protocol references delivered to the partner.
package extraction

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bioprotocol-io/bioprotocol/internal/document"
	"github.com/bioprotocol-io/bioprotocol/internal/keymap"
)

// MaterialsAndMethods is the section title (compared case-insensitively) whose subsections are protocols.
const MaterialsAndMethods = "materials and methods"

var (
	// ErrInvalidInput is returned when the document is not a JSON object.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedSection is returned when a subsection lacks its id or title.
	ErrMalformedSection = errors.New("malformed section")
)

// sectionKeys are the only keys kept from a matched subsection.
var sectionKeys = []string{"id", "title"}

type (
	// ProtocolRef identifies one protocol subsection of an article.
	ProtocolRef struct {
		ProtocolSequencingNumber string `json:"ProtocolSequencingNumber"`
		ProtocolTitle            string `json:"ProtocolTitle"`
	}

	// Payload is the body delivered to the partner for one article.
	Payload struct {
		Data []ProtocolRef `json:"data"`
	}

	// Extractor pulls protocol references out of article-json.
	Extractor struct {
		logger *slog.Logger
	}
)

// NewExtractor creates an Extractor. A nil logger falls back to slog.Default().
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Extractor{logger: logger}
}

// Extract returns the protocol references found under every "materials and methods" section of doc,
// in document order.
//
// ok is false only for an empty document: there is nothing to deliver. A document without a
// "materials and methods" section yields an empty, non-nil slice and ok == true.
//
// Extraction runs in two walks. The first collects the content of every matching section, the
// second collects the {id, title} of every map typed "section" inside that content, nested ones
// included.
func (e *Extractor) Extract(doc document.Node) ([]ProtocolRef, bool, error) {
	root, isMap := doc.(*document.Map)
	if !isMap || root == nil {
		return nil, false, fmt.Errorf("%w: article-json must be an object, got %s", ErrInvalidInput, describe(doc))
	}

	if root.Len() == 0 {
		return nil, false, nil
	}

	var contents document.List

	document.Visit(root, isMaterialsAndMethods, func(n document.Node) document.Node {
		if content, ok := n.(*document.Map).Get("content"); ok {
			contents = append(contents, content)
		}

		return n
	})

	sections := document.Collect(contents, isSection, func(n document.Node) document.Node {
		return n.(*document.Map).Subset(sectionKeys...)
	})

	refs := make([]ProtocolRef, 0, len(sections))

	for i, section := range sections {
		ref, err := toProtocolRef(section.(*document.Map))
		if err != nil {
			return nil, false, fmt.Errorf("section %d: %w", i, err)
		}

		refs = append(refs, ref)
	}

	e.logger.Debug("Extracted protocol sections",
		slog.Int("matched_sections", len(contents)),
		slog.Int("protocols", len(refs)),
	)

	return refs, true, nil
}

// ExtractJSON parses raw article-json and extracts from it.
func (e *Extractor) ExtractJSON(raw []byte) ([]ProtocolRef, bool, error) {
	doc, err := document.Parse(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	return e.Extract(doc)
}

// PartnerPayload wraps refs into the body delivered to the partner. No refs gives an empty list.
func PartnerPayload(refs []ProtocolRef) Payload {
	if refs == nil {
		refs = []ProtocolRef{}
	}

	return Payload{Data: refs}
}

var isMaterialsAndMethods = document.MapWhere(func(m *document.Map) bool {
	title, ok := m.GetString("title")

	return ok && strings.EqualFold(title, MaterialsAndMethods)
})

var isSection = document.MapWhere(func(m *document.Map) bool {
	kind, ok := m.GetString("type")

	return ok && kind == "section"
})

func toProtocolRef(section *document.Map) (ProtocolRef, error) {
	keys := section.Keys()

	missing, _ := keymap.KeyDiff(keys, sectionKeys)
	if len(missing) > 0 {
		return ProtocolRef{}, fmt.Errorf("%w: expected keys id and title, found [%s]",
			ErrMalformedSection, strings.Join(keys, ", "))
	}

	id, idOK := section.GetString("id")
	title, titleOK := section.GetString("title")

	if !idOK || !titleOK {
		return ProtocolRef{}, fmt.Errorf("%w: id and title must be strings", ErrMalformedSection)
	}

	return ProtocolRef{ProtocolSequencingNumber: id, ProtocolTitle: title}, nil
}

func describe(node document.Node) string {
	switch n := node.(type) {
	case nil:
		return "nothing"
	case document.List:
		return "a list"
	case document.Scalar:
		if n.Value == nil {
			return "null"
		}

		return fmt.Sprintf("%T", n.Value)
	default:
		return fmt.Sprintf("%T", node)
	}
}
