package filings

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
)

// extractInline parses inline XBRL embedded in an HTML document. Contexts
// and units live under ix:resources; facts are ix:nonFraction and
// ix:nonNumeric elements carrying name/contextref attributes with the fact
// value as element text.
func extractInline(data []byte) (*FactSet, error) {
	fs := &FactSet{}

	if err := extractInlineResources(fs, data); err != nil {
		return nil, err
	}
	extractInlineFacts(fs, data)

	return fs, nil
}

// extractInlineResources collects context and unit elements from the
// ix:resources section.
func extractInlineResources(fs *FactSet, data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = passthroughCharset
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity

	inResources := false

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Real-world iXBRL is rarely well-formed XML end to end; keep
			// whatever was parsed before the breakage.
			break
		}

		switch elem := token.(type) {
		case xml.StartElement:
			if elem.Name.Local == "resources" {
				inResources = true
				continue
			}
			if !inResources {
				continue
			}

			switch elem.Name.Local {
			case "context":
				var ctx Context
				if err := decoder.DecodeElement(&ctx, &elem); err != nil {
					continue // skip malformed contexts
				}
				fs.Contexts = append(fs.Contexts, ctx)
			case "unit":
				var unit Unit
				if err := decoder.DecodeElement(&unit, &elem); err != nil {
					continue
				}
				fs.Units = append(fs.Units, unit)
			}

		case xml.EndElement:
			if elem.Name.Local == "resources" {
				inResources = false
			}
		}
	}

	return nil
}

// extractInlineFacts collects ix:nonFraction and ix:nonNumeric value tags.
func extractInlineFacts(fs *FactSet, data []byte) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.CharsetReader = passthroughCharset
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		elem, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		if elem.Name.Local != "nonFraction" && elem.Name.Local != "nonNumeric" {
			continue
		}

		contextRef := getAttr(elem.Attr, "contextref")
		if contextRef == "" {
			contextRef = getAttr(elem.Attr, "contextRef")
		}
		name := getAttr(elem.Attr, "name")
		if contextRef == "" || name == "" {
			continue
		}

		unitRef := getAttr(elem.Attr, "unitref")
		if unitRef == "" {
			unitRef = getAttr(elem.Attr, "unitRef")
		}

		var value string
		if err := decoder.DecodeElement(&value, &elem); err != nil {
			continue
		}

		fs.Facts = append(fs.Facts, Fact{
			Concept:    StripConceptPrefix(name),
			Value:      strings.TrimSpace(value),
			ContextRef: contextRef,
			UnitRef:    unitRef,
			Decimals:   getAttr(elem.Attr, "decimals"),
		})
	}
}
