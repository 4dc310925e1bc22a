package feed

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/mission-sync/internal/model"
)

// StreamXML decodes every element with the given local name into T and
// sends it on the returned channel. Both channels are closed when done.
func StreamXML[T any](ctx context.Context, r io.Reader, elementName string) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		decoder := xml.NewDecoder(r)
		decoder.Entity = xml.HTMLEntity
		decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
			enc, err := htmlindex.Get(charset)
			if err != nil {
				return nil, eris.Wrapf(err, "xml: unsupported charset %q", charset)
			}
			return enc.NewDecoder().Reader(input), nil
		}

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}

			tok, err := decoder.Token()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "xml: read token")
				return
			}

			se, ok := tok.(xml.StartElement)
			if !ok || se.Name.Local != elementName {
				continue
			}

			var item T
			if err := decoder.DecodeElement(&item, &se); err != nil {
				errCh <- eris.Wrap(err, "xml: decode element")
				return
			}

			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xml: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

// element is a schema-less XML subtree. Leaves decode to trimmed strings,
// elements with children to map[string]any, and repeated children to []any.
type element map[string]any

// UnmarshalXML implements xml.Unmarshaler.
func (e *element) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	v, err := decodeNode(d)
	if err != nil {
		return err
	}
	if m, ok := v.(map[string]any); ok {
		*e = m
	} else {
		*e = element{}
	}
	return nil
}

func decodeNode(d *xml.Decoder) (any, error) {
	var (
		children map[string]any
		text     strings.Builder
	)
	for {
		tok, err := d.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			v, err := decodeNode(d)
			if err != nil {
				return nil, err
			}
			if children == nil {
				children = make(map[string]any)
			}
			addChild(children, t.Name.Local, v)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if children != nil {
				return children, nil
			}
			return strings.TrimSpace(text.String()), nil
		}
	}
}

func addChild(m map[string]any, name string, v any) {
	existing, ok := m[name]
	if !ok {
		m[name] = v
		return
	}
	if list, ok := existing.([]any); ok {
		m[name] = append(list, v)
		return
	}
	m[name] = []any{existing, v}
}

// XMLParser decodes a feed document into raw mission records.
type XMLParser struct {
	// ElementName is the local name of one mission entry.
	ElementName string
}

// NewXMLParser returns a parser for <mission> entries.
func NewXMLParser() *XMLParser {
	return &XMLParser{ElementName: "mission"}
}

// Parse returns the records of a feed in document order. A document without
// entries yields an empty slice; malformed XML yields a *ParseError.
func (p *XMLParser) Parse(ctx context.Context, data []byte) ([]model.RawRecord, error) {
	items, errs := StreamXML[element](ctx, bytes.NewReader(data), p.ElementName)

	records := make([]model.RawRecord, 0)
	for item := range items {
		records = append(records, normalizeAddresses(model.RawRecord(item)))
	}
	if err := <-errs; err != nil {
		return nil, &ParseError{Err: err}
	}
	return records, nil
}

// normalizeAddresses always exposes addresses as a list under "addresses",
// whether the feed nests <address> in <addresses>, repeats <address> at the
// top level, or has a single one.
func normalizeAddresses(r model.RawRecord) model.RawRecord {
	var list []any
	switch v := r["addresses"].(type) {
	case map[string]any:
		if inner, ok := v["address"]; ok {
			list = asList(inner)
		} else {
			list = []any{v}
		}
	case []any:
		list = v
	}
	if top, ok := r["address"]; ok {
		if _, isMap := top.(map[string]any); isMap || isMapList(top) {
			list = append(list, asList(top)...)
			delete(r, "address")
		}
	}
	if list != nil {
		r["addresses"] = list
	}
	return r
}

func asList(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return []any{v}
}

func isMapList(v any) bool {
	l, ok := v.([]any)
	if !ok || len(l) == 0 {
		return false
	}
	_, isMap := l[0].(map[string]any)
	return isMap
}
