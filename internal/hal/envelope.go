package hal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/civicalert/civicalert/pkg/errors"
)

const (
	keyLinks    = "_links"
	keyEmbedded = "_embedded"
)

// Resource is a single entity: its fields flattened at the top level plus _links.
type Resource struct {
	Fields   map[string]any
	Links    Links
	Embedded map[string][]Resource
}

func (r Resource) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Fields)+2)
	for key, value := range r.Fields {
		if key == keyLinks || key == keyEmbedded {
			continue
		}
		out[key] = value
	}
	links := r.Links
	if links == nil {
		links = Links{}
	}
	out[keyLinks] = links
	if len(r.Embedded) > 0 {
		out[keyEmbedded] = r.Embedded
	}
	return json.Marshal(out)
}

func (r *Resource) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Fields = make(map[string]any, len(raw))
	r.Links = Links{}
	r.Embedded = nil

	for key, value := range raw {
		switch key {
		case keyLinks:
			if err := json.Unmarshal(value, &r.Links); err != nil {
				return fmt.Errorf("hal: decode _links: %w", err)
			}
		case keyEmbedded:
			if err := json.Unmarshal(value, &r.Embedded); err != nil {
				return fmt.Errorf("hal: decode _embedded: %w", err)
			}
		default:
			var field any
			if err := decodeValue(value, &field); err != nil {
				return err
			}
			r.Fields[key] = field
		}
	}
	return nil
}

// Collection is one page of resources.
type Collection struct {
	Total      int64
	Page       int
	PageSize   int
	TotalPages int
	Links      Links
	Items      []Resource
}

type collectionWire struct {
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
	Links      Links                 `json:"_links"`
	Embedded   map[string][]Resource `json:"_embedded"`
}

func (c Collection) MarshalJSON() ([]byte, error) {
	items := c.Items
	if items == nil {
		items = []Resource{}
	}
	links := c.Links
	if links == nil {
		links = Links{}
	}
	return json.Marshal(collectionWire{
		Total:      c.Total,
		Page:       c.Page,
		PageSize:   c.PageSize,
		TotalPages: c.TotalPages,
		Links:      links,
		Embedded:   map[string][]Resource{"items": items},
	})
}

func (c *Collection) UnmarshalJSON(data []byte) error {
	var wire collectionWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*c = Collection{
		Total:      wire.Total,
		Page:       wire.Page,
		PageSize:   wire.PageSize,
		TotalPages: wire.TotalPages,
		Links:      wire.Links,
		Items:      wire.Embedded["items"],
	}
	return nil
}

// DecodeCollection parses a rendered collection envelope.
func DecodeCollection(data []byte) (Collection, error) {
	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return Collection{}, err
	}
	if c.Links == nil {
		return Collection{}, errors.New("hal: collection has no _links")
	}
	return c, nil
}

// DecodeResource parses a rendered resource envelope.
func DecodeResource(data []byte) (Resource, error) {
	var r Resource
	err := json.Unmarshal(data, &r)
	return r, err
}

// Problem is an error document. It never carries _embedded.
type Problem struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	Errors   []apperrors.FieldError `json:"errors,omitempty"`
	Links    Links                  `json:"_links"`
}

func decodeValue(data []byte, out *any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}
