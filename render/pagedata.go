package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/leggettc18/chirp/query"
)

// DataElementID is the id of the script element carrying PageData.
const DataElementID = "__CHIRP_DATA__"

// PageData is the initial data embedded in every generated page.
type PageData struct {
	Page  string `json:"page"`
	Props Props  `json:"props"`
}

type Props struct {
	PageProps PageProps `json:"pageProps"`
}

// PageProps carries the dehydrated query cache and the route parameters the
// page was generated for.
type PageProps struct {
	TRPCState json.RawMessage   `json:"trpcState,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
}

// NewPageData wraps a dehydrated payload.
func NewPageData(page string, params map[string]string, payload []byte) *PageData {
	return &PageData{
		Page:  page,
		Props: Props{PageProps: PageProps{TRPCState: payload, Params: params}},
	}
}

// Payload returns the dehydrated cache, or nil.
func (d *PageData) Payload() []byte {
	if d == nil {
		return nil
	}
	return d.Props.PageProps.TRPCState
}

// ParsePageData extracts the PageData element from an HTML document. A page
// without the element yields nil and no error.
func ParsePageData(r io.Reader) (*PageData, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("render: parse page: %w", err)
	}
	n := findByID(doc, DataElementID)
	if n == nil {
		return nil, nil
	}

	var text strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			text.WriteString(c.Data)
		}
	}
	var data PageData
	if err := json.Unmarshal([]byte(text.String()), &data); err != nil {
		return nil, fmt.Errorf("render: decode page data: %w", err)
	}
	return &data, nil
}

// Hydrate installs the payload of data into store. A nil data or an empty
// payload leaves the store untouched.
func Hydrate(store *query.Store, data *PageData) (int, error) {
	payload := data.Payload()
	if len(payload) == 0 {
		return 0, nil
	}
	return query.Hydrate(store, payload)
}

func findByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode {
		for _, a := range n.Attr {
			if a.Key == "id" && a.Val == id {
				return n
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByID(c, id); found != nil {
			return found
		}
	}
	return nil
}
