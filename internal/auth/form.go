package auth

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Form is the first HTML form of a page.
type Form struct {
	// Action is the absolute submission URL.
	Action string

	// Method is GET or POST; anything else submits as POST.
	Method string
	Fields []Field
}

// Field is a named <input> of a form.
type Field struct {
	Name  string
	Type  string
	Value string
}

// ParseForm reads the first <form> of an HTML document.
// The action is resolved against pageURL; a missing action submits to pageURL.
func ParseForm(r io.Reader, pageURL *url.URL) (*Form, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse login page: %w", err)
	}

	sel := doc.Find("form").First()
	if sel.Length() == 0 {
		return nil, ErrFormNotFound
	}

	form := &Form{
		Action: pageURL.String(),
		Method: http.MethodPost,
	}
	if strings.EqualFold(strings.TrimSpace(sel.AttrOr("method", "")), http.MethodGet) {
		form.Method = http.MethodGet
	}
	if action := strings.TrimSpace(sel.AttrOr("action", "")); action != "" {
		if ref, err := url.Parse(action); err == nil {
			form.Action = pageURL.ResolveReference(ref).String()
		}
	}

	sel.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		name := in.AttrOr("name", "")
		if name == "" {
			return
		}
		form.Fields = append(form.Fields, Field{
			Name:  name,
			Type:  in.AttrOr("type", "text"),
			Value: in.AttrOr("value", ""),
		})
	})
	return form, nil
}

// Values returns the submission payload; a later field overrides an earlier one of the same name.
func (f *Form) Values() map[string]string {
	values := make(map[string]string, len(f.Fields))
	for _, field := range f.Fields {
		values[field.Name] = field.Value
	}
	return values
}

// FirstPresent returns the first candidate that names a field of the form.
func (f *Form) FirstPresent(candidates []string) (string, bool) {
	for _, c := range candidates {
		for _, field := range f.Fields {
			if field.Name == c {
				return c, true
			}
		}
	}
	return "", false
}

// FieldNames lists field names in document order.
func (f *Form) FieldNames() []string {
	names := make([]string, 0, len(f.Fields))
	for _, field := range f.Fields {
		names = append(names, field.Name)
	}
	return names
}

// QueryURL returns the action with values encoded as its query string,
// replacing any query the action carried, as browsers do for GET forms.
func (f *Form) QueryURL(values map[string]string) (string, error) {
	u, err := url.Parse(f.Action)
	if err != nil {
		return "", fmt.Errorf("invalid form action %q: %w", f.Action, err)
	}
	q := make(url.Values, len(values))
	for k, v := range values {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
