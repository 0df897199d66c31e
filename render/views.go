package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/leggettc18/chirp/feed"
	"github.com/leggettc18/chirp/query"
	"github.com/leggettc18/chirp/querykey"
	"github.com/leggettc18/chirp/wire"
)

var views = template.Must(template.New("views").Parse(`
{{- define "layout" -}}
<!DOCTYPE html>
<html lang="en"><head><meta charset="UTF-8"><meta name="viewport" content="width=device-width,initial-scale=1">
<title>{{.Title}}</title>
<style>
body{margin:0;font-family:system-ui,sans-serif;background:#000;color:#e2e8f0}
main{display:flex;justify-content:center;min-height:100vh}
.column{width:100%;max-width:42rem;border-left:1px solid #94a3b8;border-right:1px solid #94a3b8}
.banner{position:relative;height:9rem;background:#475569}
.banner img{position:absolute;bottom:-64px;left:1rem;border-radius:50%;border:4px solid #000;background:#000}
.handle{padding:1rem;margin-top:64px;font-size:1.5rem;font-weight:bold;border-bottom:1px solid #94a3b8}
.post{display:flex;gap:.75rem;padding:1rem;border-bottom:1px solid #94a3b8}
.post img{border-radius:50%}
.meta{color:#94a3b8}
.meta a{color:inherit;text-decoration:none}
.empty,.loading,.error{padding:1rem}
</style></head>
<body><main><div class="column">{{.Body}}</div></main>
{{- with .Data}}
<script id="__CHIRP_DATA__" type="application/json">{{.}}</script>
{{- end}}
</body></html>
{{- end}}

{{- define "profile" -}}
<div class="banner"><img src="{{.User.ProfileImageURL}}" alt="{{.User.Username}}'s profile pic" width="128" height="128"></div>
<div class="handle">@{{.User.Username}}</div>
{{template "feed" .Feed}}
{{- end}}

{{- define "feed" -}}
{{- if eq .State.String "loading"}}{{template "loading"}}
{{- else if eq .State.String "error"}}{{template "error" .Err}}
{{- else if eq .State.String "notfound"}}<div class="empty">Posts are unavailable</div>
{{- else if not .Posts}}<div class="empty">User has not posted anything</div>
{{- else}}<div class="feed">{{range .Posts}}{{template "postview" .}}{{end}}</div>
{{- end}}
{{- end}}

{{- define "postview" -}}
<article class="post" id="post-{{.Post.ID}}">
<img src="{{.Author.ProfileImageURL}}" alt="@{{.Author.Username}}'s profile picture" width="56" height="56">
<div><div class="meta"><a href="/@{{.Author.Username}}">@{{.Author.Username}}</a> · <a href="/post/{{.Post.ID}}"><time datetime="{{.Post.CreatedAt.Format "2006-01-02T15:04:05Z07:00"}}">{{.Post.CreatedAt.Format "Jan 2, 2006"}}</time></a></div>
<p>{{.Post.Content}}</p></div>
</article>
{{- end}}

{{- define "notfound"}}<div class="notfound">404</div>{{end}}

{{- define "loading"}}<div class="loading" role="status">Loading…</div>{{end}}

{{- define "error"}}<div class="error" role="alert">Something went wrong{{with .}}: {{.}}{{end}}</div>{{end}}
`))

// Document is a rendered page before serialization.
type Document struct {
	Title  string
	Status int
	// State of the page's primary query.
	State State
	Body  template.HTML
	Data  *PageData
}

// Render writes the full HTML document, embedding Data when set.
func (d *Document) Render() ([]byte, error) {
	var data template.JS
	if d.Data != nil {
		// json.Marshal escapes <, > and &, so the payload cannot close the
		// script element.
		b, err := json.Marshal(d.Data)
		if err != nil {
			return nil, fmt.Errorf("render: page data: %w", err)
		}
		data = template.JS(b)
	}

	var buf bytes.Buffer
	err := views.ExecuteTemplate(&buf, "layout", struct {
		Title string
		Body  template.HTML
		Data  template.JS
	}{d.Title, d.Body, data})
	if err != nil {
		return nil, fmt.Errorf("render: layout: %w", err)
	}
	return buf.Bytes(), nil
}

type feedView struct {
	State State
	Err   error
	Posts []feed.PostWithAuthor
}

// Profile renders the profile page of username from store.
func Profile(store *query.Store, username string) (*Document, error) {
	user, err := machine(store, feed.ProcGetUserByUsername, feed.UsernameInput{Username: username})
	if err != nil {
		return nil, err
	}
	if doc := unresolved(user); doc != nil {
		return doc, nil
	}
	var u feed.User
	if err := wire.Convert(user.Entry().Data, &u); err != nil {
		return nil, err
	}

	posts, err := machine(store, feed.ProcGetPostsByUserID, feed.UserIDInput{UserID: u.ID})
	if err != nil {
		return nil, err
	}
	fv := feedView{State: posts.State(), Err: posts.Entry().Err}
	if fv.State == Success {
		if err := wire.Convert(posts.Entry().Data, &fv.Posts); err != nil {
			return nil, err
		}
	}

	body, err := execute("profile", struct {
		User feed.User
		Feed feedView
	}{u, fv})
	if err != nil {
		return nil, err
	}
	return &Document{Title: u.Username, Status: http.StatusOK, State: Success, Body: body}, nil
}

// Post renders the single post page of id from store.
func Post(store *query.Store, id string) (*Document, error) {
	m, err := machine(store, feed.ProcGetPostByID, feed.PostIDInput{ID: id})
	if err != nil {
		return nil, err
	}
	if doc := unresolved(m); doc != nil {
		return doc, nil
	}
	var p feed.PostWithAuthor
	if err := wire.Convert(m.Entry().Data, &p); err != nil {
		return nil, err
	}
	body, err := execute("postview", p)
	if err != nil {
		return nil, err
	}
	return &Document{
		Title:  p.Post.Content + " - @" + p.Author.Username,
		Status: http.StatusOK,
		State:  Success,
		Body:   body,
	}, nil
}

// NotFoundPage is served for paths no template matches.
func NotFoundPage() *Document {
	body, _ := execute("notfound", nil)
	return &Document{Title: "404", Status: http.StatusNotFound, State: NotFound, Body: body}
}

// unresolved renders the non-success views, or returns nil on Success.
func unresolved(m *Machine) *Document {
	switch m.State() {
	case Loading:
		body, _ := execute("loading", nil)
		return &Document{Title: "chirp", Status: http.StatusOK, State: Loading, Body: body}
	case NotFound:
		return NotFoundPage()
	case Error:
		body, _ := execute("error", m.Entry().Err)
		return &Document{Title: "chirp", Status: http.StatusInternalServerError, State: Error, Body: body}
	}
	return nil
}

func machine(store *query.Store, procedure string, input any) (*Machine, error) {
	key, err := querykey.For(procedure, input)
	if err != nil {
		return nil, err
	}
	return NewMachine(store, key), nil
}

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := views.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render: %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}
