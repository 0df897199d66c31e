package render

import (
	"bytes"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/leggettc18/chirp/feed"
	"github.com/leggettc18/chirp/procedure"
	"github.com/leggettc18/chirp/query"
	"github.com/leggettc18/chirp/querykey"
	"github.com/leggettc18/chirp/wire"
)

var (
	created = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	alice   = feed.User{ID: "u1", Username: "alice", ProfileImageURL: "https://img/alice.png", CreatedAt: created}
)

func put(t *testing.T, s *query.Store, proc string, input any, status query.Status, data any) {
	t.Helper()
	key, err := querykey.For(proc, input)
	if err != nil {
		t.Fatal(err)
	}
	in, err := wire.Normalize(input)
	if err != nil {
		t.Fatal(err)
	}
	e := query.Entry{Key: key, Procedure: proc, Input: in, Status: status, UpdatedAt: created}
	if status == query.StatusNotFound {
		e.Err = &procedure.NotFoundError{Procedure: proc, Message: "not found"}
	} else {
		if e.Data, err = wire.Normalize(data); err != nil {
			t.Fatal(err)
		}
	}
	s.Set(e)
}

func postBy(id, content string, at time.Time) feed.PostWithAuthor {
	return feed.PostWithAuthor{
		Post:   feed.Post{ID: id, AuthorID: alice.ID, Content: content, CreatedAt: at},
		Author: alice,
	}
}

func TestProfile_WithPosts(t *testing.T) {
	s := query.NewStore()
	put(t, s, feed.ProcGetUserByUsername, feed.UsernameInput{Username: "alice"}, query.StatusSuccess, alice)
	put(t, s, feed.ProcGetPostsByUserID, feed.UserIDInput{UserID: "u1"}, query.StatusSuccess, []feed.PostWithAuthor{
		postBy("p2", "second", created.Add(time.Hour)),
		postBy("p1", "first", created),
	})

	doc, err := Profile(s, "alice")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if doc.Title != "alice" || doc.Status != http.StatusOK || doc.State != Success {
		t.Fatalf("doc: title=%q status=%d state=%v", doc.Title, doc.Status, doc.State)
	}
	body := string(doc.Body)
	if !strings.Contains(body, "@alice") || strings.Count(body, `class="post"`) != 2 {
		t.Fatalf("body:\n%s", body)
	}
	if strings.Index(body, "second") > strings.Index(body, "first") {
		t.Fatal("posts should keep the procedure's order")
	}
}

func TestProfile_EmptyFeed(t *testing.T) {
	s := query.NewStore()
	put(t, s, feed.ProcGetUserByUsername, feed.UsernameInput{Username: "alice"}, query.StatusSuccess, alice)
	put(t, s, feed.ProcGetPostsByUserID, feed.UserIDInput{UserID: "u1"}, query.StatusSuccess, []feed.PostWithAuthor{})

	doc, err := Profile(s, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(doc.Body), "User has not posted anything") {
		t.Fatalf("body:\n%s", doc.Body)
	}
}

func TestProfile_FeedNotFoundIsNotEmpty(t *testing.T) {
	s := query.NewStore()
	put(t, s, feed.ProcGetUserByUsername, feed.UsernameInput{Username: "alice"}, query.StatusSuccess, alice)
	put(t, s, feed.ProcGetPostsByUserID, feed.UserIDInput{UserID: "u1"}, query.StatusNotFound, nil)

	doc, err := Profile(s, "alice")
	if err != nil {
		t.Fatal(err)
	}
	body := string(doc.Body)
	if strings.Contains(body, "User has not posted anything") || !strings.Contains(body, "Posts are unavailable") {
		t.Fatalf("body:\n%s", body)
	}
}

func TestProfile_FeedStillLoading(t *testing.T) {
	s := query.NewStore()
	put(t, s, feed.ProcGetUserByUsername, feed.UsernameInput{Username: "alice"}, query.StatusSuccess, alice)

	doc, err := Profile(s, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if doc.State != Success || !strings.Contains(string(doc.Body), `class="loading"`) {
		t.Fatalf("state=%v body:\n%s", doc.State, doc.Body)
	}
}

func TestProfile_NotFound(t *testing.T) {
	s := query.NewStore()
	put(t, s, feed.ProcGetUserByUsername, feed.UsernameInput{Username: "ghost"}, query.StatusNotFound, nil)

	doc, err := Profile(s, "ghost")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Status != http.StatusNotFound || doc.State != NotFound || !strings.Contains(string(doc.Body), "404") {
		t.Fatalf("doc: %+v", doc)
	}
}

func TestProfile_EmptyStoreIsLoading(t *testing.T) {
	doc, err := Profile(query.NewStore(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if doc.State != Loading || doc.Status != http.StatusOK {
		t.Fatalf("doc: state=%v status=%d", doc.State, doc.Status)
	}
}

func TestPost_Title(t *testing.T) {
	s := query.NewStore()
	put(t, s, feed.ProcGetPostByID, feed.PostIDInput{ID: "p1"}, query.StatusSuccess, postBy("p1", "hello world", created))

	doc, err := Post(s, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "hello world - @alice" {
		t.Fatalf("title: got %q", doc.Title)
	}
	if !strings.Contains(string(doc.Body), `href="/post/p1"`) {
		t.Fatalf("body:\n%s", doc.Body)
	}
}

func TestDocument_PageDataSurvivesHTML(t *testing.T) {
	s := query.NewStore()
	put(t, s, feed.ProcGetUserByUsername, feed.UsernameInput{Username: "alice"}, query.StatusSuccess, alice)
	put(t, s, feed.ProcGetPostsByUserID, feed.UserIDInput{UserID: "u1"}, query.StatusSuccess, []feed.PostWithAuthor{
		postBy("p1", `</script><b>"quoted" & more`, created),
	})

	doc, err := Profile(s, "alice")
	if err != nil {
		t.Fatal(err)
	}
	payload, err := s.Encode()
	if err != nil {
		t.Fatal(err)
	}
	doc.Data = NewPageData("profile", map[string]string{"slug": "alice"}, payload)
	page, err := doc.Render()
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.Contains(page, []byte("<title>alice</title>")) {
		t.Fatalf("page:\n%s", page)
	}

	data, err := ParsePageData(bytes.NewReader(page))
	if err != nil {
		t.Fatalf("ParsePageData: %v", err)
	}
	if data == nil || data.Page != "profile" || data.Props.PageProps.Params["slug"] != "alice" {
		t.Fatalf("data: %+v", data)
	}

	fresh := query.NewStore()
	n, err := Hydrate(fresh, data)
	if err != nil || n != 2 {
		t.Fatalf("Hydrate: n=%d err=%v", n, err)
	}
	again, err := Profile(fresh, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if again.Body != doc.Body {
		t.Fatalf("hydrated render differs:\n%s\n---\n%s", again.Body, doc.Body)
	}
}

func TestParsePageData_Absent(t *testing.T) {
	page, err := NotFoundPage().Render()
	if err != nil {
		t.Fatal(err)
	}
	data, err := ParsePageData(bytes.NewReader(page))
	if err != nil || data != nil {
		t.Fatalf("got %+v, %v; want nil, nil", data, err)
	}
	if n, err := Hydrate(query.NewStore(), data); n != 0 || err != nil {
		t.Fatalf("Hydrate(nil): %d, %v", n, err)
	}
}
