package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Pahihq/ctfd-parser/internal/transport"
)

const loginPage = `<html><body>
<form method="post" action="/login">
  <input name="name" type="text">
  <input name="password" type="password">
  <input name="nonce" type="hidden" value="n0nc3">
  <input type="submit" value="Submit">
</form>
</body></html>`

func newLoginServer(t *testing.T, page string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(page))
			return
		}
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if r.PostForm.Get("nonce") != "n0nc3" || r.PostForm.Get("password") != "hunter2" {
			http.Redirect(w, r, "/login?error=1", http.StatusFound)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: r.PostForm.Get("name"), Path: "/"})
		http.Redirect(w, r, "/challenges", http.StatusFound)
	})
	mux.HandleFunc("/challenges", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("board"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T) *transport.Client {
	t.Helper()

	client, err := transport.New()
	if err != nil {
		t.Fatalf("transport.New() error = %v", err)
	}
	return client
}

func TestLogin(t *testing.T) {
	t.Parallel()

	t.Run("successful login stores the session", func(t *testing.T) {
		t.Parallel()

		srv := newLoginServer(t, loginPage)
		client := newClient(t)

		result, err := New(client).Login(context.Background(), srv.URL+"/login", "alice", "hunter2")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if result.StillOnLogin {
			t.Errorf("StillOnLogin = true, final URL %q", result.FinalURL)
		}
		if result.UsernameField != "name" || result.PasswordField != "password" {
			t.Errorf("fields = %q/%q, want name/password", result.UsernameField, result.PasswordField)
		}

		u, _ := url.Parse(srv.URL)
		cookies := client.Cookies(u)
		if len(cookies) != 1 || cookies[0].Value != "alice" {
			t.Errorf("session cookies = %v", cookies)
		}
	})

	t.Run("rejected credentials are reported, not returned", func(t *testing.T) {
		t.Parallel()

		srv := newLoginServer(t, loginPage)

		result, err := New(newClient(t)).Login(context.Background(), srv.URL+"/login", "alice", "wrong")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if !result.StillOnLogin {
			t.Errorf("StillOnLogin = false, final URL %q", result.FinalURL)
		}
	})

	t.Run("get form submits the query string", func(t *testing.T) {
		t.Parallel()

		mux := http.NewServeMux()
		mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`<form method="get" action="/auth?stale=1">
				<input name="username"><input name="pass" type="password">
				<input name="nonce" type="hidden" value="n0nc3"></form>`))
		})
		mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				http.Error(w, "get only", http.StatusMethodNotAllowed)
				return
			}
			q := r.URL.Query()
			if q.Get("username") != "alice" || q.Get("pass") != "hunter2" || q.Get("nonce") != "n0nc3" || q.Has("stale") {
				http.Redirect(w, r, "/login?error=1", http.StatusFound)
				return
			}
			http.Redirect(w, r, "/challenges", http.StatusFound)
		})
		mux.HandleFunc("/challenges", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("board"))
		})
		srv := httptest.NewServer(mux)
		t.Cleanup(srv.Close)

		result, err := New(newClient(t)).Login(context.Background(), srv.URL+"/login", "alice", "hunter2")
		if err != nil {
			t.Fatalf("Login() error = %v", err)
		}
		if result.StillOnLogin {
			t.Errorf("StillOnLogin = true, final URL %q", result.FinalURL)
		}
	})

	t.Run("page without a form", func(t *testing.T) {
		t.Parallel()

		srv := newLoginServer(t, "<html><body><p>maintenance</p></body></html>")

		_, err := New(newClient(t)).Login(context.Background(), srv.URL+"/login", "alice", "hunter2")
		if !errors.Is(err, ErrFormNotFound) {
			t.Errorf("Login() error = %v, want ErrFormNotFound", err)
		}
	})

	t.Run("form without a password field", func(t *testing.T) {
		t.Parallel()

		srv := newLoginServer(t, `<form><input name="email"><input name="secret"></form>`)

		_, err := New(newClient(t)).Login(context.Background(), srv.URL+"/login", "alice", "hunter2")
		if !errors.Is(err, ErrFieldsNotDetected) {
			t.Fatalf("Login() error = %v, want ErrFieldsNotDetected", err)
		}
		if !strings.Contains(err.Error(), "secret") {
			t.Errorf("error %q should list the form fields", err)
		}
	})

	t.Run("login page unreachable", func(t *testing.T) {
		t.Parallel()

		srv := newLoginServer(t, loginPage)

		_, err := New(newClient(t)).Login(context.Background(), srv.URL+"/nowhere", "alice", "hunter2")
		if !errors.Is(err, transport.ErrUnexpectedStatus) {
			t.Errorf("Login() error = %v, want ErrUnexpectedStatus", err)
		}
	})
}

func TestParseForm(t *testing.T) {
	t.Parallel()

	page, _ := url.Parse("https://ctf.example.com/auth/login?next=/challenges")

	tests := []struct {
		name       string
		body       string
		wantAction string
		wantMethod string
		wantFields []string
		wantUser   string
	}{
		{
			name:       "relative action",
			body:       `<form action="do"><input name="email"><input name="pwd"></form>`,
			wantAction: "https://ctf.example.com/auth/do",
			wantMethod: http.MethodPost,
			wantFields: []string{"email", "pwd"},
			wantUser:   "email",
		},
		{
			name:       "missing action submits to the page",
			body:       `<form method="get"><input name="login"><input name="pass"></form>`,
			wantAction: "https://ctf.example.com/auth/login?next=/challenges",
			wantMethod: http.MethodGet,
			wantFields: []string{"login", "pass"},
			wantUser:   "login",
		},
		{
			name:       "name wins over email",
			body:       `<form action="/login" method="POST"><input name="email"><input name="name"><input value="nameless"></form>`,
			wantAction: "https://ctf.example.com/login",
			wantMethod: http.MethodPost,
			wantFields: []string{"email", "name"},
			wantUser:   "name",
		},
		{
			name:       "only the first form is read",
			body:       `<form action="/search"><input name="q"></form><form action="/login"><input name="name"></form>`,
			wantAction: "https://ctf.example.com/search",
			wantMethod: http.MethodPost,
			wantFields: []string{"q"},
			wantUser:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			form, err := ParseForm(strings.NewReader(tt.body), page)
			if err != nil {
				t.Fatalf("ParseForm() error = %v", err)
			}
			if form.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", form.Action, tt.wantAction)
			}
			if form.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", form.Method, tt.wantMethod)
			}
			if diff := cmp.Diff(tt.wantFields, form.FieldNames()); diff != "" {
				t.Errorf("fields mismatch (-want +got):\n%s", diff)
			}
			user, _ := form.FirstPresent(UsernameFields)
			if user != tt.wantUser {
				t.Errorf("username field = %q, want %q", user, tt.wantUser)
			}
		})
	}
}

func TestDefaultLoginURL(t *testing.T) {
	t.Parallel()

	got, err := DefaultLoginURL("https://ctf.example.com:8000/challenges#-3")
	if err != nil {
		t.Fatalf("DefaultLoginURL() error = %v", err)
	}
	if got != "https://ctf.example.com:8000/login" {
		t.Errorf("DefaultLoginURL() = %q", got)
	}
}
