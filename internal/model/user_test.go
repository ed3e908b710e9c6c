package model

import (
	"strings"
	"testing"
	"time"
)

func TestUserIsAdmin(t *testing.T) {
	tests := []struct {
		name string
		role string
		want bool
	}{
		{name: "admin role", role: RoleAdmin, want: true},
		{name: "user role", role: RoleUser, want: false},
		{name: "empty role", role: "", want: false},
		{name: "Admin uppercase", role: "Admin", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{Role: tt.role}
			if got := u.IsAdmin(); got != tt.want {
				t.Errorf("IsAdmin() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUserValidate(t *testing.T) {
	valid := User{Name: "Admin User", Email: "admin@example.com", PasswordHash: "hash", Role: RoleAdmin}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() on valid user: %v", err)
	}

	bad := User{Name: "A", Email: "nope", Role: "root"}
	err := bad.Validate()
	ve, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("Validate() error = %v, want *ValidationError", err)
	}
	for _, field := range []string{"name", "email", "password", "role"} {
		if _, exists := ve.Fields[field]; !exists {
			t.Errorf("expected field error for %q, got %v", field, ve.Fields)
		}
	}
}

func TestNewsletterValidate(t *testing.T) {
	tests := []struct {
		name   string
		n      Newsletter
		fields []string
	}{
		{
			name: "valid",
			n:    Newsletter{Title: "Hello World!", Content: "<p>Hi</p>", Excerpt: "Hi"},
		},
		{
			name:   "missing everything",
			n:      Newsletter{},
			fields: []string{"title", "content", "excerpt"},
		},
		{
			name:   "whitespace only",
			n:      Newsletter{Title: "   ", Content: "\n", Excerpt: "\t"},
			fields: []string{"title", "content", "excerpt"},
		},
		{
			name:   "title too long",
			n:      Newsletter{Title: strings.Repeat("a", TitleMaxLength+1), Content: "c", Excerpt: "e"},
			fields: []string{"title"},
		},
		{
			name:   "excerpt too long",
			n:      Newsletter{Title: "t", Content: "c", Excerpt: strings.Repeat("e", ExcerptMaxLength+1)},
			fields: []string{"excerpt"},
		},
		{
			name: "excerpt at limit in multibyte runes",
			n:    Newsletter{Title: "t", Content: "c", Excerpt: strings.Repeat("é", ExcerptMaxLength)},
		},
		{
			name:   "title without alphanumerics",
			n:      Newsletter{Title: "!!!", Content: "c", Excerpt: "e"},
			fields: []string{"title"},
		},
		{
			name:   "title with only non-ASCII letters",
			n:      Newsletter{Title: "Привет мир", Content: "c", Excerpt: "e"},
			fields: []string{"title"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.n.Validate()
			if len(tt.fields) == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			ve, ok := AsValidationError(err)
			if !ok {
				t.Fatalf("Validate() = %v, want *ValidationError", err)
			}
			if len(ve.Fields) != len(tt.fields) {
				t.Errorf("got fields %v, want %v", ve.Fields, tt.fields)
			}
			for _, f := range tt.fields {
				if _, exists := ve.Fields[f]; !exists {
					t.Errorf("missing field error %q in %v", f, ve.Fields)
				}
			}
		})
	}
}

func TestNewsletterPatchApply(t *testing.T) {
	n := Newsletter{Title: "Old", Content: "c", Excerpt: "e"}
	var empty NewsletterPatch
	if !empty.IsEmpty() {
		t.Error("zero patch should be empty")
	}

	title := "New"
	published := true
	p := NewsletterPatch{Title: &title, Published: &published}
	p.Apply(&n)

	if n.Title != "New" || !n.Published || n.Content != "c" {
		t.Errorf("unexpected newsletter after Apply: %+v", n)
	}
}

func TestSubscriptionPatches(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	s := Subscription{Email: "a@x.com", Active: true, SubscribedAt: t0}

	Deactivation(t1).Apply(&s)
	if s.Active || s.UnsubscribedAt == nil || !s.UnsubscribedAt.Equal(t1) {
		t.Fatalf("after deactivation: %+v", s)
	}

	t2 := t1.Add(time.Hour)
	Reactivation(t2).Apply(&s)
	if !s.Active || s.UnsubscribedAt != nil || !s.SubscribedAt.Equal(t2) {
		t.Fatalf("after reactivation: %+v", s)
	}
}

func TestValidationErrorMessage(t *testing.T) {
	v := &ValidationError{}
	if v.OrNil() != nil {
		t.Fatal("empty ValidationError should be nil")
	}
	v.Add("b", "second")
	v.Add("a", "first")
	v.Add("a", "ignored")

	want := "validation failed: a: first; b: second"
	if got := v.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
