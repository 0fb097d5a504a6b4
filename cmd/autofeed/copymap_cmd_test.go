package main

import (
	"reflect"
	"testing"

	"github.com/submitty/registrar-autofeed/pkg/configuration"
)

func newTestConfiguration() *configuration.Configuration {
	return &configuration.Configuration{}
}

func TestExpandSections(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"all", []string{"all"}},
		{"3", []string{"3"}},
		{"1-3", []string{"1", "2", "3"}},
		{"1-3,5,7-8", []string{"1", "2", "3", "5", "7", "8"}},
	}
	for _, tc := range cases {
		got := expandSections(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("expandSections(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestSectionsRegexp(t *testing.T) {
	valid := []string{"all", "1", "1,2,3", "1-5", "1-5,7"}
	for _, s := range valid {
		if !sectionsRe.MatchString(s) {
			t.Fatalf("expected %q to be a valid section list", s)
		}
	}
	invalid := []string{"", "a", "1,,2", "1-", "all,2"}
	for _, s := range invalid {
		if sectionsRe.MatchString(s) {
			t.Fatalf("expected %q to be rejected", s)
		}
	}
}

func TestApplyDBAuth(t *testing.T) {
	cfg := newTestConfiguration()
	if err := applyDBAuth(cfg, "feeduser:s3cret@db.school.edu"); err != nil {
		t.Fatal(err)
	}
	if cfg.Database.User != "feeduser" || cfg.Database.Password != "s3cret" || cfg.Database.Host != "db.school.edu" {
		t.Fatalf("unexpected credentials: %+v", cfg.Database)
	}

	for _, bad := range []string{"", "nohost", "user@", ":pass@host", "@host"} {
		if err := applyDBAuth(cfg, bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}
