package database

import (
	"strings"
	"testing"

	"github.com/trezcool/darasa/core"
)

func TestConnString(t *testing.T) {
	conf := &core.Config{}
	conf.Database.Engine = "postgres"
	conf.Database.Host = "localhost"
	conf.Database.Port = 5432
	conf.Database.User = "app"
	conf.Database.Password = "secret"
	conf.Database.AdminUser = "postgres"
	conf.Database.AdminPassword = "adminsecret"
	conf.Database.Name = "darasa"
	conf.Database.DisableTLS = true

	s := connString(conf.Database.Name, false, conf)
	for _, want := range []string{"postgres://", "app:secret@", "/darasa", "sslmode=disable", "connect_timeout=5"} {
		if !strings.Contains(s, want) {
			t.Errorf("connString() = %q, missing %q", s, want)
		}
	}

	s = connString("postgres", true, conf)
	if !strings.Contains(s, "postgres:adminsecret@") {
		t.Errorf("connString(admin) = %q, want admin credentials", s)
	}

	conf.Database.DisableTLS = false
	if s = connString(conf.Database.Name, false, conf); !strings.Contains(s, "sslmode=require") {
		t.Errorf("connString() = %q, want sslmode=require", s)
	}
}
