package app

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"
)

func TestWebServicesAreWired(t *testing.T) {
	a := New(nil, Deps{}, zerolog.Nop())
	svc := reflect.ValueOf(a.WebServices())
	typ := svc.Type()
	for i := 0; i < svc.NumField(); i++ {
		name := typ.Field(i).Name
		// The assistant is optional and absent without an API key.
		if name == "Assistant" {
			if !svc.Field(i).IsNil() {
				t.Errorf("Assistant should be nil when not configured")
			}
			continue
		}
		if svc.Field(i).IsNil() {
			t.Errorf("web.Services.%s is not wired", name)
		}
	}
}
