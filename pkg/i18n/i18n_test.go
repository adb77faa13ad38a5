package i18n

import (
	"reflect"
	"testing"
)

func TestEveryMessageTranslated(t *testing.T) {
	for _, m := range []Messages{messagesEN, messagesZH} {
		v := reflect.ValueOf(m)
		for i := 0; i < v.NumField(); i++ {
			if v.Field(i).String() == "" {
				t.Fatalf("message %s is empty", v.Type().Field(i).Name)
			}
		}
	}
}

func TestSetLanguage(t *testing.T) {
	defer SetLanguage(LangEN)

	SetLanguage(LangZH)
	if GetLanguage() != LangZH {
		t.Fatalf("language = %s", GetLanguage())
	}
	if got := Get("ContractsLoaded"); got != messagesZH.ContractsLoaded {
		t.Fatalf("Get = %q", got)
	}
	if got := Get("NoSuchKey"); got != "NoSuchKey" {
		t.Fatalf("unknown key = %q", got)
	}
}
