package models

import (
	"reflect"
	"strings"
	"testing"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

func TestKVEntry_Fields(t *testing.T) {
	typ := reflect.TypeOf(KVEntry{})

	assertGormTag(t, typ, "Key", "primaryKey")
	assertGormTag(t, typ, "Key", "size:191")
	assertGormTag(t, typ, "Value", "not null")
	assertGormTag(t, typ, "UpdatedAt", "index")

	f, _ := typ.FieldByName("Value")
	if got := f.Type.String(); got != "datatypes.JSON" {
		t.Errorf("KVEntry.Value type = %q, want datatypes.JSON", got)
	}
}

func TestKVEntry_TableName(t *testing.T) {
	if got := (KVEntry{}).TableName(); got != "kv_entries" {
		t.Errorf("TableName() = %q, want %q", got, "kv_entries")
	}
}
