// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package schema_test

import (
	"testing"

	"github.com/creachadair/carp/schema"
)

func TestLookups(t *testing.T) {
	m := &schema.Module{Name: "org.example.chat", Types: []*schema.Type{
		{Name: "Message", Kind: schema.Data},
		{Name: "Room", Kind: schema.Interface, Calls: []*schema.Call{
			{Name: "say",
				Params: []schema.Param{{Name: "msg", Type: "org.example.chat.Message"}},
				Variants: []*schema.Variant{
					{Name: "ok"},
					{Name: "denied", Fields: []schema.Field{{Name: "reason", Type: "string"}}},
				}},
		}},
	}}

	room := m.Type("Room")
	if room == nil {
		t.Fatal(`m.Type("Room") returned nil`)
	}
	if room.Kind != schema.Interface {
		t.Errorf("Room kind: got %v, want interface", room.Kind)
	}
	if m.Type("Lobby") != nil {
		t.Error(`m.Type("Lobby") should be nil`)
	}

	say := room.Call("say")
	if say == nil {
		t.Fatal(`Room.Call("say") returned nil`)
	}
	if room.Call("shout") != nil {
		t.Error(`Room.Call("shout") should be nil`)
	}

	if v := say.Variant("denied"); v == nil {
		t.Error(`say.Variant("denied") returned nil`)
	} else if len(v.Fields) != 1 || v.Fields[0].Name != "reason" {
		t.Errorf("denied fields: got %+v", v.Fields)
	}
	if say.Variant("maybe") != nil {
		t.Error(`say.Variant("maybe") should be nil`)
	}
}

func TestKindString(t *testing.T) {
	tests := []struct {
		kind schema.Kind
		want string
	}{
		{schema.Data, "data"},
		{schema.Interface, "interface"},
		{schema.Kind(17), "kind 17"},
	}
	for _, test := range tests {
		if got := test.kind.String(); got != test.want {
			t.Errorf("Kind(%d).String: got %q, want %q", int(test.kind), got, test.want)
		}
	}
}
