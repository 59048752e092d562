package dto

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"vault/internal/domain"
)

func fieldMessage(t *testing.T, err error) string {
	t.Helper()
	var fe *domain.FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected a field error, got %v", err)
	}
	return fe.Message
}

func TestAppendRequest(t *testing.T) {
	cases := []struct {
		body    string
		wantErr string
		wantID  *int64
		indexes int
	}{
		{body: `{"cyphertext":"abc"}`},
		{body: `{"id":3,"cyphertext":"abc"}`, wantID: ptr(3)},
		{body: `{"id":"4","cyphertext":"abc"}`, wantID: ptr(4)},
		{body: `{"id":null,"cyphertext":"abc","cypherindex":"one"}`, indexes: 1},
		{body: `{"cyphertext":"abc","cypherindex":["one","two",""]}`, indexes: 2},
		{body: `{"cyphertext":"abc","cypherindex":[]}`},
		{body: `{}`, wantErr: "missing cyphertext"},
		{body: `{"cyphertext":"   "}`, wantErr: "bad cyphertext format"},
		{body: `{"cyphertext":12}`, wantErr: "bad cyphertext format"},
		{body: `{"id":-1,"cyphertext":"abc"}`, wantErr: "bad id format"},
		{body: `{"id":"x","cyphertext":"abc"}`, wantErr: "bad id format"},
		{body: `{"id":1.5,"cyphertext":"abc"}`, wantErr: "bad id format"},
		{body: `{"cyphertext":"abc","cypherindex":{"a":1}}`, wantErr: "bad cypherindex format"},
		{body: `{"cyphertext":`, wantErr: "bad body format"},
	}
	for _, tc := range cases {
		var req AppendRequest
		err := Decode(strings.NewReader(tc.body), &req)
		if err == nil {
			_, err = req.Validate()
		}
		if tc.wantErr != "" {
			if got := fieldMessage(t, err); got != tc.wantErr {
				t.Fatalf("%s: error %q, want %q", tc.body, got, tc.wantErr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", tc.body, err)
		}
		in, _ := req.Validate()
		if (tc.wantID == nil) != (in.ExpectedID == nil) || tc.wantID != nil && *tc.wantID != *in.ExpectedID {
			t.Fatalf("%s: expected id %v, got %v", tc.body, tc.wantID, in.ExpectedID)
		}
		if len(in.Indexes) != tc.indexes {
			t.Fatalf("%s: %d indexes, want %d", tc.body, len(in.Indexes), tc.indexes)
		}
	}
}

func ptr(v int64) *int64 { return &v }

func TestParseSpan(t *testing.T) {
	span, err := ParseSpan("2", "")
	if err != nil || span.Start != 2 || span.End != nil || span.Last() != 2 {
		t.Fatalf("single: %+v err=%v", span, err)
	}
	span, err = ParseSpan("2", "5")
	if err != nil || span.Last() != 5 || span.Len() != 4 {
		t.Fatalf("range: %+v err=%v", span, err)
	}

	bad := map[[2]string]string{
		{"", ""}:    "missing start",
		{"x", ""}:   "bad start format",
		{"-1", ""}:  "bad start format",
		{"1", "y"}:  "bad end format",
		{"5", "4"}:  "bad end format",
		{"1.5", ""}: "bad start format",
	}
	for in, want := range bad {
		_, err := ParseSpan(in[0], in[1])
		if got := fieldMessage(t, err); got != want {
			t.Fatalf("ParseSpan(%q, %q) = %q, want %q", in[0], in[1], got, want)
		}
	}
}

func TestValidateTokenRequest(t *testing.T) {
	good := ValidateTokenRequest{
		AccessToken: "3F2B8C1E-9D4A-4B6E-8F1A-2C3D4E5F6A7B",
		DID:         "did:ethr:0x062de159DFA582245712deFCaea2FCd2dCaA3B55",
		Signature:   "0xabc",
	}
	v, err := good.Validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if v.TokenID.String() != "3f2b8c1e-9d4a-4b6e-8f1a-2c3d4e5f6a7b" || v.DID != "did:ethr:0x062de159dfa582245712defcaea2fcd2dcaa3b55" {
		t.Fatalf("unexpected %+v", v)
	}

	cases := []struct {
		mutate func(*ValidateTokenRequest)
		want   string
	}{
		{func(r *ValidateTokenRequest) { r.AccessToken = "" }, "missing accessToken"},
		{func(r *ValidateTokenRequest) { r.AccessToken = "nope" }, "bad accessToken format"},
		{func(r *ValidateTokenRequest) { r.DID = "" }, "missing did"},
		{func(r *ValidateTokenRequest) { r.DID = "did:web:example.com" }, "bad did format"},
		{func(r *ValidateTokenRequest) { r.Signature = "" }, "missing signature"},
	}
	for _, tc := range cases {
		req := good
		tc.mutate(&req)
		_, err := req.Validate()
		if got := fieldMessage(t, err); got != tc.want {
			t.Fatalf("got %q, want %q", got, tc.want)
		}
	}
}

func TestParseRequestToken(t *testing.T) {
	q := url.Values{"did": {"did:ethr:0x062de159dfa582245712defcaea2fcd2dcaa3b55"}, "initialize": {"true"}}
	rt, err := ParseRequestToken(q)
	if err != nil || !rt.Initialize {
		t.Fatalf("parse: %+v err=%v", rt, err)
	}
	q.Set("initialize", "nonsense")
	if rt, _ := ParseRequestToken(q); rt.Initialize {
		t.Fatalf("unexpected initialize for garbage flag")
	}
	if _, err := ParseRequestToken(url.Values{}); fieldMessage(t, err) != "missing did" {
		t.Fatalf("missing did: %v", err)
	}
}

func TestParseCypherindexFilter(t *testing.T) {
	got := ParseCypherindexFilter(url.Values{"cypherindex": {"a,,b"}})
	if len(got) != 2 || string(got[0]) != "a" || string(got[1]) != "b" {
		t.Fatalf("filter = %q", got)
	}
	if ParseCypherindexFilter(url.Values{}) != nil {
		t.Fatalf("absent filter must be nil")
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	var req DeleteRequest
	if err := Decode(strings.NewReader(""), &req); err != nil || req.Signatures != nil {
		t.Fatalf("empty body: %+v err=%v", req, err)
	}
}
