package dto

import (
	"encoding/json"
	"net/url"
	"strconv"
	"strings"

	"vault/internal/domain"
	"vault/internal/service"
	"vault/internal/store"
)

// Cypherindex accepts either a single token or a list of tokens.
type Cypherindex []string

func (c *Cypherindex) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*c = Cypherindex{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err == nil {
		*c = many
		return nil
	}
	if string(b) == "null" {
		*c = nil
		return nil
	}
	return domain.BadFormat("cypherindex")
}

func (c Cypherindex) tokens() [][]byte {
	var out [][]byte
	for _, s := range c {
		if s != "" {
			out = append(out, []byte(s))
		}
	}
	return out
}

type AppendRequest struct {
	ID          json.RawMessage `json:"id"`
	Cyphertext  *string         `json:"cyphertext"`
	Cypherindex Cypherindex     `json:"cypherindex"`
}

func (r AppendRequest) Validate() (service.AppendInput, error) {
	var in service.AppendInput
	if raw := string(r.ID); raw != "" && raw != "null" {
		id, err := nonNegative(strings.Trim(raw, `"`), "id")
		if err != nil {
			return in, err
		}
		in.ExpectedID = &id
	}
	if r.Cyphertext == nil {
		return in, domain.Missing("cyphertext")
	}
	if strings.TrimSpace(*r.Cyphertext) == "" {
		return in, domain.BadFormat("cyphertext")
	}
	in.Cyphertext = []byte(*r.Cyphertext)
	in.Indexes = r.Cypherindex.tokens()
	return in, nil
}

type AppendResponse struct {
	ID int64 `json:"id"`
}

// ParseSpan validates the {start}/{end} path parameters. end may be empty.
func ParseSpan(start, end string) (service.Span, error) {
	if start == "" {
		return service.Span{}, domain.Missing("start")
	}
	s, err := nonNegative(start, "start")
	if err != nil {
		return service.Span{}, err
	}
	span := service.Span{Start: s}
	if end != "" {
		e, err := nonNegative(end, "end")
		if err != nil {
			return service.Span{}, err
		}
		if e < s {
			return service.Span{}, domain.BadFormat("end")
		}
		span.End = &e
	}
	return span, nil
}

func nonNegative(s, field string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, domain.BadFormat(field)
	}
	return n, nil
}

// ParseCypherindexFilter splits the comma separated cypherindex query value.
func ParseCypherindexFilter(q url.Values) [][]byte {
	raw := q.Get("cypherindex")
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return Cypherindex(strings.Split(raw, ",")).tokens()
}

type Record struct {
	ID          int64    `json:"id"`
	Cyphertext  *string  `json:"cyphertext"`
	Cypherindex []string `json:"cypherindex"`
}

func NewRecords(recs []service.Record) []Record {
	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = Record{ID: r.ID, Cypherindex: strs(r.Indexes)}
		if r.Cyphertext != nil {
			s := string(r.Cyphertext)
			out[i].Cyphertext = &s
		}
	}
	return out
}

type DeleteRequest struct {
	Signatures []string `json:"signatures"`
}

type DeleteResponse struct {
	DeletedCount int64 `json:"deletedCount"`
	DataCount    int64 `json:"dataCount"`
}

type Deletion struct {
	ID        int64   `json:"id"`
	Signature *string `json:"signature"`
}

func NewDeletions(rows []domain.Deletion) []Deletion {
	out := make([]Deletion, len(rows))
	for i, d := range rows {
		out[i] = Deletion{ID: d.DataID, Signature: d.Signature}
	}
	return out
}

type CypherIndex struct {
	Cypherindex string `json:"cypherindex"`
}

type MeResponse struct {
	DID           any           `json:"did"`
	DataCount     int64         `json:"dataCount"`
	DeletedCount  int64         `json:"deletedCount"`
	CypherIndexes []CypherIndex `json:"cypherIndexes"`
}

func NewMe(did any, counters store.Counters, indexes [][]byte) MeResponse {
	out := MeResponse{
		DID:           did,
		DataCount:     counters.DataCount,
		DeletedCount:  counters.DeletedCount,
		CypherIndexes: make([]CypherIndex, 0, len(indexes)),
	}
	for _, s := range strs(indexes) {
		out.CypherIndexes = append(out.CypherIndexes, CypherIndex{Cypherindex: s})
	}
	return out
}

type HealthResponse struct {
	Success bool `json:"success"`
}

func strs(bs [][]byte) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = string(b)
	}
	return out
}
