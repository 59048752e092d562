package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"vault/internal/domain"
	"vault/internal/observability/metrics"
	"vault/internal/observability/middleware"
	"vault/internal/sigverify"
	"vault/internal/store"
)

// Ledger is the append-only record log kept per identity, together with the
// blind index attached to its records.
type Ledger struct {
	store   *store.Store
	schemes *sigverify.Registry
}

func NewLedger(st *store.Store, schemes *sigverify.Registry) *Ledger {
	return &Ledger{store: st, schemes: schemes}
}

type AppendInput struct {
	// ExpectedID, when set, must equal the id the record will get.
	ExpectedID *int64
	Cyphertext []byte
	Indexes    [][]byte
}

type Record struct {
	ID         int64
	Cyphertext []byte
	Indexes    [][]byte
}

// Span is an inclusive id range. A nil End means the single id Start.
type Span struct {
	Start int64
	End   *int64
}

func (s Span) Last() int64 {
	if s.End == nil {
		return s.Start
	}
	return *s.End
}

func (s Span) Len() int64 { return s.Last() - s.Start + 1 }

func (s Span) validate() error {
	if s.Start < 0 {
		return domain.BadFormat("start")
	}
	if s.Last() < s.Start {
		return domain.BadFormat("end")
	}
	return nil
}

func (l *Ledger) Append(ctx context.Context, id domain.Identity, in AppendInput) (int64, error) {
	result := "success"
	defer func() {
		metrics.LedgerOperationsTotal.WithLabelValues("append", result).Inc()
	}()

	var newID int64
	err := l.store.WithTx(ctx, func(tx *store.Store) error {
		next, ok, err := tx.Entities().AdvanceDataCount(ctx, id, in.ExpectedID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrSequenceConflict
		}
		rec := &domain.DataRecord{ID: next, DID: id, Cyphertext: in.Cyphertext}
		if err := tx.Data().Insert(ctx, rec); err != nil {
			return err
		}
		if err := tx.Indexes().Attach(ctx, id, next, in.Indexes); err != nil {
			return err
		}
		newID = next
		return nil
	})
	if err != nil {
		result = "rejected"
		if !errors.Is(err, domain.ErrSequenceConflict) {
			result = "failure"
		}
		return 0, err
	}

	slog.Debug("appended record", "did", id, "id", newID, "indexes", len(in.Indexes),
		"request_id", middleware.RequestIDFromContext(ctx))
	return newID, nil
}

// Read returns the records in span, each with all of its index tokens. A
// non-empty filter keeps records carrying at least one of the tokens.
func (l *Ledger) Read(ctx context.Context, id domain.Identity, span Span, filter [][]byte) ([]Record, error) {
	if err := span.validate(); err != nil {
		return nil, err
	}

	var out []Record
	err := l.store.WithTx(ctx, func(tx *store.Store) error {
		recs, err := tx.Data().Range(ctx, id, span.Start, span.Last(), filter)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			return domain.ErrNoData
		}

		ids := make([]int64, len(recs))
		for i, r := range recs {
			ids[i] = r.ID
		}
		tokens, err := tx.Indexes().ForRecords(ctx, id, ids)
		if err != nil {
			return err
		}

		out = make([]Record, len(recs))
		for i, r := range recs {
			out[i] = Record{ID: r.ID, Cyphertext: r.Cyphertext, Indexes: tokens[r.ID]}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the ciphertext of every live record in span and writes one
// deletion receipt per record removed. When signatures are given there must
// be one per id in span, each over DeletionMessage(id); any bad signature
// aborts the whole deletion.
func (l *Ledger) Delete(ctx context.Context, id domain.Identity, span Span, signatures []string) (store.Counters, error) {
	result := "success"
	defer func() {
		metrics.LedgerOperationsTotal.WithLabelValues("delete", result).Inc()
	}()

	if err := span.validate(); err != nil {
		result = "rejected"
		return store.Counters{}, err
	}
	if signatures != nil && int64(len(signatures)) != span.Len() {
		result = "rejected"
		return store.Counters{}, domain.Invalid("signatures", "too many or too few signatures")
	}

	var counters store.Counters
	var removed int
	err := l.store.WithTx(ctx, func(tx *store.Store) error {
		if len(signatures) > 0 {
			if err := l.verifyDeletions(ctx, tx, id, span, signatures); err != nil {
				return err
			}
		}

		ids, err := tx.Data().Tombstone(ctx, id, span.Start, span.Last())
		if err != nil {
			return err
		}
		counters, err = tx.Entities().AddDeleted(ctx, id, int64(len(ids)))
		if err != nil {
			return err
		}

		first := counters.DeletedCount - int64(len(ids))
		rows := make([]domain.Deletion, len(ids))
		for i, dataID := range ids {
			rows[i] = domain.Deletion{ID: first + int64(i), DID: id, DataID: dataID}
			if len(signatures) > 0 {
				sig := signatures[dataID-span.Start]
				rows[i].Signature = &sig
			}
		}
		removed = len(ids)
		return tx.Deletions().Add(ctx, rows)
	})
	if err != nil {
		result = "rejected"
		if !errors.Is(err, domain.ErrInvalidRequest) {
			result = "failure"
		}
		return store.Counters{}, err
	}

	metrics.RecordsDeletedTotal.Add(float64(removed))
	slog.Info("deleted records", "did", id, "start", span.Start, "end", span.Last(), "removed", removed,
		"signed", len(signatures) > 0,
		"request_id", middleware.RequestIDFromContext(ctx),
		"trace_id", middleware.TraceIDFromContext(ctx))
	return counters, nil
}

func (l *Ledger) verifyDeletions(ctx context.Context, tx *store.Store, id domain.Identity, span Span, signatures []string) error {
	e, err := tx.Entities().Get(ctx, id)
	if err != nil {
		return err
	}
	for i, sig := range signatures {
		dataID := span.Start + int64(i)
		if _, err := l.schemes.Verify(id, sigverify.DeletionMessage(dataID), sig, e.Key, nil); err != nil {
			if errors.Is(err, sigverify.ErrMismatch) {
				return domain.Invalid("signatures", fmt.Sprintf("invalid signature for id: %d", dataID))
			}
			return domain.Invalid("signatures", fmt.Sprintf("bad signature format for id: %d", dataID))
		}
	}
	return nil
}

func (l *Ledger) ListDeletions(ctx context.Context, id domain.Identity, span Span) ([]domain.Deletion, error) {
	if err := span.validate(); err != nil {
		return nil, err
	}
	return l.store.Deletions().Range(ctx, id, span.Start, span.Last())
}

// ListIndexes returns the distinct index tokens of all the identity's records.
func (l *Ledger) ListIndexes(ctx context.Context, id domain.Identity) ([][]byte, error) {
	return l.store.Indexes().Distinct(ctx, id)
}
