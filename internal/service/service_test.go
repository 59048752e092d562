package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"vault/internal/domain"
	"vault/internal/service"
	"vault/internal/sigverify"
	"vault/internal/sigverify/sigverifytest"
	"vault/internal/store"
	"vault/internal/store/storetest"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store    *store.Store
	clock    *storetest.Clock
	registry *service.Registry
	tokens   *service.Tokens
	ledger   *service.Ledger
}

func setup(t *testing.T, cfg service.TokenConfig) *fixture {
	t.Helper()
	clock := storetest.NewClock(epoch)
	st := store.New(storetest.Open(t), store.WithClock(clock.Now))
	schemes := sigverify.Default()
	return &fixture{
		store:    st,
		clock:    clock,
		registry: service.NewRegistry(st),
		tokens:   service.NewTokens(cfg, st, schemes),
		ledger:   service.NewLedger(st, schemes),
	}
}

// login runs the full challenge-response for an ethr signer.
func (f *fixture) login(t *testing.T, signer *sigverifytest.EthrSigner, initialize bool) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	tok, err := f.tokens.Issue(ctx, signer.Identity(), initialize)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.tokens.Validate(ctx, tok.String(), signer.Identity(), signer.Sign(t, tok.String()), nil); err != nil {
		t.Fatalf("validate: %v", err)
	}
	return tok
}

func TestInitializeMakesFirstAdminAndRejectsUnknownIdentities(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour})
	ctx := context.Background()
	a := sigverifytest.NewEthr(t)
	b := sigverifytest.NewEthr(t)

	tok, err := f.tokens.Issue(ctx, a.Identity(), true)
	if err != nil {
		t.Fatalf("issue A: %v", err)
	}
	expires, err := f.tokens.Validate(ctx, tok.String(), a.Identity(), a.Sign(t, tok.String()), nil)
	if err != nil {
		t.Fatalf("validate A: %v", err)
	}
	if !expires.After(f.clock.Now()) {
		t.Fatalf("expiresAt %v not in the future", expires)
	}
	if admin, _ := f.store.Entities().IsAdmin(ctx, a.Identity()); !admin {
		t.Fatalf("A should be admin")
	}
	if id, err := f.tokens.Check(ctx, tok); err != nil || id != a.Identity() {
		t.Fatalf("check A: id=%s err=%v", id, err)
	}

	fake, err := f.tokens.Issue(ctx, b.Identity(), true)
	if err != nil {
		t.Fatalf("issue B: %v", err)
	}
	if fake == uuid.Nil {
		t.Fatalf("expected a token shaped response for B")
	}
	if _, err := f.registry.Counters(ctx, b.Identity()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("B must not be registered: %v", err)
	}
	if _, err := f.tokens.Validate(ctx, fake.String(), b.Identity(), b.Sign(t, fake.String()), nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("validate B: err = %v, want ErrUnauthorized", err)
	}
}

func TestAnonymousRegistration(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour, AllowAnonymous: true})
	c := sigverifytest.NewEthr(t)

	tok := f.login(t, c, false)
	if id, err := f.tokens.Check(context.Background(), tok); err != nil || id != c.Identity() {
		t.Fatalf("check: id=%s err=%v", id, err)
	}
	if admin, _ := f.store.Entities().IsAdmin(context.Background(), c.Identity()); admin {
		t.Fatalf("self-registered identity must not be admin")
	}
}

func TestTokenValidatesOnce(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour})
	ctx := context.Background()
	a := sigverifytest.NewEthr(t)
	tok := f.login(t, a, true)

	if _, err := f.tokens.Validate(ctx, tok.String(), a.Identity(), a.Sign(t, tok.String()), nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("second validation: err = %v, want ErrUnauthorized", err)
	}
}

func TestValidateVerifiesTokenAsSent(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour})
	ctx := context.Background()
	a := sigverifytest.NewEthr(t)

	tok, err := f.tokens.Issue(ctx, a.Identity(), true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	upper := strings.ToUpper(tok.String())

	if _, err := f.tokens.Validate(ctx, upper, a.Identity(), a.Sign(t, tok.String()), nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("signature over another spelling: err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.tokens.Validate(ctx, upper, a.Identity(), a.Sign(t, upper), nil); err != nil {
		t.Fatalf("upper-case token signed as sent: %v", err)
	}
	if id, err := f.tokens.Check(ctx, tok); err != nil || id != a.Identity() {
		t.Fatalf("check: id=%s err=%v", id, err)
	}

	var fe *domain.FieldError
	if _, err := f.tokens.Validate(ctx, "not-a-token", a.Identity(), a.Sign(t, "not-a-token"), nil); !errors.As(err, &fe) || fe.Message != "bad accessToken format" {
		t.Fatalf("malformed token: err = %v", err)
	}
}

func TestValidateRejectsWrongSigner(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour})
	ctx := context.Background()
	a := sigverifytest.NewEthr(t)
	mallory := sigverifytest.NewEthr(t)

	tok, err := f.tokens.Issue(ctx, a.Identity(), true)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.tokens.Validate(ctx, tok.String(), a.Identity(), mallory.Sign(t, tok.String()), nil); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("foreign signature: err = %v, want ErrUnauthorized", err)
	}
	var fe *domain.FieldError
	if _, err := f.tokens.Validate(ctx, tok.String(), a.Identity(), "0x1234", nil); !errors.As(err, &fe) || fe.Message != "bad signature format" {
		t.Fatalf("malformed signature: err = %v", err)
	}
	if _, err := f.tokens.Check(ctx, tok); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("rejected token must stay unusable: %v", err)
	}
	if _, err := f.tokens.Validate(ctx, tok.String(), a.Identity(), a.Sign(t, tok.String()), nil); err != nil {
		t.Fatalf("owner can still validate: %v", err)
	}
}

func TestCheckHonoursTTLAndBlacklist(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour})
	ctx := context.Background()
	admin := sigverifytest.NewEthr(t)
	f.login(t, admin, true)

	user := sigverifytest.NewEthr(t)
	if err := f.registry.AddEntity(ctx, admin.Identity(), user.Identity()); err != nil {
		t.Fatalf("add entity: %v", err)
	}
	tok := f.login(t, user, false)

	f.clock.Advance(time.Hour)
	if _, err := f.tokens.Check(ctx, tok); err != nil {
		t.Fatalf("token must be live at exactly TTL: %v", err)
	}

	if err := f.registry.SetBlacklisted(ctx, admin.Identity(), user.Identity(), true); err != nil {
		t.Fatalf("blacklist: %v", err)
	}
	if _, err := f.tokens.Check(ctx, tok); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("blacklisted: err = %v", err)
	}
	if err := f.registry.SetBlacklisted(ctx, admin.Identity(), user.Identity(), false); err != nil {
		t.Fatalf("unblacklist: %v", err)
	}

	f.clock.Advance(time.Second)
	if _, err := f.tokens.Check(ctx, tok); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expired: err = %v", err)
	}
}

func TestIdentityCaseFolding(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour, AllowAnonymous: true})
	ctx := context.Background()

	upper, err := domain.ParseIdentity("did:ethr:0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	lower, err := domain.ParseIdentity(strings.ToLower(upper.String()))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, err := f.tokens.Issue(ctx, upper, false); err != nil {
		t.Fatalf("issue upper: %v", err)
	}
	if _, err := f.tokens.Issue(ctx, lower, false); err != nil {
		t.Fatalf("issue lower: %v", err)
	}

	var n int64
	if err := f.store.DB.Model(&domain.Entity{}).Count(&n).Error; err != nil || n != 1 {
		t.Fatalf("expected one entity, got %d err=%v", n, err)
	}
}

func TestAdminActionsRequireAdmin(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour, AllowAnonymous: true})
	ctx := context.Background()
	admin := sigverifytest.NewEthr(t)
	user := sigverifytest.NewEthr(t)
	f.login(t, admin, true)
	f.login(t, user, false)

	if err := f.registry.SetAdmin(ctx, user.Identity(), user.Identity(), true); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("self promotion: err = %v", err)
	}
	if err := f.registry.SetAdmin(ctx, admin.Identity(), user.Identity(), true); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := f.registry.SetAdmin(ctx, user.Identity(), admin.Identity(), false); err != nil {
		t.Fatalf("demote by new admin: %v", err)
	}
	if err := f.registry.AddEntity(ctx, admin.Identity(), sigverifytest.NewEthr(t).Identity()); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("demoted admin kept privileges: %v", err)
	}
}

func TestPGPLoginBindsKey(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour, AllowAnonymous: true})
	ctx := context.Background()
	carol := sigverifytest.NewPGP(t, "carol")
	pub := []byte(carol.PublicKey(t))

	tok, err := f.tokens.Issue(ctx, carol.Identity(), false)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := f.tokens.Validate(ctx, tok.String(), carol.Identity(), carol.Sign(t, tok.String()), pub); err != nil {
		t.Fatalf("validate: %v", err)
	}

	tok2, _ := f.tokens.Issue(ctx, carol.Identity(), false)
	if _, err := f.tokens.Validate(ctx, tok2.String(), carol.Identity(), carol.Sign(t, tok2.String()), pub); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("re-presenting key: err = %v", err)
	}
	if _, err := f.tokens.Validate(ctx, tok2.String(), carol.Identity(), carol.Sign(t, tok2.String()), nil); err != nil {
		t.Fatalf("validate with bound key: %v", err)
	}
}

func seed(t *testing.T, f *fixture, id domain.Identity, n int, index func(i int) [][]byte) {
	t.Helper()
	for i := 0; i < n; i++ {
		var idx [][]byte
		if index != nil {
			idx = index(i)
		}
		got, err := f.ledger.Append(context.Background(), id, service.AppendInput{Cyphertext: []byte{byte('a' + i)}, Indexes: idx})
		if err != nil || got != int64(i) {
			t.Fatalf("append %d: got %d err=%v", i, got, err)
		}
	}
}

func ptr(v int64) *int64 { return &v }

func TestAppendSequence(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour})
	ctx := context.Background()
	a := sigverifytest.NewEthr(t)
	f.login(t, a, true)

	if id, err := f.ledger.Append(ctx, a.Identity(), service.AppendInput{ExpectedID: ptr(0), Cyphertext: []byte("x")}); err != nil || id != 0 {
		t.Fatalf("append 0: id=%d err=%v", id, err)
	}
	if _, err := f.ledger.Append(ctx, a.Identity(), service.AppendInput{ExpectedID: ptr(2), Cyphertext: []byte("y")}); !errors.Is(err, domain.ErrSequenceConflict) {
		t.Fatalf("skip id: err = %v, want ErrSequenceConflict", err)
	}
	counters, err := f.registry.Counters(ctx, a.Identity())
	if err != nil || counters.DataCount != 1 {
		t.Fatalf("counters after conflict: %+v err=%v", counters, err)
	}

	for i := int64(1); i < 5; i++ {
		if id, err := f.ledger.Append(ctx, a.Identity(), service.AppendInput{Cyphertext: []byte("z")}); err != nil || id != i {
			t.Fatalf("append %d: id=%d err=%v", i, id, err)
		}
	}

	recs, err := f.ledger.Read(ctx, a.Identity(), service.Span{Start: 0, End: ptr(4)}, nil)
	if err != nil || len(recs) != 5 {
		t.Fatalf("read all: %d err=%v", len(recs), err)
	}
	for i, r := range recs {
		if r.ID != int64(i) {
			t.Fatalf("ids not contiguous: %+v", recs)
		}
	}

	if _, err := f.ledger.Read(ctx, a.Identity(), service.Span{Start: 5}, nil); !errors.Is(err, domain.ErrNoData) {
		t.Fatalf("read past end: err = %v", err)
	}
	var fe *domain.FieldError
	if _, err := f.ledger.Read(ctx, a.Identity(), service.Span{Start: 3, End: ptr(2)}, nil); !errors.As(err, &fe) || fe.Message != "bad end format" {
		t.Fatalf("inverted range: err = %v", err)
	}
}

func TestBlindIndexQuery(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour})
	ctx := context.Background()
	a := sigverifytest.NewEthr(t)
	f.login(t, a, true)

	seed(t, f, a.Identity(), 4, func(i int) [][]byte {
		switch i {
		case 1, 3:
			return [][]byte{[]byte("shared"), []byte("own")}
		default:
			return [][]byte{[]byte("other")}
		}
	})

	recs, err := f.ledger.Read(ctx, a.Identity(), service.Span{Start: 0, End: ptr(3)}, [][]byte{[]byte("shared")})
	if err != nil || len(recs) != 2 || recs[0].ID != 1 || recs[1].ID != 3 {
		t.Fatalf("query by shared token: %+v err=%v", recs, err)
	}
	if len(recs[0].Indexes) != 2 {
		t.Fatalf("matched record must carry all its tokens: %q", recs[0].Indexes)
	}

	tokens, err := f.ledger.ListIndexes(ctx, a.Identity())
	if err != nil || len(tokens) != 3 {
		t.Fatalf("distinct tokens: %q err=%v", tokens, err)
	}

	counters, err := f.registry.Counters(ctx, a.Identity())
	if err != nil || counters.DataCount != 4 {
		t.Fatalf("counters: %+v err=%v", counters, err)
	}
}

func TestSignedDeletion(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour})
	ctx := context.Background()
	a := sigverifytest.NewEthr(t)
	f.login(t, a, true)
	seed(t, f, a.Identity(), 6, nil)

	sigs := []string{
		a.Sign(t, sigverify.DeletionMessage(3)),
		a.Sign(t, sigverify.DeletionMessage(4)),
	}
	counters, err := f.ledger.Delete(ctx, a.Identity(), service.Span{Start: 3, End: ptr(4)}, sigs)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if counters.DeletedCount != 2 || counters.DataCount != 6 {
		t.Fatalf("counters = %+v", counters)
	}

	recs, err := f.ledger.Read(ctx, a.Identity(), service.Span{Start: 3, End: ptr(4)}, nil)
	if err != nil || len(recs) != 2 || recs[0].Cyphertext != nil || recs[1].Cyphertext != nil {
		t.Fatalf("tombstones: %+v err=%v", recs, err)
	}

	dels, err := f.ledger.ListDeletions(ctx, a.Identity(), service.Span{Start: 0, End: ptr(1)})
	if err != nil || len(dels) != 2 {
		t.Fatalf("deletions: %+v err=%v", dels, err)
	}
	for i, d := range dels {
		if d.DataID != int64(3+i) || d.Signature == nil || *d.Signature != sigs[i] {
			t.Fatalf("deletion %d = %+v", i, d)
		}
	}

	// Deleting again is a no-op on the counters.
	counters, err = f.ledger.Delete(ctx, a.Identity(), service.Span{Start: 2, End: ptr(4)}, nil)
	if err != nil || counters.DeletedCount != 3 {
		t.Fatalf("overlapping delete: %+v err=%v", counters, err)
	}
	dels, _ = f.ledger.ListDeletions(ctx, a.Identity(), service.Span{Start: 2})
	if len(dels) != 1 || dels[0].DataID != 2 || dels[0].Signature != nil {
		t.Fatalf("third receipt = %+v", dels)
	}
}

func TestDeletionSignatureFailuresCommitNothing(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour})
	ctx := context.Background()
	a := sigverifytest.NewEthr(t)
	f.login(t, a, true)
	seed(t, f, a.Identity(), 3, nil)

	cases := []struct {
		name string
		sigs []string
		msg  string
	}{
		{"count", []string{a.Sign(t, sigverify.DeletionMessage(0))}, "too many or too few signatures"},
		{"wrong id", []string{a.Sign(t, sigverify.DeletionMessage(0)), a.Sign(t, sigverify.DeletionMessage(0))}, "invalid signature for id: 1"},
		{"format", []string{a.Sign(t, sigverify.DeletionMessage(0)), "0xdead"}, "bad signature format for id: 1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.ledger.Delete(ctx, a.Identity(), service.Span{Start: 0, End: ptr(1)}, tc.sigs)
			var fe *domain.FieldError
			if !errors.As(err, &fe) || fe.Message != tc.msg {
				t.Fatalf("err = %v, want %q", err, tc.msg)
			}
		})
	}

	counters, _ := f.registry.Counters(ctx, a.Identity())
	if counters.DeletedCount != 0 {
		t.Fatalf("failed deletions changed counters: %+v", counters)
	}
	recs, _ := f.ledger.Read(ctx, a.Identity(), service.Span{Start: 0}, nil)
	if recs[0].Cyphertext == nil {
		t.Fatalf("record 0 deleted despite failure")
	}
}

func TestDeletedNeverExceedsData(t *testing.T) {
	f := setup(t, service.TokenConfig{TTL: time.Hour})
	ctx := context.Background()
	a := sigverifytest.NewEthr(t)
	f.login(t, a, true)

	for round := 0; round < 4; round++ {
		if _, err := f.ledger.Append(ctx, a.Identity(), service.AppendInput{Cyphertext: []byte("r")}); err != nil {
			t.Fatalf("append: %v", err)
		}
		counters, err := f.ledger.Delete(ctx, a.Identity(), service.Span{Start: 0, End: ptr(10)}, nil)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if counters.DeletedCount > counters.DataCount || counters.DeletedCount != int64(round+1) {
			t.Fatalf("round %d counters = %+v", round, counters)
		}
	}
}
