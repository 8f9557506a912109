package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/go-socialcart-backend/internal/domain"
)

func TestKV_PutGetOverwriteDelete(t *testing.T) {
	db := newRepoDB(t, &domain.KVEntry{})
	ctx := context.Background()

	if _, err := GetKV(ctx, db, "cart:personal:u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := PutKV(ctx, db, "cart:personal:u1", []byte(`[1]`), "ctx-a"); err != nil {
		t.Fatalf("PutKV: %v", err)
	}
	if err := PutKV(ctx, db, "cart:personal:u1", []byte(`[2]`), "ctx-b"); err != nil {
		t.Fatalf("PutKV overwrite: %v", err)
	}
	e, err := GetKV(ctx, db, "cart:personal:u1")
	if err != nil || string(e.Value) != "[2]" || e.Origin != "ctx-b" {
		t.Fatalf("GetKV: %+v %v", e, err)
	}
	existed, err := DeleteKV(ctx, db, "cart:personal:u1")
	if err != nil || !existed {
		t.Fatalf("DeleteKV: existed=%v err=%v", existed, err)
	}
	if existed, _ := DeleteKV(ctx, db, "cart:personal:u1"); existed {
		t.Fatalf("second delete must report no row")
	}
}

func TestListKVKeys_PrefixIsLiteral(t *testing.T) {
	db := newRepoDB(t, &domain.KVEntry{})
	ctx := context.Background()
	for _, k := range []string{"chat:a--b", "chat:a--c", "chatx", "cart:shared:1", "c_at"} {
		if err := PutKV(ctx, db, k, []byte("[]"), ""); err != nil {
			t.Fatalf("PutKV: %v", err)
		}
	}
	keys, err := ListKVKeys(ctx, db, "chat:")
	if err != nil || len(keys) != 2 || keys[0] != "chat:a--b" {
		t.Fatalf("ListKVKeys: %v %v", keys, err)
	}
	keys, _ = ListKVKeys(ctx, db, "c_")
	if len(keys) != 1 || keys[0] != "c_at" {
		t.Fatalf("underscore must match literally, got %v", keys)
	}
}

func TestOrdersAndReviews(t *testing.T) {
	db := newRepoDB(t, &domain.Order{}, &domain.Review{})
	ctx := context.Background()

	o := &domain.Order{ID: "o1", UserID: "u1", PartitionKey: "personal:u1", Delivery: "eco", TotalCents: 100}
	if err := CreateOrder(ctx, db, o); err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if got, err := GetOrder(ctx, db, "o1", "u1"); err != nil || got.TotalCents != 100 {
		t.Fatalf("GetOrder: %+v %v", got, err)
	}
	if _, err := GetOrder(ctx, db, "o1", "u2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("orders are owner scoped, got %v", err)
	}
	if n, _ := CountOrders(ctx, db, "u1"); n != 1 {
		t.Fatalf("CountOrders = %d", n)
	}
	if page, _ := ListOrdersPage(ctx, db, "u1", 0, 10); len(page) != 1 {
		t.Fatalf("ListOrdersPage = %d", len(page))
	}

	if _, err := CreateReview(ctx, db, "5", "u1", "Jane", 5, "durable"); err != nil {
		t.Fatalf("CreateReview: %v", err)
	}
	if _, err := CreateReview(ctx, db, "5", "u1", "Jane", 4, "again"); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	rs, err := ListReviews(ctx, db, "5")
	if err != nil || len(rs) != 1 || rs[0].Comment != "durable" {
		t.Fatalf("ListReviews: %+v %v", rs, err)
	}
}
