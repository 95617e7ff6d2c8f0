package service_test

import (
	"context"
	"testing"

	"github.com/portview/portfolio-backend/internal/testutil"
)

func TestRefreshService_RefreshAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	v := testutil.NewTestVault(t)
	mock := testutil.NewMockPlaidClient()
	refreshService := testutil.NewTestRefreshService(t, db, v, mock)

	ciphertext, version, err := v.Encrypt("access-sandbox-test-token")
	if err != nil {
		t.Fatalf("Encrypt() failed: %v", err)
	}

	// One item per user so the parallel syncs never contend on the same
	// (user, external account) upsert key.
	testutil.NewLinkedItem("user-1").WithItemID("item-1").WithCredential(ciphertext, version).Build(t, db)
	testutil.NewLinkedItem("user-2").WithItemID("item-2").WithCredential(ciphertext, version).Build(t, db)
	testutil.NewLinkedItem("user-3").WithItemID("item-3").WithCredential(ciphertext, version).Build(t, db)

	if err := refreshService.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll() failed: %v", err)
	}

	// Every item fetched its snapshot and stored its own pair of accounts.
	if mock.AccountsCalls != 3 {
		t.Errorf("GetAccounts calls = %d, want 3", mock.AccountsCalls)
	}
	testutil.AssertRowCount(t, db, "account", 6)
}

func TestRefreshService_RefreshAll_FailuresDoNotStopSiblings(t *testing.T) {
	db := testutil.SetupTestDB(t)
	v := testutil.NewTestVault(t)
	mock := testutil.NewMockPlaidClient()
	refreshService := testutil.NewTestRefreshService(t, db, v, mock)

	goodCipher, version, err := v.Encrypt("access-sandbox-test-token")
	if err != nil {
		t.Fatalf("Encrypt() failed: %v", err)
	}

	// One item's credential was sealed under a rotated-away key; the other
	// is healthy.
	testutil.NewLinkedItem("user-1").WithItemID("item-broken").WithCredential(goodCipher, 9).Build(t, db)
	testutil.NewLinkedItem("user-2").WithItemID("item-good").WithCredential(goodCipher, version).Build(t, db)

	err = refreshService.RefreshAll(context.Background())
	if err == nil {
		t.Fatal("RefreshAll() = nil, want the broken item's failure reported")
	}

	// The healthy item synced regardless.
	var count int
	//nolint:errcheck // Count query over a known table
	db.QueryRow(`SELECT COUNT(*) FROM account WHERE user_id = 'user-2'`).Scan(&count)
	if count != 2 {
		t.Errorf("user-2 accounts = %d, want 2", count)
	}
}
