package credit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mvh70/teamshots-sub010/internal/entity"
)

type fakeStore struct {
	persons      map[string]*entity.DbPerson
	teams        map[string]*entity.DbTeam
	balances     map[string]int64
	reservations map[string]*entity.DbReservation

	failCreateReservation bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		persons:      make(map[string]*entity.DbPerson),
		teams:        make(map[string]*entity.DbTeam),
		balances:     make(map[string]int64),
		reservations: make(map[string]*entity.DbReservation),
	}
}

func accountKey(scope entity.CreditSource, ownerID string) string {
	return string(scope) + "/" + ownerID
}

func (s *fakeStore) GetPerson(_ context.Context, id string) (*entity.DbPerson, error) {
	return s.persons[id], nil
}

func (s *fakeStore) GetTeam(_ context.Context, id string) (*entity.DbTeam, error) {
	return s.teams[id], nil
}

func (s *fakeStore) GetCreditAccount(_ context.Context, scope entity.CreditSource, ownerID string) (*entity.DbCreditAccount, error) {
	balance, ok := s.balances[accountKey(scope, ownerID)]
	if !ok {
		return nil, nil
	}
	return &entity.DbCreditAccount{Scope: scope, OwnerID: ownerID, Balance: balance}, nil
}

func (s *fakeStore) DebitCredits(_ context.Context, scope entity.CreditSource, ownerID string, amount int64) (bool, error) {
	key := accountKey(scope, ownerID)
	if s.balances[key] < amount {
		return false, nil
	}
	s.balances[key] -= amount
	return true, nil
}

func (s *fakeStore) RefundCredits(_ context.Context, scope entity.CreditSource, ownerID string, amount int64) error {
	s.balances[accountKey(scope, ownerID)] += amount
	return nil
}

func (s *fakeStore) CreateReservation(_ context.Context, reservation *entity.DbReservation) error {
	if s.failCreateReservation {
		return fmt.Errorf("simulated insert failure")
	}
	clone := *reservation
	s.reservations[reservation.ID] = &clone
	return nil
}

func (s *fakeStore) GetReservation(_ context.Context, id string) (*entity.DbReservation, error) {
	reservation, ok := s.reservations[id]
	if !ok {
		return nil, fmt.Errorf("reservation %s not found", id)
	}
	clone := *reservation
	return &clone, nil
}

func (s *fakeStore) TransitionReservation(_ context.Context, id string, from, to entity.ReservationState) (bool, error) {
	reservation, ok := s.reservations[id]
	if !ok || reservation.State != from {
		return false, nil
	}
	reservation.State = to
	return true, nil
}

func (s *fakeStore) ListExpiredPendingReservations(_ context.Context, olderThan time.Time, limit int) ([]entity.DbReservation, error) {
	var out []entity.DbReservation
	for _, reservation := range s.reservations {
		if reservation.State == entity.ReservationPending && reservation.CreatedAt.Before(olderThan) {
			out = append(out, *reservation)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func seedPerson(store *fakeStore, id, teamID string) {
	store.persons[id] = &entity.DbPerson{ID: id, TeamID: teamID, IsActive: true}
}

func TestDetermineCreditSource(t *testing.T) {
	tests := []struct {
		name       string
		teamID     string
		allocation int64
		wantScope  entity.CreditSource
		wantOwner  string
	}{
		{name: "individual without team", teamID: "", allocation: 0, wantScope: entity.SourceIndividual, wantOwner: "p1"},
		{name: "team member without allocation", teamID: "t1", allocation: 0, wantScope: entity.SourceTeam, wantOwner: "t1"},
		{name: "team member with allocation", teamID: "t1", allocation: 10, wantScope: entity.SourcePersonAllocation, wantOwner: "p1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			seedPerson(store, "p1", tt.teamID)
			if tt.allocation > 0 {
				store.balances[accountKey(entity.SourcePersonAllocation, "p1")] = tt.allocation
			}

			ledger, err := NewLedger(store)
			if err != nil {
				t.Fatalf("NewLedger: %v", err)
			}

			source, err := ledger.DetermineCreditSource(context.Background(), "p1")
			if err != nil {
				t.Fatalf("DetermineCreditSource: %v", err)
			}
			if source.Scope != tt.wantScope {
				t.Errorf("scope = %s, want %s", source.Scope, tt.wantScope)
			}
			if source.OwnerID != tt.wantOwner {
				t.Errorf("owner = %s, want %s", source.OwnerID, tt.wantOwner)
			}
			if source.Reason == "" {
				t.Error("reason should not be empty")
			}
		})
	}
}

func TestDetermineCreditSourceUnknownPerson(t *testing.T) {
	ledger, _ := NewLedger(newFakeStore())

	if _, err := ledger.DetermineCreditSource(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for unknown person")
	}
}

func TestReserveDecrementsBalance(t *testing.T) {
	store := newFakeStore()
	seedPerson(store, "p1", "")
	store.balances[accountKey(entity.SourceIndividual, "p1")] = 10

	ledger, _ := NewLedger(store)
	reservationID, err := ledger.Reserve(context.Background(), ReserveParams{
		PersonID:     "p1",
		GenerationID: "g1",
		Amount:       5,
	})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if reservationID == "" {
		t.Fatal("expected non-empty reservation id")
	}

	if got := store.balances[accountKey(entity.SourceIndividual, "p1")]; got != 5 {
		t.Errorf("balance after reserve = %d, want 5", got)
	}
	reservation := store.reservations[reservationID]
	if reservation == nil {
		t.Fatal("reservation not persisted")
	}
	if reservation.State != entity.ReservationPending {
		t.Errorf("state = %s, want pending", reservation.State)
	}
	if reservation.Amount != 5 || reservation.GenerationID != "g1" {
		t.Errorf("unexpected reservation payload: %+v", reservation)
	}
}

func TestReserveInsufficientCredits(t *testing.T) {
	store := newFakeStore()
	seedPerson(store, "p1", "")
	store.balances[accountKey(entity.SourceIndividual, "p1")] = 3

	ledger, _ := NewLedger(store)
	_, err := ledger.Reserve(context.Background(), ReserveParams{PersonID: "p1", GenerationID: "g1", Amount: 5})
	if err == nil {
		t.Fatal("expected insufficient credits error")
	}

	insufficient, ok := AsInsufficientCredits(err)
	if !ok {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if insufficient.Required != 5 || insufficient.Available != 3 {
		t.Errorf("required/available = %d/%d, want 5/3", insufficient.Required, insufficient.Available)
	}
	if insufficient.Reason == "" {
		t.Error("reason should not be empty")
	}

	// 余额不足时不得扣减。
	if got := store.balances[accountKey(entity.SourceIndividual, "p1")]; got != 3 {
		t.Errorf("balance = %d, want 3", got)
	}
}

func TestReserveSourceMismatch(t *testing.T) {
	store := newFakeStore()
	seedPerson(store, "p1", "t1")
	store.balances[accountKey(entity.SourceTeam, "t1")] = 10

	ledger, _ := NewLedger(store)
	_, err := ledger.Reserve(context.Background(), ReserveParams{
		PersonID:       "p1",
		GenerationID:   "g1",
		Amount:         5,
		ExpectedSource: entity.SourceIndividual,
	})
	if !errors.Is(err, ErrSourceMismatch) {
		t.Fatalf("expected ErrSourceMismatch, got %v", err)
	}
	if got := store.balances[accountKey(entity.SourceTeam, "t1")]; got != 10 {
		t.Errorf("balance = %d, want 10", got)
	}
}

func TestReserveRefundsWhenInsertFails(t *testing.T) {
	store := newFakeStore()
	seedPerson(store, "p1", "")
	store.balances[accountKey(entity.SourceIndividual, "p1")] = 10
	store.failCreateReservation = true

	ledger, _ := NewLedger(store)
	if _, err := ledger.Reserve(context.Background(), ReserveParams{PersonID: "p1", GenerationID: "g1", Amount: 5}); err == nil {
		t.Fatal("expected error when reservation insert fails")
	}

	if got := store.balances[accountKey(entity.SourceIndividual, "p1")]; got != 10 {
		t.Errorf("balance = %d, want 10 after compensating refund", got)
	}
}

func TestCommitAndRollbackLifecycle(t *testing.T) {
	store := newFakeStore()
	seedPerson(store, "p1", "")
	store.balances[accountKey(entity.SourceIndividual, "p1")] = 10

	ledger, _ := NewLedger(store)
	ctx := context.Background()

	reservationID, err := ledger.Reserve(ctx, ReserveParams{PersonID: "p1", GenerationID: "g1", Amount: 5})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if err := ledger.Commit(ctx, reservationID); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if got := store.reservations[reservationID].State; got != entity.ReservationCommitted {
		t.Errorf("state = %s, want committed", got)
	}

	// rollback-after-commit 是空操作，不得恢复余额。
	if err := ledger.Rollback(ctx, reservationID); err != nil {
		t.Fatalf("Rollback after commit: %v", err)
	}
	if got := store.balances[accountKey(entity.SourceIndividual, "p1")]; got != 5 {
		t.Errorf("balance = %d, want 5", got)
	}
	if got := store.reservations[reservationID].State; got != entity.ReservationCommitted {
		t.Errorf("state = %s, want committed after no-op rollback", got)
	}
}

func TestRollbackIsIdempotent(t *testing.T) {
	store := newFakeStore()
	seedPerson(store, "p1", "")
	store.balances[accountKey(entity.SourceIndividual, "p1")] = 10

	ledger, _ := NewLedger(store)
	ctx := context.Background()

	reservationID, err := ledger.Reserve(ctx, ReserveParams{PersonID: "p1", GenerationID: "g1", Amount: 5})
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	if err := ledger.Rollback(ctx, reservationID); err != nil {
		t.Fatalf("first Rollback: %v", err)
	}
	if err := ledger.Rollback(ctx, reservationID); err != nil {
		t.Fatalf("second Rollback: %v", err)
	}

	if got := store.balances[accountKey(entity.SourceIndividual, "p1")]; got != 10 {
		t.Errorf("balance = %d, want 10 (refund exactly once)", got)
	}

	// commit-after-rollback 也是空操作。
	if err := ledger.Commit(ctx, reservationID); err != nil {
		t.Fatalf("Commit after rollback: %v", err)
	}
	if got := store.reservations[reservationID].State; got != entity.ReservationRolledBack {
		t.Errorf("state = %s, want rolled-back", got)
	}
}

func TestRollbackExpired(t *testing.T) {
	store := newFakeStore()
	seedPerson(store, "p1", "")
	store.balances[accountKey(entity.SourceIndividual, "p1")] = 0

	old := time.Now().Add(-time.Hour)
	store.reservations["r-old"] = &entity.DbReservation{
		ID:        "r-old",
		Scope:     entity.SourceIndividual,
		OwnerID:   "p1",
		PersonID:  "p1",
		Amount:    5,
		State:     entity.ReservationPending,
		CreatedAt: old,
	}
	store.reservations["r-fresh"] = &entity.DbReservation{
		ID:        "r-fresh",
		Scope:     entity.SourceIndividual,
		OwnerID:   "p1",
		PersonID:  "p1",
		Amount:    5,
		State:     entity.ReservationPending,
		CreatedAt: time.Now(),
	}

	ledger, _ := NewLedger(store)
	rolled, err := ledger.RollbackExpired(context.Background(), time.Now().Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("RollbackExpired: %v", err)
	}
	if rolled != 1 {
		t.Errorf("rolled = %d, want 1", rolled)
	}
	if got := store.reservations["r-old"].State; got != entity.ReservationRolledBack {
		t.Errorf("old reservation state = %s, want rolled-back", got)
	}
	if got := store.reservations["r-fresh"].State; got != entity.ReservationPending {
		t.Errorf("fresh reservation state = %s, want pending", got)
	}
	if got := store.balances[accountKey(entity.SourceIndividual, "p1")]; got != 5 {
		t.Errorf("balance = %d, want 5", got)
	}
}

func TestCanAfford(t *testing.T) {
	store := newFakeStore()
	store.balances[accountKey(entity.SourceTeam, "t1")] = 7

	ledger, _ := NewLedger(store)
	ok, available, err := ledger.CanAfford(context.Background(), entity.SourceTeam, "t1", 5)
	if err != nil {
		t.Fatalf("CanAfford: %v", err)
	}
	if !ok || available != 7 {
		t.Errorf("got ok=%v available=%d, want true/7", ok, available)
	}

	ok, _, err = ledger.CanAfford(context.Background(), entity.SourceTeam, "t1", 8)
	if err != nil {
		t.Fatalf("CanAfford: %v", err)
	}
	if ok {
		t.Error("expected CanAfford to be false for 8 > 7")
	}
}

// 从未入账的账户等同于零余额，不得让查询方崩溃。
func TestCanAffordUnseededAccount(t *testing.T) {
	ledger, _ := NewLedger(newFakeStore())

	ok, available, err := ledger.CanAfford(context.Background(), entity.SourceIndividual, "p-new", 0)
	if err != nil {
		t.Fatalf("CanAfford: %v", err)
	}
	if !ok || available != 0 {
		t.Errorf("got ok=%v available=%d, want true/0", ok, available)
	}

	ok, available, err = ledger.CanAfford(context.Background(), entity.SourceIndividual, "p-new", 1)
	if err != nil {
		t.Fatalf("CanAfford: %v", err)
	}
	if ok || available != 0 {
		t.Errorf("got ok=%v available=%d, want false/0", ok, available)
	}
}

func TestReserveUnfundedAccountReportsZeroAvailable(t *testing.T) {
	store := newFakeStore()
	seedPerson(store, "p1", "")

	ledger, _ := NewLedger(store)
	_, err := ledger.Reserve(context.Background(), ReserveParams{
		PersonID:     "p1",
		GenerationID: "g1",
		Amount:       5,
	})

	detail, ok := AsInsufficientCredits(err)
	if !ok {
		t.Fatalf("expected insufficient credits, got %v", err)
	}
	if detail.Required != 5 || detail.Available != 0 {
		t.Errorf("got required=%d available=%d, want 5/0", detail.Required, detail.Available)
	}
}
