package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphuraprojects/agrirent/internal/model"
	"github.com/graphuraprojects/agrirent/internal/queue"
	"github.com/graphuraprojects/agrirent/internal/repository"
)

func machineInput() MachineInput {
	return MachineInput{
		Name:               " Swaraj 744 ",
		Model:              "744 FE",
		ModelYear:          2021,
		RegistrationNumber: "mh15-ab-1234",
		FuelType:           model.FuelDiesel,
		Category:           model.CategoryTractor,
		PricePerHour:       dec("800"),
		TransportRatePerKm: dec("20"),
		Lat:                ptr(20.0),
		Lng:                ptr(73.8),
		Images:             []string{"https://img/a.jpg", " "},
		OwnershipProofURL:  ptr("https://docs/rc.pdf"),
	}
}

func TestMachineCreate_StartsPending(t *testing.T) {
	fx := newFixture()
	owner := fx.addUser(model.RoleOwner, "o@example.com")

	m, err := fx.machine.Create(context.Background(), owner.ID, machineInput())
	require.NoError(t, err)
	assert.Equal(t, "Swaraj 744", m.Name)
	assert.Equal(t, "MH15-AB-1234", m.RegistrationNumber)
	assert.Equal(t, []string{"https://img/a.jpg"}, m.Images)
	assert.Equal(t, model.ApprovalPending, m.Approval())
	assert.False(t, m.Bookable())

	_, err = fx.machine.Create(context.Background(), owner.ID, machineInput())
	assert.ErrorIs(t, err, ErrConflict, "duplicate registration number")
}

func TestMachineCreate_Validation(t *testing.T) {
	fx := newFixture()
	cases := map[string]func(*MachineInput){
		"no proof":      func(in *MachineInput) { in.OwnershipProofURL = nil },
		"blank proof":   func(in *MachineInput) { in.OwnershipProofURL = ptr("  ") },
		"no images":     func(in *MachineInput) { in.Images = nil },
		"six images":    func(in *MachineInput) { in.Images = []string{"1", "2", "3", "4", "5", "6"} },
		"bad fuel":      func(in *MachineInput) { in.FuelType = "steam" },
		"bad category":  func(in *MachineInput) { in.Category = "spaceship" },
		"zero price":    func(in *MachineInput) { in.PricePerHour = dec("0") },
		"half location": func(in *MachineInput) { in.Lng = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := machineInput()
			mutate(&in)
			_, err := fx.machine.Create(context.Background(), 1, in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestMachineApproval(t *testing.T) {
	ctx := context.Background()

	t.Run("approve without proof", func(t *testing.T) {
		fx := newFixture()
		owner := fx.addUser(model.RoleOwner, "o@example.com")
		m := fx.addMachine(owner.ID, "100", "5", 0, 0)
		m.IsApproved = false
		m.OwnershipProofURL = nil
		fx.db.machines[m.ID] = m

		_, err := fx.machine.Decide(ctx, m.ID, ApprovalInput{Action: "approve"})
		assert.ErrorIs(t, err, ErrPrecondition)
		assert.False(t, fx.db.machines[m.ID].IsApproved)
	})
	t.Run("reject needs reason", func(t *testing.T) {
		fx := newFixture()
		owner := fx.addUser(model.RoleOwner, "o@example.com")
		created, err := fx.machine.Create(ctx, owner.ID, machineInput())
		require.NoError(t, err)

		_, err = fx.machine.Decide(ctx, created.ID, ApprovalInput{Action: "reject", RejectionReason: " \t"})
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, model.ApprovalPending, fx.db.machines[created.ID].Approval())
	})
	t.Run("reject, edit, approve", func(t *testing.T) {
		fx := newFixture()
		owner := fx.addUser(model.RoleOwner, "o@example.com")
		created, err := fx.machine.Create(ctx, owner.ID, machineInput())
		require.NoError(t, err)

		rejected, err := fx.machine.Decide(ctx, created.ID, ApprovalInput{Action: "reject", RejectionReason: "blurry RC"})
		require.NoError(t, err)
		assert.Equal(t, model.ApprovalRejected, rejected.Approval())

		in := machineInput()
		in.OwnershipProofURL = ptr("https://docs/rc-clear.pdf")
		edited, err := fx.machine.Update(ctx, owner.ID, created.ID, in)
		require.NoError(t, err)
		assert.Equal(t, model.ApprovalPending, edited.Approval())

		approved, err := fx.machine.Decide(ctx, created.ID, ApprovalInput{Action: "APPROVE"})
		require.NoError(t, err)
		assert.Equal(t, model.ApprovalApproved, approved.Approval())
		assert.Nil(t, approved.RejectionReason)
		assert.True(t, approved.Bookable())

		sent := fx.notifier.ofKind(queue.KindMachineReviewed)
		require.Len(t, sent, 2)
		assert.Contains(t, sent[0].Body, "blurry RC")
	})
	t.Run("unknown action", func(t *testing.T) {
		fx := newFixture()
		owner := fx.addUser(model.RoleOwner, "o@example.com")
		m := fx.addMachine(owner.ID, "100", "5", 0, 0)
		_, err := fx.machine.Decide(ctx, m.ID, ApprovalInput{Action: "maybe"})
		assert.ErrorIs(t, err, ErrValidation)
	})
}

func TestMachineUpdateAndDelete_Ownership(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	owner := fx.addUser(model.RoleOwner, "a@example.com")
	other := fx.addUser(model.RoleOwner, "b@example.com")
	m := fx.addMachine(owner.ID, "100", "5", 0, 0)

	_, err := fx.machine.Update(ctx, other.ID, m.ID, machineInput())
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, fx.machine.Delete(ctx, actorOf(other), m.ID), ErrForbidden)

	fx.db.bookings[999] = model.Booking{ID: 999, MachineID: m.ID}
	assert.ErrorIs(t, fx.machine.Delete(ctx, actorOf(owner), m.ID), ErrConflict)

	delete(fx.db.bookings, 999)
	require.NoError(t, fx.machine.Delete(ctx, actorOf(owner), m.ID))
	_, err = fx.machine.Public(ctx, m.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMachineUpdate_KeepsOwnershipProof(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	owner := fx.addUser(model.RoleOwner, "a@example.com")
	m := fx.addMachine(owner.ID, "100", "5", 0, 0)
	require.True(t, m.Bookable())

	for name, proof := range map[string]*string{"omitted": nil, "blank": ptr("  ")} {
		t.Run(name, func(t *testing.T) {
			in := machineInput()
			in.OwnershipProofURL = proof
			got, err := fx.machine.Update(ctx, owner.ID, m.ID, in)
			require.NoError(t, err)
			assert.True(t, got.HasOwnershipProof())
			assert.Equal(t, "https://docs/proof.pdf", *got.OwnershipProofURL)
			assert.True(t, got.Bookable())
		})
	}

	in := machineInput()
	in.OwnershipProofURL = ptr("https://docs/new-rc.pdf")
	got, err := fx.machine.Update(ctx, owner.ID, m.ID, in)
	require.NoError(t, err)
	assert.Equal(t, "https://docs/new-rc.pdf", *got.OwnershipProofURL)
}

func TestMachineBrowse_OnlyBookable(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	owner := fx.addUser(model.RoleOwner, "o@example.com")
	visible := fx.addMachine(owner.ID, "100", "5", 0, 0)
	hidden := fx.addMachine(owner.ID, "100", "5", 0, 0)
	h := fx.db.machines[hidden.ID]
	h.IsApproved = false
	fx.db.machines[h.ID] = h

	got, err := fx.machine.Browse(ctx, repository.MachineFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, visible.ID, got[0].ID)

	_, err = fx.machine.Public(ctx, hidden.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = fx.machine.Browse(ctx, repository.MachineFilter{Category: "spaceship"})
	assert.ErrorIs(t, err, ErrValidation)

	pending, err := fx.machine.PendingApproval(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, hidden.ID, pending[0].ID)
}

func TestMachineAvailability(t *testing.T) {
	fx := newFixture()
	ctx := context.Background()
	owner := fx.addUser(model.RoleOwner, "o@example.com")
	other := fx.addUser(model.RoleOwner, "x@example.com")
	m := fx.addMachine(owner.ID, "100", "5", 0, 0)

	a, err := fx.machine.Availability(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, a.IsAvailable, "falls back to the listing flag")

	_, err = fx.machine.SetAvailability(ctx, other.ID, m.ID, AvailabilityInput{IsAvailable: false})
	assert.ErrorIs(t, err, ErrForbidden)

	a, err = fx.machine.SetAvailability(ctx, owner.ID, m.ID, AvailabilityInput{IsAvailable: false, Reason: "servicing"})
	require.NoError(t, err)
	assert.False(t, a.IsAvailable)
	assert.Equal(t, "servicing", a.Reason)
	assert.False(t, fx.db.machines[m.ID].Bookable())
}
