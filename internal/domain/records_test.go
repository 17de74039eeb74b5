package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractLifecycle(t *testing.T) {
	now := day(2026, 3, 15)
	end := day(2026, 2, 1)
	c := &Contract{ClientID: "client-1", Title: " Retainer ", Currency: "gbp", StartDate: day(2026, 3, 1), EndDate: &end}
	var ve *ValidationError
	require.ErrorAs(t, c.Validate(), &ve)
	assert.Equal(t, "endDate", ve.Field)

	c.EndDate = nil
	require.NoError(t, c.Validate())
	assert.Equal(t, "Retainer", c.Title)
	assert.Equal(t, "GBP", c.Currency)

	c.Status = ContractDraft
	assert.ErrorIs(t, c.Complete(), ErrInvalidTransition)
	require.NoError(t, c.Activate(now))
	assert.Equal(t, &now, c.SignedAt)
	assert.ErrorIs(t, c.Activate(now), ErrInvalidTransition)
	require.NoError(t, c.Terminate(now))
	assert.Equal(t, ContractTerminated, c.Status)
	assert.ErrorIs(t, c.Complete(), ErrInvalidTransition)
}

func TestExpenseReview(t *testing.T) {
	now := time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)
	e := &Expense{Category: " Travel ", AmountCents: 4200, Currency: "usd", IncurredOn: day(2026, 3, 10)}
	require.NoError(t, e.Validate())
	assert.Equal(t, "travel", e.Category)

	e.Status = ExpensePending
	assert.True(t, IsValidation(e.Reject("admin-1", "  ", now)), "rejection needs a reason")
	require.NoError(t, e.Reject("admin-1", "duplicate receipt", now))
	assert.Equal(t, ExpenseRejected, e.Status)
	require.NotNil(t, e.ReviewedBy)
	assert.Equal(t, "admin-1", *e.ReviewedBy)
	assert.ErrorIs(t, e.Approve("admin-1", now), ErrInvalidTransition)

	bad := &Expense{Category: "yachts", AmountCents: 1, Currency: "USD", IncurredOn: now}
	assert.EqualError(t, bad.Validate(), "category: unknown category")
	bad = &Expense{Category: "meals", AmountCents: 0, Currency: "USD", IncurredOn: now}
	assert.EqualError(t, bad.Validate(), "amountCents: must be positive")
}

func TestClientValidate(t *testing.T) {
	c := &Client{Name: " Initech ", Email: " Billing@Initech.TEST "}
	require.NoError(t, c.Validate())
	assert.Equal(t, "Initech", c.Name)
	assert.Equal(t, "billing@initech.test", c.Email)

	assert.EqualError(t, (&Client{Name: "Initech", Email: "not-an-email"}).Validate(), "email: is not a valid address")
}

func TestInvitationUsable(t *testing.T) {
	now := day(2026, 3, 15)
	inv := &Invitation{Status: InvitationPending, ExpiresAt: now.Add(time.Hour)}
	assert.True(t, inv.Usable(now))
	assert.False(t, inv.Usable(now.Add(time.Hour)))
	inv.Status = InvitationRevoked
	assert.False(t, inv.Usable(now))
}

func TestPageNormalize(t *testing.T) {
	assert.Equal(t, Page{Limit: DefaultPageSize}, Page{}.Normalize())
	assert.Equal(t, Page{Limit: MaxPageSize, Offset: 0}, Page{Limit: 1000, Offset: -5}.Normalize())
}
