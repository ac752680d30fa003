package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/paylimit-gate/internal/domain"
	"go.uber.org/zap"
)

var paymentRow = []string{"id", "org_id", "amount", "state", "approved_by_finance", "requires_finance_approval", "created_at", "updated_at"}

func TestPaymentRepo_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepo(db)
	now := time.Now()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE id = $1")).
			WithArgs("p-1").
			WillReturnRows(sqlmock.NewRows(paymentRow).AddRow("p-1", "org-1", "1500.00", "draft", false, true, now, now))

		p, err := repo.Get(context.Background(), "p-1")
		require.NoError(t, err)
		assert.Equal(t, "org-1", p.OrgID)
		assert.True(t, p.Amount.Equal(decimal.NewFromInt(1500)))
		assert.Equal(t, domain.StateDraft, p.State)
		assert.True(t, p.RequiresFinanceApproval)
		assert.False(t, p.ApprovedByFinance)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE id = $1")).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(paymentRow))

		_, err := repo.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_Transitions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPaymentRepo(db)
	at := time.Now()

	t.Run("post from draft", func(t *testing.T) {
		p := &domain.Payment{ID: "p-1", State: domain.StateDraft}
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE payments SET state = $1")).
			WithArgs("posted", "p-1", "draft").
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(at))

		res, err := repo.Post(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, domain.StatePosted, res.State)
		assert.Equal(t, domain.StatePosted, p.State)
	})

	t.Run("post twice is an invalid transition", func(t *testing.T) {
		p := &domain.Payment{ID: "p-1", State: domain.StatePosted}
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE payments SET state = $1")).
			WithArgs("posted", "p-1", "draft").
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

		_, err := repo.Post(context.Background(), p)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("reset posted to draft", func(t *testing.T) {
		p := &domain.Payment{ID: "p-1", State: domain.StatePosted}
		mock.ExpectQuery(regexp.QuoteMeta("UPDATE payments SET state = $1")).
			WithArgs("draft", "p-1", "posted").
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(at))

		res, err := repo.ResetToDraft(context.Background(), p)
		require.NoError(t, err)
		assert.Equal(t, domain.StateDraft, res.State)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_UpdateAmountOnPostedPayment(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE payments")).
		WithArgs(sqlmock.AnyArg(), true, "p-1").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}))

	err = NewPaymentRepo(db).UpdateAmount(context.Background(), &domain.Payment{
		ID: "p-1", Amount: decimal.NewFromInt(10), RequiresFinanceApproval: true,
	})
	assert.ErrorIs(t, err, domain.ErrAmountLocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPolicyRepo(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewPolicyRepo(db)
	cols := []string{"org_id", "limit_enabled", "limit_amount", "updated_at"}

	t.Run("missing policy is nil without error", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM organization_policies WHERE org_id = $1")).
			WithArgs("org-x").
			WillReturnRows(sqlmock.NewRows(cols))

		p, err := repo.GetPolicy(context.Background(), "org-x")
		require.NoError(t, err)
		assert.Nil(t, p)
	})

	t.Run("get all", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta("FROM organization_policies")).
			WillReturnRows(sqlmock.NewRows(cols).
				AddRow("org-1", true, "1000", time.Now()).
				AddRow("org-2", false, "0", time.Now()))

		all, err := repo.GetAllPolicies(context.Background())
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.True(t, all[0].LimitAmount.Equal(decimal.NewFromInt(1000)))
		assert.False(t, all[1].LimitEnabled)
	})

	t.Run("upsert", func(t *testing.T) {
		p := &domain.OrganizationPolicy{OrgID: "org-1", LimitEnabled: true, LimitAmount: decimal.NewFromInt(1000)}
		at := time.Now()
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO organization_policies")).
			WithArgs("org-1", true, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(at))

		require.NoError(t, repo.UpsertPolicy(context.Background(), p))
		assert.Equal(t, at, p.UpdatedAt)
	})

	t.Run("check violation becomes validation error", func(t *testing.T) {
		p := &domain.OrganizationPolicy{OrgID: "org-1", LimitAmount: decimal.NewFromInt(-1)}
		mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO organization_policies")).
			WillReturnError(&pgconn.PgError{Code: pgCheckViolation, ConstraintName: "limit_amount_non_negative"})

		err := repo.UpsertPolicy(context.Background(), p)
		var vErr *domain.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Contains(t, vErr.Fields, "limit_amount")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetUserByUsername(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username = $1")).
		WithArgs("anna").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "username", "password_hash", "role", "scopes", "created_at", "updated_at"}).
			AddRow("u-1", "anna@example.com", "anna", "hash", "finance", []byte(`{"finance_approval": true}`), time.Now(), time.Now()))

	u, err := NewUserRepo(db).GetUserByUsername(context.Background(), "anna")
	require.NoError(t, err)
	assert.True(t, u.Scopes["finance_approval"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTxManager(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	tm := NewTxManager(db, zap.NewNop())

	t.Run("commit and row lock inside transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE id = $1 FOR UPDATE")).
			WithArgs("p-1").
			WillReturnRows(sqlmock.NewRows(paymentRow).AddRow("p-1", "org-1", "1", "draft", false, false, time.Now(), time.Now()))
		mock.ExpectCommit()

		err := tm.InTransaction(context.Background(), func(ctx context.Context) error {
			_, err := NewPaymentRepo(db).Get(ctx, "p-1")
			return err
		})
		assert.NoError(t, err)
	})

	t.Run("rollback returns original error", func(t *testing.T) {
		boom := errors.New("host rejected")
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := tm.InTransaction(context.Background(), func(ctx context.Context) error {
			return tm.InTransaction(ctx, func(context.Context) error { return boom })
		})
		assert.Equal(t, boom, err)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
