package users

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

var userCols = []string{
	"id", "name", "email", "password_hash", "role", "status",
	"failed_logins", "last_failed_login_at", "locked_until",
	"email_verification_hash", "email_verification_expires_at", "email_verified_at",
	"created_at", "updated_at",
}

var created = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func aliceRow() *sqlmock.Rows {
	return sqlmock.NewRows(userCols).AddRow(
		"u-1", "Alice", "alice@example.com", "$argon2id$digest", "USER", "ACTIVE",
		0, nil, nil,
		nil, nil, nil,
		created, nil,
	)
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^\s*INSERT\s+INTO\s+users\s*\(name,\s*email,\s*password_hash,\s*role,\s*status\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s*RETURNING\s+id,`
	mock.ExpectQuery(q).
		WithArgs("Alice", "alice@example.com", "$argon2id$digest", "USER", "ACTIVE").
		WillReturnRows(aliceRow())

	got, err := repo.Create(context.Background(), &models.User{
		Name: "Alice", Email: "alice@example.com", PasswordHash: "$argon2id$digest",
		Role: models.RoleUser, Status: models.StatusActive,
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if got.ID != "u-1" || got.Role != models.RoleUser || !got.CreatedAt.Equal(created) {
		t.Fatalf("unexpected user: %+v", got)
	}
	if got.LockedUntil != nil || got.EmailVerifiedAt != nil {
		t.Fatalf("nullable columns should scan as nil: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_UniqueViolation(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_lower_idx"})

	_, err := repo.Create(context.Background(), &models.User{Email: "alice@example.com"})
	if !errors.Is(err, common.ErrEmailInUse) {
		t.Fatalf("want common.ErrEmailInUse, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+users`).
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.User{Email: "alice@example.com"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByEmail_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+id,.*FROM\s+users\s+WHERE\s+lower\(email\)\s*=\s*lower\(\$1\)$`
	mock.ExpectQuery(q).WithArgs("ALICE@example.com").WillReturnRows(aliceRow())

	got, err := repo.FindByEmail(context.Background(), "ALICE@example.com")
	if err != nil {
		t.Fatalf("FindByEmail error: %v", err)
	}
	if got.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", got)
	}
}

func TestFindByEmail_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+lower\(email\)`).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "ghost@example.com")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestFindByID_LockoutColumns(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	locked := created.Add(15 * time.Minute)
	rows := sqlmock.NewRows(userCols).AddRow(
		"u-1", "Alice", "alice@example.com", "h", "ADMIN", "SUSPENDED",
		5, created, locked,
		"vhash", locked, nil,
		created, created,
	)
	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id\s*=\s*\$1$`).WithArgs("u-1").WillReturnRows(rows)

	got, err := repo.FindByID(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("FindByID error: %v", err)
	}
	if got.FailedLogins != 5 || got.LockedUntil == nil || !got.LockedUntil.Equal(locked) {
		t.Fatalf("unexpected failures: %+v", got.LoginFailures)
	}
	if got.EmailVerificationHash == nil || *got.EmailVerificationHash != "vhash" {
		t.Fatalf("unexpected verification hash: %v", got.EmailVerificationHash)
	}
	if got.Role != models.RoleAdmin || got.Status != models.StatusSuspended {
		t.Fatalf("unexpected role/status: %s/%s", got.Role, got.Status)
	}
}

func TestList_FiltersAndPaging(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`(?s)^SELECT\s+COUNT\(\*\)\s+FROM\s+users\s+WHERE\s+\(lower\(name\)\s+LIKE\s+\$1\s+OR\s+lower\(email\)\s+LIKE\s+\$1\)\s+AND\s+status\s*=\s*\$2$`).
		WithArgs("%ali%", "ACTIVE").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))
	mock.ExpectQuery(`(?s)FROM\s+users\s+WHERE.*AND\s+status\s*=\s*\$2\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+\$3\s+OFFSET\s+\$4$`).
		WithArgs("%ali%", "ACTIVE", 10, 10).
		WillReturnRows(aliceRow())

	got, total, err := repo.List(context.Background(), models.UserFilter{
		Page: 2, PageSize: 10, Search: "ALI", Status: models.StatusActive,
	})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if total != 11 || len(got) != 1 {
		t.Fatalf("unexpected result: total=%d len=%d", total, len(got))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestList_NoFilter(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`^SELECT\s+COUNT\(\*\)\s+FROM\s+users$`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`LIMIT\s+\$1\s+OFFSET\s+\$2$`).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows(userCols))

	got, total, err := repo.List(context.Background(), models.UserFilter{Page: 1, PageSize: 20})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if total != 0 || len(got) != 0 {
		t.Fatalf("expected empty page, got total=%d len=%d", total, len(got))
	}
}

func TestUpdate_SetsOnlyGivenFields(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	name := "Alicia"
	role := models.RoleAdmin
	q := `(?s)^UPDATE\s+users\s+SET\s+updated_at\s*=\s*\$2,\s*name\s*=\s*\$3,\s*role\s*=\s*\$4\s+WHERE\s+id\s*=\s*\$1\s+RETURNING\s+id,`
	mock.ExpectQuery(q).
		WithArgs("u-1", created, "Alicia", "ADMIN").
		WillReturnRows(aliceRow())

	if _, err := repo.Update(context.Background(), "u-1", models.UserUpdate{Name: &name, Role: &role}, created); err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`UPDATE\s+users`).WillReturnError(sql.ErrNoRows)

	_, err := repo.Update(context.Background(), "missing", models.UserUpdate{}, created)
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)UPDATE\s+users\s+SET\s+password_hash\s*=\s*\$2,\s*updated_at\s*=\s*\$3\s+WHERE\s+id\s*=\s*\$1`
	mock.ExpectExec(q).WithArgs("u-1", "new-hash", created).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("u-2", "new-hash", created).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdatePassword(context.Background(), "u-1", "new-hash", created); err != nil {
		t.Fatalf("UpdatePassword error: %v", err)
	}
	if err := repo.UpdatePassword(context.Background(), "u-2", "new-hash", created); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestMalformedIDIsNotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	badUUID := &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "missing"`}

	mock.ExpectQuery(`FROM\s+users\s+WHERE\s+id`).WithArgs("missing").WillReturnError(badUUID)
	if _, err := repo.FindByID(context.Background(), "missing"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("FindByID: want common.ErrorNotFound, got %v", err)
	}

	mock.ExpectExec(`UPDATE\s+users`).WithArgs("missing", created).WillReturnError(badUUID)
	if err := repo.SoftDelete(context.Background(), "missing", created); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("SoftDelete: want common.ErrorNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSoftDelete(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+status\s*=\s*'DELETED'`).
		WithArgs("u-1", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SoftDelete(context.Background(), "u-1", created); err != nil {
		t.Fatalf("SoftDelete error: %v", err)
	}
}

func TestGetFailuresForUpdate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)SELECT\s+failed_logins,\s*last_failed_login_at,\s*locked_until\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s+FOR\s+UPDATE`
	mock.ExpectQuery(q).WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"failed_logins", "last_failed_login_at", "locked_until"}).
			AddRow(3, created, nil))
	mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	f, err := repo.GetFailuresForUpdate(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("GetFailuresForUpdate error: %v", err)
	}
	if f.FailedLogins != 3 || f.LastFailedLoginAt == nil || f.LockedUntil != nil {
		t.Fatalf("unexpected failures: %+v", f)
	}

	if _, err := repo.GetFailuresForUpdate(context.Background(), "ghost"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
}

func TestSaveAndResetFailures(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	until := created.Add(15 * time.Minute)
	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+failed_logins\s*=\s*\$2,\s*last_failed_login_at\s*=\s*\$3,\s*locked_until\s*=\s*\$4`).
		WithArgs("u-1", 5, created, until).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`(?s)UPDATE\s+users\s+SET\s+failed_logins\s*=\s*0,\s*last_failed_login_at\s*=\s*NULL,\s*locked_until\s*=\s*NULL`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.SaveFailures(context.Background(), "u-1", models.LoginFailures{
		FailedLogins: 5, LastFailedLoginAt: &created, LockedUntil: &until,
	})
	if err != nil {
		t.Fatalf("SaveFailures error: %v", err)
	}
	if err := repo.ResetFailures(context.Background(), "u-1"); err != nil {
		t.Fatalf("ResetFailures error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestEmailVerificationLifecycle(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := created.Add(24 * time.Hour)
	mock.ExpectExec(`(?s)SET\s+email_verification_hash\s*=\s*\$2,\s*email_verification_expires_at\s*=\s*\$3`).
		WithArgs("u-1", "vhash", exp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`(?s)WHERE\s+email_verification_hash\s*=\s*\$1\s+FOR\s+UPDATE$`).
		WithArgs("vhash").
		WillReturnRows(aliceRow())
	mock.ExpectExec(`(?s)SET\s+email_verified_at\s*=\s*\$2,\s*email_verification_hash\s*=\s*NULL`).
		WithArgs("u-1", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	if err := repo.SetEmailVerification(ctx, "u-1", "vhash", exp); err != nil {
		t.Fatalf("SetEmailVerification error: %v", err)
	}
	u, err := repo.FindByVerificationHashForUpdate(ctx, "vhash")
	if err != nil || u.ID != "u-1" {
		t.Fatalf("FindByVerificationHashForUpdate: %v %+v", err, u)
	}
	if err := repo.MarkEmailVerified(ctx, "u-1", created); err != nil {
		t.Fatalf("MarkEmailVerified error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestExec_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE\s+users`).WillReturnError(errors.New("db err"))

	err := repo.ResetFailures(context.Background(), "u-1")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}
