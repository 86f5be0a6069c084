package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/edustack/edustack/internal/auth"
	"github.com/edustack/edustack/internal/profile"
)

var userColumnNames = []string{
	"id", "email", "password_hash", "role", "first_name", "last_name",
	"phone_number", "avatar_url", "school_id", "is_active", "metadata", "created_at", "updated_at",
}

func strPtr(s string) *string { return &s }

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("creating pgxmock pool: %v", err)
	}
	t.Cleanup(mock.Close)
	return mock
}

func TestStore_GetProfile(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	var nilString *string

	rows := mock.NewRows(userColumnNames).AddRow(
		"u1", "t@school.edu", "hash", "teacher", "Amina", "Otieno",
		strPtr("+254700000000"), nilString, strPtr("school-1"), true,
		[]byte(`{"role":"teacher","first_name":"Amina"}`), now, now,
	)
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(rows)

	u, err := store.GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != auth.RoleTeacher {
		t.Errorf("expected role teacher, got %q", u.Role)
	}
	if u.FirstName != "Amina" || u.LastName != "Otieno" {
		t.Errorf("unexpected name %q %q", u.FirstName, u.LastName)
	}
	if u.PhoneNumber == nil || *u.PhoneNumber != "+254700000000" {
		t.Errorf("unexpected phone number %v", u.PhoneNumber)
	}
	if u.AvatarURL != nil {
		t.Errorf("expected no avatar, got %v", *u.AvatarURL)
	}
	if !u.CreatedAt.Equal(now) {
		t.Errorf("expected created at %v, got %v", now, u.CreatedAt)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_GetProfileNotFound(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := store.GetProfile(context.Background(), "missing")
	if !errors.Is(err, profile.ErrNotFound) {
		t.Errorf("expected profile.ErrNotFound, got %v", err)
	}
}

func TestStore_MalformedIDIsNotFound(t *testing.T) {
	malformed := &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "not-a-uuid"`}

	t.Run("get by id", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
			WithArgs("not-a-uuid").
			WillReturnError(malformed)

		_, err := NewStore(mock).GetByID(context.Background(), "not-a-uuid")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("get profile", func(t *testing.T) {
		mock := newMock(t)
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
			WithArgs("not-a-uuid").
			WillReturnError(malformed)

		_, err := NewStore(mock).GetProfile(context.Background(), "not-a-uuid")
		if !errors.Is(err, profile.ErrNotFound) {
			t.Errorf("expected profile.ErrNotFound, got %v", err)
		}
	})
}

func TestStore_GetProfileUnknownRole(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)
	now := time.Now()
	var nilString *string

	rows := mock.NewRows(userColumnNames).AddRow(
		"u1", "x@school.edu", "hash", "principal", "X", "Y",
		nilString, nilString, nilString, true, []byte(nil), now, now,
	)
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(rows)

	u, err := store.GetProfile(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != auth.DefaultRole {
		t.Errorf("expected default role, got %q", u.Role)
	}
}

func TestStore_GetProfileQueryError(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnError(errors.New("connection reset"))

	_, err := store.GetProfile(context.Background(), "u1")
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, profile.ErrNotFound) {
		t.Error("query failure must not be reported as not found")
	}
}

func TestStore_Create(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)
	now := time.Now()
	var nilString *string

	rows := mock.NewRows(userColumnNames).AddRow(
		"u1", "new@school.edu", "hash", "school-admin", "New", "Admin",
		nilString, nilString, nilString, true, []byte(`{"role":"school-admin"}`), now, now,
	)
	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs("new@school.edu", pgxmock.AnyArg(), "school-admin", "New", "Admin", nilString, nilString, pgxmock.AnyArg()).
		WillReturnRows(rows)

	u, err := store.Create(context.Background(), CreateUserInput{
		Email:     "new@school.edu",
		Password:  "secret123",
		Role:      "Head Teacher",
		FirstName: "New",
		LastName:  "Admin",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != "school-admin" {
		t.Errorf("expected role school-admin, got %q", u.Role)
	}
	if u.Metadata.Role == nil || *u.Metadata.Role != "school-admin" {
		t.Errorf("expected metadata role, got %v", u.Metadata.Role)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestStore_CreateDuplicateEmail(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectQuery(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := store.Create(context.Background(), CreateUserInput{Email: "taken@school.edu", Password: "secret123"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestStore_CreateSession(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO sessions`).
		WithArgs(pgxmock.AnyArg(), "u1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(mock.NewRows([]string{"token_hash", "user_id", "created_at", "expires_at"}).
			AddRow("hash", "u1", now, now.Add(time.Hour)))

	token, sess, err := store.CreateSession(context.Background(), "u1", time.Hour)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char hex token, got %d chars", len(token))
	}
	if sess.UserID != "u1" {
		t.Errorf("expected user u1, got %q", sess.UserID)
	}
}

func TestStore_ConsumeSession(t *testing.T) {
	t.Run("live token", func(t *testing.T) {
		mock := newMock(t)
		store := NewStore(mock)

		mock.ExpectQuery(`DELETE FROM sessions WHERE token_hash = \$1`).
			WithArgs(hashToken("plain")).
			WillReturnRows(mock.NewRows([]string{"user_id"}).AddRow("u1"))

		id, err := store.ConsumeSession(context.Background(), "plain")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if id != "u1" {
			t.Errorf("expected u1, got %q", id)
		}
	})

	t.Run("unknown or expired token", func(t *testing.T) {
		mock := newMock(t)
		store := NewStore(mock)

		mock.ExpectQuery(`DELETE FROM sessions WHERE token_hash = \$1`).
			WithArgs(hashToken("stale")).
			WillReturnError(pgx.ErrNoRows)

		_, err := store.ConsumeSession(context.Background(), "stale")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestStore_DeleteUserSessions(t *testing.T) {
	mock := newMock(t)
	store := NewStore(mock)

	mock.ExpectExec(`DELETE FROM sessions WHERE user_id = \$1`).
		WithArgs("u1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := store.DeleteUserSessions(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows, got %d", n)
	}
}

func TestCheckPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("Admin123!@#"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	u := &User{PasswordHash: string(hash)}

	if !CheckPassword(u, "Admin123!@#") {
		t.Error("expected password to match")
	}
	if CheckPassword(u, "wrong") {
		t.Error("expected wrong password to fail")
	}
}

func TestUser_IdentityAndProfile(t *testing.T) {
	u := &User{
		ID:        "u1",
		Email:     "p@school.edu",
		Role:      "parent",
		FirstName: "Baraka",
		LastName:  "Njoroge",
		IsActive:  true,
		Metadata:  auth.Metadata{Role: strPtr("parent"), FirstNameSnake: strPtr("Baraka")},
	}

	id := u.Identity()
	if id.ID != "u1" || id.Email != "p@school.edu" {
		t.Errorf("unexpected identity %+v", id)
	}
	mapped := auth.MapIdentity(id, time.Now())
	if mapped.Role != auth.RoleParent || mapped.FirstName != "Baraka" {
		t.Errorf("unexpected mapped user %+v", mapped)
	}

	p := u.Profile()
	if p.LastName != "Njoroge" || p.Role != auth.RoleParent {
		t.Errorf("unexpected profile %+v", p)
	}
}
