package models

import (
	"testing"
)

func TestCreateUserHashesPassword(t *testing.T) {
	u, err := CreateUser("Pat Finley", "pat@example.com", "hunter2!")
	if err != nil {
		t.Fatalf("CreateUser() error: %v", err)
	}

	if u.Password == "hunter2!" {
		t.Fatal("password stored in plaintext")
	}
	if !CheckPasswordHash("hunter2!", u.Password) {
		t.Fatal("stored hash does not verify against the original password")
	}
	if CheckPasswordHash("wrong-password", u.Password) {
		t.Fatal("wrong password verified against the stored hash")
	}
	if u.Role != ROLE_USER {
		t.Fatalf("role = %q, want %q", u.Role, ROLE_USER)
	}
	if !u.IsActive() {
		t.Fatalf("status = %q, want active", u.Status)
	}
}

func TestCreateUserRejectsInvalidEmail(t *testing.T) {
	if _, err := CreateUser("Pat Finley", "not-an-email", "hunter2!"); err == nil {
		t.Fatal("expected validation error for malformed email")
	}
}

func TestCheckPasswordHashRejectsGarbage(t *testing.T) {
	if CheckPasswordHash("anything", "not-a-bcrypt-hash") {
		t.Fatal("malformed hash must never verify")
	}
}
