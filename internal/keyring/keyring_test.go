package keyring

import (
	"testing"

	gokeyring "github.com/zalando/go-keyring"
)

func TestSetAndGetConnectionString(t *testing.T) {
	gokeyring.MockInit()

	pg := "postgres://testuser@localhost:5432/testdb?sslmode=disable"
	rd := "redis://:secret@localhost:6379/0"

	if err := SetConnectionString(BackendPostgres, pg); err != nil {
		t.Fatalf("SetConnectionString(postgres) failed: %v", err)
	}
	if err := SetConnectionString(BackendRedis, rd); err != nil {
		t.Fatalf("SetConnectionString(redis) failed: %v", err)
	}

	tests := []struct {
		backend Backend
		want    string
	}{
		{BackendPostgres, pg},
		{BackendRedis, rd},
	}
	for _, tt := range tests {
		got, err := GetConnectionString(tt.backend)
		if err != nil {
			t.Fatalf("GetConnectionString(%s) failed: %v", tt.backend, err)
		}
		if got != tt.want {
			t.Errorf("GetConnectionString(%s) = %q, want %q", tt.backend, got, tt.want)
		}
	}
}

func TestSetConnectionStringEmpty(t *testing.T) {
	gokeyring.MockInit()

	if err := SetConnectionString(BackendPostgres, ""); err == nil {
		t.Error("SetConnectionString with empty value should return an error")
	}
}

func TestGetConnectionStringNotFound(t *testing.T) {
	gokeyring.MockInit()
	_ = DeleteConnectionString(BackendRedis)

	_, err := GetConnectionString(BackendRedis)
	if err != ErrNotFound {
		t.Errorf("GetConnectionString() error = %v, want %v", err, ErrNotFound)
	}
}

func TestDeleteConnectionString(t *testing.T) {
	gokeyring.MockInit()

	if err := SetConnectionString(BackendPostgres, "postgres://testuser@localhost:5432/testdb"); err != nil {
		t.Fatalf("SetConnectionString() failed: %v", err)
	}
	if err := DeleteConnectionString(BackendPostgres); err != nil {
		t.Fatalf("DeleteConnectionString() failed: %v", err)
	}
	if _, err := GetConnectionString(BackendPostgres); err != ErrNotFound {
		t.Errorf("after delete, GetConnectionString() error = %v, want %v", err, ErrNotFound)
	}
	if err := DeleteConnectionString(BackendPostgres); err != ErrNotFound {
		t.Errorf("second DeleteConnectionString() error = %v, want %v", err, ErrNotFound)
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"postgres", BackendPostgres, false},
		{"postgresql", BackendPostgres, false},
		{"redis", BackendRedis, false},
		{"sqlite", "", true},
	}
	for _, tt := range tests {
		got, err := ParseBackend(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBackend(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseBackend(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsAvailable(t *testing.T) {
	gokeyring.MockInit()

	if !IsAvailable() {
		t.Error("IsAvailable() = false with mock keyring, want true")
	}
}
