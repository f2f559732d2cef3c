package user

import (
	"testing"
	"time"
)

func TestMakeVerifyToken(t *testing.T) {
	validToken, err := newToken()
	if err != nil {
		t.Fatalf("newToken() failed: %v", err)
	}
	if len(validToken) != 2*tokenBytes {
		t.Fatalf("newToken() len = %d, want %d", len(validToken), 2*tokenBytes)
	}
	otherToken, _ := newToken()
	if otherToken == validToken {
		t.Fatal("newToken() generated the same token twice")
	}

	now := time.Now()
	hash := HashToken(validToken)
	later := now.Add(10 * time.Minute)
	earlier := now.Add(-time.Second)

	tests := []struct {
		name    string
		hash    string
		expiry  time.Time
		token   string
		wantErr error
	}{
		{name: "no token", hash: hash, expiry: later, wantErr: errInvalidToken},
		{name: "no stored hash", expiry: later, token: validToken, wantErr: errInvalidToken},
		{name: "invalid token", hash: hash, expiry: later, token: otherToken, wantErr: errInvalidToken},
		{name: "raw token stored instead of hash", hash: validToken, expiry: later, token: validToken, wantErr: errInvalidToken},
		{name: "expired token", hash: hash, expiry: earlier, token: validToken, wantErr: errTokenExpired},
		{name: "valid token", hash: hash, expiry: later, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := verifyToken(tt.hash, tt.expiry, tt.token); err != tt.wantErr {
				t.Errorf("verifyToken() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	// expiry is checked against NowFunc
	NowFunc = func() time.Time { return later.Add(time.Second) }
	defer func() { NowFunc = time.Now }()
	if err := verifyToken(hash, later, validToken); err != errTokenExpired {
		t.Errorf("verifyToken() with mocked clock error = %v, wantErr %v", err, errTokenExpired)
	}
}

func TestHashToken(t *testing.T) {
	// echo -n abc | sha256sum
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashToken("abc"); got != want {
		t.Errorf("HashToken() = %s, want %s", got, want)
	}
}
