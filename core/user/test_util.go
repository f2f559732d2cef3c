package user

import (
	"fmt"
	"sync"

	"github.com/trezcool/proofmate/core"
)

var (
	mockTokenMu  sync.Mutex
	mockTokenSeq int
)

// NewServiceMock returns a Service generating predictable tokens: "token-1", "token-2", ...
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:     repo,
		mailSvc:  mailSvc,
		conf:     conf,
		genToken: mockToken,
	}
}

func mockToken() (string, error) {
	mockTokenMu.Lock()
	defer mockTokenMu.Unlock()
	mockTokenSeq++
	return fmt.Sprintf("token-%d", mockTokenSeq), nil
}

// LastMockToken returns the last token generated by a Service mock.
func LastMockToken() string {
	mockTokenMu.Lock()
	defer mockTokenMu.Unlock()
	return fmt.Sprintf("token-%d", mockTokenSeq)
}
