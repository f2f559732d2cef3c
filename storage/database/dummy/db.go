package dummydb

import (
	"sync"

	"github.com/trezcool/proofmate/core/user"
)

type (
	DB struct {
		user *userTable
	}

	userTable struct {
		sync.RWMutex
		table   map[int]*user.User
		pkCount int
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[int]*user.User)},
	}
}

// Reset empties all the tables.
func (db *DB) Reset() {
	db.user.Lock()
	defer db.user.Unlock()
	db.user.table = make(map[int]*user.User)
	db.user.pkCount = 0
}
