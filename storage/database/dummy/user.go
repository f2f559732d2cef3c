package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/trezcool/proofmate/core"
	"github.com/trezcool/proofmate/core/user"
)

type userRepository struct {
	db *userTable
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db.user}
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedUsers ...user.User) error {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, usr := range repo.db.table {
		if usr.Email == email && !isExcluded(*usr, excludedUsers) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, u := range repo.db.table {
		if u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	repo.db.pkCount++
	usr.ID = repo.db.pkCount
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	users := make([]user.User, 0, len(repo.db.table))
	for _, u := range repo.db.table {
		if filter == nil || matches(*u, filter) {
			users = append(users, *u)
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "createdAt", Ascending: false}}
	}
	sort.SliceStable(users, func(i, j int) bool {
		for _, ord := range ordering {
			c := compare(users[i], users[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if filter.ID != 0 {
		if usr, ok := repo.db.table[filter.ID]; ok {
			return *usr, nil
		}
		return user.User{}, user.ErrNotFound
	}

	var match func(u *user.User) bool
	switch {
	case filter.Email != "":
		match = func(u *user.User) bool { return u.Email == filter.Email }
	case filter.ResetTokenHash != "":
		match = func(u *user.User) bool { return u.ResetTokenHash == filter.ResetTokenHash }
	case filter.VerificationTokenHash != "":
		match = func(u *user.User) bool { return u.VerificationTokenHash == filter.VerificationTokenHash }
	default:
		return user.User{}, user.ErrNotFound
	}
	for _, u := range repo.db.table {
		if match(u) {
			return *u, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	for _, u := range repo.db.table {
		if u.ID != usr.ID && u.Email == usr.Email {
			return user.User{}, user.ErrEmailExists
		}
	}
	repo.db.table[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) DeleteUsers(_ context.Context, ids ...int) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	for _, id := range ids {
		delete(repo.db.table, id)
	}
	return nil
}

func matches(u user.User, filter *user.QueryFilter) bool {
	// users with search keyword matching any Name, Email or Institution ?
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(u.Name), search) ||
			strings.Contains(strings.ToLower(u.Email), search) ||
			strings.Contains(strings.ToLower(u.Institution), search)) {
			return false
		}
	}
	// users with any of the specified roles
	if len(filter.Roles) > 0 {
		var found bool
		for _, r := range filter.Roles {
			if u.Role == r {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && u.IsActive != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && u.CreatedAt.Before(filter.CreatedFrom.UTC()) {
		return false
	}
	if !filter.CreatedTo.IsZero() && u.CreatedAt.After(filter.CreatedTo.UTC()) {
		return false
	}
	return true
}

func compare(a, b user.User, field string) int {
	cmpStr := func(x, y string) int { return strings.Compare(strings.ToLower(x), strings.ToLower(y)) }
	cmpBool := func(x, y bool) int {
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		default:
			return 1
		}
	}
	cmpTime := func(x, y time.Time) int {
		switch {
		case x.Before(y):
			return -1
		case x.After(y):
			return 1
		default:
			return 0
		}
	}

	switch field {
	case "id":
		return a.ID - b.ID
	case "name":
		return cmpStr(a.Name, b.Name)
	case "email":
		return cmpStr(a.Email, b.Email)
	case "role":
		return cmpStr(a.Role, b.Role)
	case "institution":
		return cmpStr(a.Institution, b.Institution)
	case "isActive", "is_active":
		return cmpBool(a.IsActive, b.IsActive)
	case "emailVerified", "email_verified":
		return cmpBool(a.EmailVerified, b.EmailVerified)
	case "createdAt", "created_at":
		return cmpTime(a.CreatedAt, b.CreatedAt)
	case "updatedAt", "updated_at":
		return cmpTime(a.UpdatedAt, b.UpdatedAt)
	case "lastLogin", "last_login":
		return cmpTime(a.LastLogin.Time, b.LastLogin.Time)
	}
	return 0
}

func isExcluded(usr user.User, excludedUsers []user.User) bool {
	for _, u := range excludedUsers {
		if u.ID == usr.ID {
			return true
		}
	}
	return false
}
