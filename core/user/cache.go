package user

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// cachedService caches users looked up by ID, which happens on every authenticated request.
// Any write going through the service evicts the written users.
type cachedService struct {
	Service
	cache *expirable.LRU[int, User]
}

var _ Service = (*cachedService)(nil)

func NewCachedService(svc Service, size int, ttl time.Duration) Service {
	if size <= 0 {
		return svc
	}
	return &cachedService{
		Service: svc,
		cache:   expirable.NewLRU[int, User](size, nil, ttl),
	}
}

func (svc *cachedService) GetByID(ctx context.Context, id int) (User, error) {
	if usr, ok := svc.cache.Get(id); ok {
		return usr, nil
	}
	usr, err := svc.Service.GetByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	svc.cache.Add(id, usr)
	return usr, nil
}

func (svc *cachedService) evict(usr User, err error) (User, error) {
	if err == nil {
		svc.cache.Remove(usr.ID)
	}
	return usr, err
}

func (svc *cachedService) Update(ctx context.Context, usr User, data UpdateUser) (User, error) {
	svc.cache.Remove(usr.ID)
	return svc.evict(svc.Service.Update(ctx, usr, data))
}

func (svc *cachedService) Delete(ctx context.Context, ids ...int) error {
	for _, id := range ids {
		svc.cache.Remove(id)
	}
	return svc.Service.Delete(ctx, ids...)
}

func (svc *cachedService) SetLastLogin(ctx context.Context, usr User) (User, error) {
	return svc.evict(svc.Service.SetLastLogin(ctx, usr))
}

func (svc *cachedService) SetPassword(ctx context.Context, usr User, pwd string) (User, error) {
	return svc.evict(svc.Service.SetPassword(ctx, usr, pwd))
}

func (svc *cachedService) ResetPassword(ctx context.Context, token, pwd string) (User, error) {
	return svc.evict(svc.Service.ResetPassword(ctx, token, pwd))
}

func (svc *cachedService) VerifyEmail(ctx context.Context, token string) (User, error) {
	return svc.evict(svc.Service.VerifyEmail(ctx, token))
}

func (svc *cachedService) RequestPasswordReset(ctx context.Context, email string) error {
	if usr, err := svc.Service.GetByEmail(ctx, email); err == nil {
		svc.cache.Remove(usr.ID)
	}
	return svc.Service.RequestPasswordReset(ctx, email)
}
