package assignment

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/trezcool/proofmate/core"
)

// Store keys
const (
	KeyAssignments = "demoAssignments"
	KeySubmissions = "demoSubmissions"

	// written by older clients
	legacyKeyAssignments = "assignments"
	legacyKeySubmissions = "submissions"
)

var allKeys = []string{KeyAssignments, KeySubmissions, legacyKeyAssignments, legacyKeySubmissions}

type corruptError struct {
	key string
	err error
}

func (e *corruptError) Error() string { return "parsing stored " + e.key + ": " + e.err.Error() }

func isCorrupt(err error) bool {
	_, ok := errors.Cause(err).(*corruptError)
	return ok
}

// store keeps the assignments & submissions as JSON arrays in a KVStore.
type store struct {
	kv core.KVStore
}

// raw returns the value stored at key; empty values count as missing.
func (s store) raw(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.kv.Get(ctx, key)
	if err == core.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "reading %s", key)
	}
	if len(bytes.TrimSpace(val)) == 0 {
		return nil, false, nil
	}
	return val, true, nil
}

// load decodes the value at key into v. Undecodable values are reported as a *corruptError.
func (s store) load(ctx context.Context, key string, v interface{}) (bool, error) {
	val, found, err := s.raw(ctx, key)
	if err != nil || !found {
		return false, err
	}
	if err = json.Unmarshal(val, v); err != nil {
		return false, &corruptError{key: key, err: err}
	}
	return true, nil
}

func (s store) save(ctx context.Context, key string, v interface{}) error {
	val, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	if err = s.kv.Set(ctx, key, val); err != nil {
		return errors.Wrapf(err, "writing %s", key)
	}
	return nil
}

func (s store) assignments(ctx context.Context) ([]Assignment, error) {
	asgs := make([]Assignment, 0)
	if _, err := s.load(ctx, KeyAssignments, &asgs); err != nil {
		return nil, err
	}
	if asgs == nil { // stored "null"
		asgs = make([]Assignment, 0)
	}
	return asgs, nil
}

func (s store) submissions(ctx context.Context) ([]Submission, error) {
	subs := make([]Submission, 0)
	if _, err := s.load(ctx, KeySubmissions, &subs); err != nil {
		return nil, err
	}
	if subs == nil {
		subs = make([]Submission, 0)
	}
	return subs, nil
}

// migrateLegacy copies the legacy keys to the current ones when only the former exist.
// Legacy keys are left in place.
func (s store) migrateLegacy(ctx context.Context) ([]string, error) {
	var migrated []string
	for _, m := range []struct{ from, to string }{
		{legacyKeyAssignments, KeyAssignments},
		{legacyKeySubmissions, KeySubmissions},
	} {
		old, found, err := s.raw(ctx, m.from)
		if err != nil {
			return migrated, err
		}
		if !found {
			continue
		}
		_, exists, err := s.raw(ctx, m.to)
		if err != nil {
			return migrated, err
		}
		if exists {
			continue
		}
		if err = s.kv.Set(ctx, m.to, old); err != nil {
			return migrated, errors.Wrapf(err, "migrating %s to %s", m.from, m.to)
		}
		migrated = append(migrated, m.from)
	}
	return migrated, nil
}
