package users

import (
	"context"
	"strings"
)

const maxPreferenceKeyLength = 64

// PreferenceStore reads and writes per-account settings. Writes are only
// accepted on behalf of the authenticated owner of the account.
type PreferenceStore struct {
	records  PreferenceRecords
	activity activityRecorder
}

func NewPreferenceStore(records PreferenceRecords) *PreferenceStore {
	return &PreferenceStore{
		records:  records,
		activity: newActivityRecorder(),
	}
}

func (p *PreferenceStore) WithLogger(logger Logger) *PreferenceStore {
	if logger != nil {
		p.activity.logger = logger
	}
	return p
}

func (p *PreferenceStore) WithActivitySink(sink ActivitySink) *PreferenceStore {
	p.activity.sink = normalizeActivitySink(sink)
	return p
}

// Get returns the value stored under key. The bool is false when the
// account has no such preference.
func (p *PreferenceStore) Get(ctx context.Context, account Account, key string) (string, bool, error) {
	if account == nil {
		return "", false, ErrInvalidRequest
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	value, err := p.records.GetPreference(ctx, account.GetID(), normalizeKey(key))
	if err != nil {
		if IsRecordNotFound(err) {
			return "", false, nil
		}
		return "", false, PersistenceError(err, "failed to load preference")
	}
	return value, true, nil
}

// All returns every preference of account
func (p *PreferenceStore) All(ctx context.Context, account Account) (map[string]string, error) {
	if account == nil {
		return nil, ErrInvalidRequest
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	prefs, err := p.records.ListPreferences(ctx, account.GetID())
	if err != nil {
		return nil, PersistenceError(err, "failed to load preferences")
	}
	return prefs, nil
}

// Set stores value under key and returns the stored value
func (p *PreferenceStore) Set(ctx context.Context, session SessionContext, account Account, key, value string) (string, error) {
	if session == nil || !session.IsAuthenticated() {
		return "", ErrNotAuthenticated
	}

	if account == nil {
		return "", ErrInvalidRequest
	}

	if session.UserID() != account.GetID().String() {
		p.activity.record(ctx, ActivityEvent{
			EventType: ActivityEventPreferenceChanged,
			Message:   "preference change rejected (not owner)",
			UserID:    account.GetID().String(),
			Metadata:  map[string]any{"session_user": session.UserID(), "key": key},
		})
		return "", ErrNotOwner
	}

	key = normalizeKey(key)
	switch {
	case key == "":
		return "", ValidationError(map[string]string{"key": "cannot be blank"})
	case len(key) > maxPreferenceKeyLength:
		return "", ValidationError(map[string]string{"key": "the length must be no more than 64"})
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := p.records.SetPreference(ctx, account.GetID(), key, value); err != nil {
		return "", PersistenceError(err, "failed to store preference")
	}

	p.activity.logger.Debug("preference stored", "user_id", account.GetID().String(), "key", key)

	return value, nil
}

func normalizeKey(key string) string {
	return strings.TrimSpace(key)
}
