package platforms

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/postprober/dashboard-core/internal/storage"
	"github.com/sirupsen/logrus"
)

const onboardingKey = "flags/onboarding.json"

// onboardingFlags gate the one-time connection wizard
type onboardingFlags struct {
	Complete    bool       `json:"onboarding_complete"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func loadOnboardingFlags(store storage.StorageInterface) (onboardingFlags, error) {
	var flags onboardingFlags

	data, err := store.Retrieve(onboardingKey)
	if errors.Is(err, storage.ErrNotFound) {
		return flags, nil
	}
	if err != nil {
		return flags, fmt.Errorf("failed to load onboarding flags: %w", err)
	}

	if err := json.Unmarshal(data, &flags); err != nil {
		logrus.Warnf("Ignoring unreadable onboarding flags: %v", err)
		return onboardingFlags{}, nil
	}
	return flags, nil
}

// IsOnboardingComplete reports whether the connection wizard was finished
func (r *Registry) IsOnboardingComplete() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.flags.Complete
}

// IsFirstTimeUser is true until onboarding completes or a platform gets connected
func (r *Registry) IsFirstTimeUser() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return !r.flags.Complete && countConnected(r.platforms) == 0
}

// MarkOnboardingComplete persists the onboarding flag. Repeated calls keep
// the first completion time.
func (r *Registry) MarkOnboardingComplete() error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if r.IsOnboardingComplete() {
		return nil
	}

	completedAt := r.now().UTC()
	flags := onboardingFlags{Complete: true, CompletedAt: &completedAt}

	data, err := json.Marshal(flags)
	if err != nil {
		return fmt.Errorf("failed to marshal onboarding flags: %w", err)
	}
	if err := r.store.Store(onboardingKey, data); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	r.mu.Lock()
	r.flags = flags
	r.mu.Unlock()

	logrus.Info("Onboarding marked complete")
	return nil
}
