package bootstrap

import (
	goruntime "runtime"

	"audio-sync/internal/domain"
	"audio-sync/internal/profile"
)

// SelectedEncodeProfile reports the profile the next merge would use.
func (a *App) SelectedEncodeProfile() domain.EncodeProfileView {
	hint, p := a.profileSelector().Select()
	return profile.View(hint, p, true)
}

// ListEncodeProfiles returns every known profile with the active one marked.
func (a *App) ListEncodeProfiles() []domain.EncodeProfileView {
	selector := a.profileSelector()
	hint, _ := selector.Select()
	return profile.Catalog(hint, selector.Options)
}

// profileSelector builds a selector over the current settings.
func (a *App) profileSelector() *profile.Selector {
	a.mu.Lock()
	device := a.Settings.VaapiDevice
	detector := a.detector
	a.mu.Unlock()

	selector := profile.NewSelector(profile.Options{
		Threads:     goruntime.NumCPU(),
		VaapiDevice: device,
	})
	if detector != nil {
		selector.Detector = detector
	}
	return selector
}
