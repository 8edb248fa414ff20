package adapter

import (
	"time"

	"github.com/nimbusvale/directble/codec"
	"github.com/nimbusvale/directble/hci"
	"github.com/nimbusvale/directble/internal/clock"
)

// DiscoveryPolicy governs whether discovery pauses around connection
// events and when it auto-resumes after such a pause, per spec §4.6.
// Discovery stopped by the controller itself is not restarted under any
// policy.
type DiscoveryPolicy int

const (
	// PolicyAutoOff leaves discovery stopped until the caller restarts it.
	PolicyAutoOff DiscoveryPolicy = iota
	// PolicyAlwaysOn never pauses discovery for connection events. It does
	// not restart discovery after a controller-induced stop.
	PolicyAlwaysOn
	// PolicyPauseUntilReady pauses while any device is between connected and
	// ready, auto-resuming once all connected devices reach StateReady.
	PolicyPauseUntilReady
	// PolicyPauseUntilPaired pauses until pairing completes for every
	// connected device.
	PolicyPauseUntilPaired
	// PolicyPauseUntilDisconnected pauses until all connections drop.
	PolicyPauseUntilDisconnected
	// PolicyPauseForever never auto-resumes once paused.
	PolicyPauseForever
)

// maxBackgroundDiscoveryRetry bounds the retries spec §7's propagation
// policy allows for transient TRANSPORT/TIMEOUT failures on discovery.
const maxBackgroundDiscoveryRetry = 3

// SetDiscoveryPolicy installs the policy gating auto-resumption after a
// pause. It does not itself start or stop discovery.
func (a *Adapter) SetDiscoveryPolicy(p DiscoveryPolicy) {
	a.discMu.Lock()
	a.policy = p
	a.discMu.Unlock()
}

// IsDiscovering reports whether scanning is currently active.
func (a *Adapter) IsDiscovering() bool {
	a.discMu.Lock()
	defer a.discMu.Unlock()
	return a.discovering
}

// StartDiscovery begins LE scanning with p, retrying transient controller
// failures in the background per spec §7's MAX_BACKGROUND_DISCOVERY_RETRY
// policy. Only one retry worker runs per adapter at a time.
func (a *Adapter) StartDiscovery(p hci.ScanParams) error {
	err := a.hci.StartDiscovery(p)
	if err == nil {
		a.setDiscovering(true)
		return nil
	}
	if !isRetryableDiscoveryError(err) {
		return err
	}
	a.runBackgroundRetry(p)
	return err
}

func isRetryableDiscoveryError(err error) bool {
	return clock.RetryableKind(codec.KindTransport, codec.KindTimeout)(err)
}

// runBackgroundRetry starts the singleton discovery-retry worker (spec §5)
// unless one is already running for this adapter.
func (a *Adapter) runBackgroundRetry(p hci.ScanParams) {
	a.retryMu.Lock()
	if a.retryRunning {
		a.retryMu.Unlock()
		return
	}
	a.retryRunning = true
	a.retryMu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			a.retryMu.Lock()
			a.retryRunning = false
			a.retryMu.Unlock()
		}()

		err := clock.Retry(clock.RetryPolicy{
			MaxAttempts: maxBackgroundDiscoveryRetry,
			Backoff:     func(attempt int) time.Duration { return time.Duration(attempt) * 200 * time.Millisecond },
			Retryable:   isRetryableDiscoveryError,
		}, func(attempt int) error {
			select {
			case <-a.closeCh:
				return nil
			default:
			}
			return a.hci.StartDiscovery(p)
		})
		if err == nil {
			a.setDiscovering(true)
		} else {
			a.log.WithError(err).Warn("background discovery retry exhausted")
		}
	}()
}

// StopDiscovery stops LE scanning.
func (a *Adapter) StopDiscovery() error {
	err := a.hci.StopDiscovery()
	a.setDiscovering(false)
	return err
}

func (a *Adapter) setDiscovering(on bool) {
	a.discMu.Lock()
	changed := a.discovering != on
	a.discovering = on
	a.discMu.Unlock()
	if changed {
		for _, l := range a.listeners.snapshot() {
			l.DiscoveringChanged(on)
		}
	}
}

// addDevicePausingDiscovery adds addr to the pause set spec §4.6 names,
// stopping discovery immediately if this is the first paused device under
// a policy that pauses on connection activity.
func (a *Adapter) addDevicePausingDiscovery(addr codec.Address) {
	a.discMu.Lock()
	_, already := a.pauseSet[addr]
	a.pauseSet[addr] = struct{}{}
	policy := a.policy
	wasDiscovering := a.discovering
	a.discMu.Unlock()

	if already || policy == PolicyAutoOff || policy == PolicyAlwaysOn {
		return
	}
	if wasDiscovering {
		_ = a.hci.StopDiscovery()
		a.setDiscovering(false)
	}
}

// removeDevicePausingDiscovery drops addr from the pause set and, if the
// set is now empty and the policy allows it, resumes discovery.
func (a *Adapter) removeDevicePausingDiscovery(addr codec.Address, scan hci.ScanParams) {
	a.discMu.Lock()
	delete(a.pauseSet, addr)
	empty := len(a.pauseSet) == 0
	policy := a.policy
	a.discMu.Unlock()

	if !empty || policy == PolicyAutoOff || policy == PolicyAlwaysOn || policy == PolicyPauseForever {
		return
	}
	_ = a.StartDiscovery(scan)
}

// onDeviceReachedReady and onDevicePaired release the pause for policies
// keyed on reaching ready/paired, rather than plain disconnection.
func (a *Adapter) onDeviceReachedReady(addr codec.Address, scan hci.ScanParams) {
	a.discMu.Lock()
	policy := a.policy
	a.discMu.Unlock()
	if policy == PolicyPauseUntilReady {
		a.removeDevicePausingDiscovery(addr, scan)
	}
}

func (a *Adapter) onDevicePaired(addr codec.Address, scan hci.ScanParams) {
	a.discMu.Lock()
	policy := a.policy
	a.discMu.Unlock()
	if policy == PolicyPauseUntilPaired {
		a.removeDevicePausingDiscovery(addr, scan)
	}
}

func (a *Adapter) onDeviceDisconnected(addr codec.Address, scan hci.ScanParams) {
	a.discMu.Lock()
	policy := a.policy
	a.discMu.Unlock()
	if policy == PolicyPauseUntilDisconnected {
		a.removeDevicePausingDiscovery(addr, scan)
	}
}
