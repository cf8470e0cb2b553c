// Package core contains configuration, error envelopes and the contracts shared
// by the notification pipeline. Adapters depend on this package; core must not
// depend on provider-specific or transport-specific adapters.
package core
