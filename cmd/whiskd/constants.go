package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	KEY_D = 32
	KEY_C = 46
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Progress and physics mapping defaults
const (
	defaultUpdateHz = 60 // Engine tick frequency (Hz)

	defaultMaxProgress  = 100.0 // Progress units required to complete the task
	defaultSensitivity  = 0.1   // Progress units per radian of rotation
	defaultDecayPerTick = 0.9   // Progress units lost per tick while released

	defaultResistanceMin         = 0.01  // Air friction at zero progress
	defaultResistanceMax         = 1.0   // Air friction at completion
	defaultResponsivenessInitial = 0.005 // Pointer constraint stiffness at zero progress
	defaultResponsivenessFinal   = 0.001 // Pointer constraint stiffness at completion

	// Minimum change in either physics scalar before a new write is sent to the host.
	defaultPhysicsUpdateThreshold = 1e-5

	// Orbit geometry of the dragged body, in host pixels.
	defaultPivotX      = 400.0
	defaultPivotY      = 300.0
	defaultOrbitRadius = 150.0
)

// Freeze scheduling defaults
const (
	defaultBandPercent       = 10
	defaultCooldownMS        = 2000
	defaultFreezeProbability = 0.5
	defaultTargetMinFraction = 0.10
	defaultTargetMaxFraction = 0.25
	defaultMinFreezeMS       = 1000
	defaultMaxFreezeMS       = 10000
	defaultFallbackMinMS     = 8000
	defaultFallbackMaxMS     = 13000
	defaultVelocityWindowMS  = 1000
)

// Analytics defaults
const (
	defaultGranularity          = 100 // 1% buckets over true progress
	defaultDisplayedGranularity = 20  // 5% buckets over displayed progress

	// Displayed-progress changes smaller than this are not broadcast.
	progressBroadcastPrecision = 0.01
)

// speedEpsilonSec bounds the sampler denominator away from zero.
const speedEpsilonSec = 1e-6

// isoMillis formats wall-clock log labels as ISO-8601 UTC with millisecond precision.
const isoMillis = "2006-01-02T15:04:05.000Z"
